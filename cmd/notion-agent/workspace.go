package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/notion-agent/app"
	"github.com/sweetpotato0/notion-agent/notion"
	"github.com/sweetpotato0/notion-agent/tool"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to the MCP server and list every tool the agent can call",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if !a.Config().MCP.Disabled {
				if err := a.MCP().Initialize(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "mcp tools unavailable: %v\n", err)
				}
			}
			a.Agent().RefreshTools()
			if toolsJSON {
				return writeToolSchemas(cmd.OutOrStdout(), a.Agent().Tools())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, t := range a.Agent().Tools() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, firstLine(t.Description))
			}
			return w.Flush()
		})
	},
}

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List databases shared with the integration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			dbs, err := a.Notion().ListDatabases(cmd.Context())
			return printResult(cmd, dbs, err)
		})
	},
}

var databaseCmd = &cobra.Command{
	Use:   "database <database-id>",
	Short: "Print a database schema and its title property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			db, err := a.Notion().RetrieveDatabase(cmd.Context(), args[0])
			if err != nil {
				return printResult(cmd, nil, err)
			}
			if title, ok := notion.TitleProperty(db); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "title property: %s\n", title)
			}
			return printJSON(cmd.OutOrStdout(), db)
		})
	},
}

var searchFilter string

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search pages and databases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter notion.Object
		if searchFilter != "" {
			filter = notion.Object{"property": "object", "value": searchFilter}
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Notion().Search(cmd.Context(), args[0], nil, filter)
			return printResult(cmd, res, err)
		})
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <page-id>",
	Short: "Print every block of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			content, err := a.Notion().GetPageContent(cmd.Context(), args[0])
			return printResult(cmd, content, err)
		})
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print function-calling schemas instead of a table")
	searchCmd.Flags().StringVar(&searchFilter, "only", "", "restrict results to \"page\" or \"database\"")
}

// printResult prints v, or the error envelope the agent would see.
func printResult(cmd *cobra.Command, v any, err error) error {
	if err != nil {
		if perr := printJSON(cmd.OutOrStdout(), notion.EnvelopeOf(err)); perr != nil {
			return perr
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

// writeToolSchemas prints the tools in function-calling schema form.
func writeToolSchemas(w io.Writer, tools []*tool.Tool) error {
	registry := tool.NewRegistry()
	for _, t := range tools {
		if err := registry.Upsert(t); err != nil {
			return err
		}
	}
	return printJSON(w, registry)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
