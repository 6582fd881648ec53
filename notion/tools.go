package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/sweetpotato0/notion-agent/tool"
)

var objectArray = map[string]any{"type": "array", "items": map[string]any{"type": "object"}}

// Tools exposes the client's operations as agent tools. Handlers never return
// a Go error: failures are rendered as an Envelope so the model can read them.
func Tools(c *Client) []*tool.Tool {
	return []*tool.Tool{
		{
			Name:        "list_databases",
			Description: "Lists all databases accessible by the integration, with their IDs and titles.",
			Handler: func(ctx context.Context, _ map[string]interface{}) (string, error) {
				return render(c.ListDatabases(ctx))
			},
		},
		{
			Name:        "query_database",
			Description: "Queries a specific database with optional filters and sorts.",
			Parameters: []tool.Parameter{
				{Name: "database_id", Type: "string", Description: "The ID of the Notion database.", Required: true},
				{Name: "filter_conditions", Type: "object", Description: "A Notion API filter object."},
				{Name: "sort_conditions", Type: "array", Description: "A list of Notion API sort objects.", Schema: objectArray},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				filter, err := objectArg(args, "filter_conditions")
				if err != nil {
					return render(nil, err)
				}
				sorts, err := arrayArg(args, "sort_conditions")
				if err != nil {
					return render(nil, err)
				}
				return render(c.QueryDatabase(ctx, cast.ToString(args["database_id"]), filter, sorts))
			},
		},
		{
			Name:        "get_page_content",
			Description: "Retrieves every content block of a specific page.",
			Parameters: []tool.Parameter{
				{Name: "page_id", Type: "string", Description: "The ID of the Notion page.", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				return render(c.GetPageContent(ctx, cast.ToString(args["page_id"])))
			},
		},
		{
			Name:        "create_page",
			Description: "Creates a new page, either in a database or as a sub-page of another page.",
			Parameters: []tool.Parameter{
				{Name: "parent_db_id", Type: "string", Description: "The ID of the parent database (when creating a database entry)."},
				{Name: "parent_page_id", Type: "string", Description: "The ID of the parent page (when creating a sub-page)."},
				{Name: "properties", Type: "object", Description: "Page properties; required for database pages."},
				{Name: "children", Type: "array", Description: "Block objects for the page content.", Schema: objectArray},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				props, err := objectArg(args, "properties")
				if err != nil {
					return render(nil, err)
				}
				children, err := arrayArg(args, "children")
				if err != nil {
					return render(nil, err)
				}
				return render(c.CreatePage(ctx, CreatePageParams{
					ParentDatabaseID: cast.ToString(args["parent_db_id"]),
					ParentPageID:     cast.ToString(args["parent_page_id"]),
					Properties:       props,
					Children:         children,
				}))
			},
		},
		{
			Name:        "update_page",
			Description: "Updates an existing page's properties or archive status, and appends content blocks.",
			Parameters: []tool.Parameter{
				{Name: "page_id", Type: "string", Description: "The ID of the page to update.", Required: true},
				{Name: "properties", Type: "object", Description: "Page properties to update."},
				{Name: "children", Type: "array", Description: "Block objects to append to the page.", Schema: objectArray},
				{Name: "archive", Type: "boolean", Description: "Archive (true) or restore (false) the page."},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				props, err := objectArg(args, "properties")
				if err != nil {
					return render(nil, err)
				}
				children, err := arrayArg(args, "children")
				if err != nil {
					return render(nil, err)
				}
				params := UpdatePageParams{Properties: props, Children: children}
				if raw, ok := args["archive"]; ok && raw != nil {
					archived, err := cast.ToBoolE(raw)
					if err != nil {
						return render(nil, invalidInput(fmt.Sprintf("archive must be a boolean, got %v", raw)))
					}
					params.Archived = &archived
				}
				return render(c.UpdatePage(ctx, cast.ToString(args["page_id"]), params))
			},
		},
		{
			Name:        "quick_search_notion",
			Description: "Performs a global search across the Notion workspace. Searches pages and databases unless filtered.",
			Parameters: []tool.Parameter{
				{Name: "query", Type: "string", Description: "The search string.", Required: true},
				{Name: "sort_options", Type: "object", Description: `Notion API sort object, e.g. {"direction": "ascending", "timestamp": "last_edited_time"}.`},
				{Name: "filter_options", Type: "object", Description: `Notion API filter object, e.g. {"property": "object", "value": "page"}.`},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				sort, err := objectArg(args, "sort_options")
				if err != nil {
					return render(nil, err)
				}
				filter, err := objectArg(args, "filter_options")
				if err != nil {
					return render(nil, err)
				}
				return render(c.Search(ctx, cast.ToString(args["query"]), sort, filter))
			},
		},
	}
}

// NewToolProvider wraps Tools in a tool.Provider.
func NewToolProvider(c *Client) *tool.StaticProvider {
	return tool.NewStaticProvider(Tools(c)...)
}

func render(v any, err error) (string, error) {
	out := v
	if err != nil {
		out = EnvelopeOf(err)
	}
	data, mErr := json.Marshal(out)
	if mErr != nil {
		data, _ = json.Marshal(Envelope{Error: mErr.Error(), Details: "Failed to encode result."})
	}
	return string(data), nil
}

// objectArg reads an optional object argument. Models sometimes send objects
// as JSON strings; cast decodes those.
func objectArg(args map[string]interface{}, key string) (Object, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, invalidInput(fmt.Sprintf("%s must be an object: %v", key, err))
	}
	return m, nil
}

// arrayArg reads an optional array argument, accepting JSON strings too.
func arrayArg(args map[string]interface{}, key string) ([]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		var out []any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, invalidInput(fmt.Sprintf("%s must be an array: %v", key, err))
		}
		return out, nil
	}
	out, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, invalidInput(fmt.Sprintf("%s must be an array: %v", key, err))
	}
	return out, nil
}
