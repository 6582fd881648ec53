package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/notion-agent/agent"
	"github.com/sweetpotato0/notion-agent/app"
)

var chatMessage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant",
	Long:  "Send a single message with -m, or start an interactive session. Type /reset to start a new conversation.",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send a single message and exit")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app.App) error {
		out := cmd.OutOrStdout()
		if chatMessage != "" {
			reply, err := a.Agent().Run(ctx, chatMessage)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, reply)
			return nil
		}
		return repl(ctx, a.Agent(), cmd.InOrStdin(), out)
	})
}

func repl(ctx context.Context, ag *agent.Agent, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s ready (type 'exit' to quit, '/reset' for a new conversation)\n\n", ag.Name())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case exitCommands[strings.ToLower(line)]:
			return nil
		case line == "/reset":
			ag.Reset()
			fmt.Fprintln(out, "(new conversation)")
			continue
		}

		reply, err := ag.Run(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n\n", ag.Name(), reply)
	}
}
