package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
	"github.com/zhouzirui/enrique/backend/internal/model/chat"
	"github.com/zhouzirui/enrique/backend/internal/model/persona"
	"github.com/zhouzirui/enrique/backend/internal/service/orchestrator"
)

const emptyInputMessage = "Empty message. Please provide input or type 'exit' to quit."

type replier interface {
	Reply(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

func (c *cli) chatCmd() *cobra.Command {
	var zone string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			normalized, ok := timezone.Normalize(zone)
			if !ok {
				return fmt.Errorf("unknown timezone %q", zone)
			}

			services, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			p := services.Personas.Default()
			session, err := services.Chat.CreateSessionInZone(cmd.Context(), p.ID, normalized)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}

			fmt.Fprintf(c.out, "Acting as %s\n", p.Name)
			fmt.Fprintln(c.out, "========================================")
			fmt.Fprintln(c.out, p.OpeningLine)
			fmt.Fprintln(c.out, "Type 'exit' to quit.")
			fmt.Fprintln(c.out, "========================================")
			if services.AI == nil {
				fmt.Fprintln(c.out, "Warning: no model configured, replies use built-in answers.")
			}

			return runChat(cmd.Context(), c.in, c.out, services.Orchestrator, session, p)
		},
	}
	cmd.Flags().StringVar(&zone, "timezone", "", "your timezone, e.g. PST or America/Los_Angeles")
	return cmd
}

// runChat reads one message per line until exit, EOF or cancellation.
func runChat(ctx context.Context, in io.Reader, out io.Writer, assistant replier, session chat.Session, p persona.Persona) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out, "\nExiting chat. Goodbye!")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(text, "exit") {
			fmt.Fprintln(out, "Exiting chat. Goodbye!")
			return nil
		}
		if text == "" {
			fmt.Fprintln(out, emptyInputMessage)
			continue
		}

		result, err := assistant.Reply(ctx, orchestrator.Request{SessionID: session.ID, Message: text})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "\nAn error occurred: %v\n\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s: %s\n\n", p.Name, result.Reply)
	}
}
