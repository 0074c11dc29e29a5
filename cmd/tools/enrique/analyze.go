package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/enrique/backend/internal/analysis/datehint"
	"github.com/zhouzirui/enrique/backend/internal/analysis/intent"
	"github.com/zhouzirui/enrique/backend/internal/analysis/timezone"
)

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Print the intent category of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			match := intent.Explain(strings.Join(args, " "))
			if match.Keyword != "" {
				fmt.Fprintf(c.out, "%s (keyword %q)\n", match.Category, match.Keyword)
				return nil
			}
			fmt.Fprintln(c.out, match.Category)
			return nil
		},
	}
}

func (c *cli) convertCmd() *cobra.Command {
	var (
		zone   string
		target string
		date   string
	)
	cmd := &cobra.Command{
		Use:   "convert <text>",
		Short: "Convert a time mentioned in text to Enrique's timezone",
		Example: `  enrique convert "2pm PST"
  enrique convert --zone Europe/Berlin --date 2025-01-17 14:30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			expr, ok := timezone.FindTimeExpression(text)
			if !ok {
				return fmt.Errorf("no time found in %q", text)
			}
			source := zone
			if source == "" {
				if source, ok = timezone.Resolve(text); !ok {
					return errors.New("no timezone found; pass --zone")
				}
			} else if source, ok = timezone.Normalize(source); !ok {
				return fmt.Errorf("unknown timezone %q", zone)
			}

			converter, err := timezone.NewConverter(target, timezone.WithClock(c.now))
			if err != nil {
				return err
			}

			var ref time.Time
			if date != "" {
				if ref, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}

			result, err := converter.Convert(expr, source, ref)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, result.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&zone, "zone", "", "source timezone; detected from the text when empty")
	cmd.Flags().StringVar(&target, "target", timezone.DefaultTargetZone, "timezone to convert into")
	cmd.Flags().StringVar(&date, "date", "", "calendar day of the time (YYYY-MM-DD), today when empty")
	return cmd
}

func (c *cli) hintCmd() *cobra.Command {
	var reference string
	cmd := &cobra.Command{
		Use:   "hint <text>",
		Short: "Find and resolve a date reference such as \"next Tuesday\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			hint, ok := datehint.Extract(text)
			if !ok {
				fmt.Fprintln(c.out, "no date reference found")
				return nil
			}

			ref := c.now()
			if reference != "" {
				parsed, err := time.Parse("2006-01-02", reference)
				if err != nil {
					return fmt.Errorf("invalid --reference %q: want YYYY-MM-DD", reference)
				}
				ref = parsed
			}

			day, err := datehint.Resolve(hint, ref)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%q (%s) -> %s\n", hint.Text, hint.Pattern, day.Format("Monday, January 2, 2006"))
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "day to resolve against (YYYY-MM-DD), today when empty")
	return cmd
}
