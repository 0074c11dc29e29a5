// Command enrique is a terminal front end for Enrique's assistant: an
// interactive chat plus one-shot helpers for the text analysis and speech
// services.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/enrique/backend/internal/app"
	"github.com/zhouzirui/enrique/backend/internal/config"
	"github.com/zhouzirui/enrique/backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the streams and lazily built services shared by subcommands.
type cli struct {
	in       io.Reader
	out      io.Writer
	logLevel string
	now      func() time.Time
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, now: time.Now}
	return c.root()
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:          "enrique",
		Short:        "Chat with Enrique's assistant and exercise its helpers",
		SilenceUsage: true,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for service output (debug, info, warn, error)")

	root.AddCommand(
		c.chatCmd(),
		c.classifyCmd(),
		c.convertCmd(),
		c.hintCmd(),
		c.transcribeCmd(),
		c.speakCmd(),
	)
	return root
}

// services loads configuration and builds the full service graph.
func (c *cli) services(ctx context.Context) (*app.App, error) {
	// .env is optional for the CLI.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	zl := logger.New(c.logLevel, cfg.Log.Format)
	return app.Build(ctx, cfg, zl, app.WithClock(c.now))
}
