package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"thirdcoast.systems/sonicstream/internal/application"
	"thirdcoast.systems/sonicstream/internal/config"
)

// commandContext lazily loads configuration and the application so commands
// that fail flag parsing never touch a backend.
type commandContext struct {
	logOutput io.Writer

	cfg *config.Config
	app *application.App
}

func (c *commandContext) config(cmd *cobra.Command) (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.LoadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	application.NewLogger(c.logOutput, cfg.Log)
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) application(cmd *cobra.Command) (*application.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config(cmd)
	if err != nil {
		return nil, err
	}
	app, err := application.New(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

type appRunFunc func(cmd *cobra.Command, args []string, app *application.App) error

// withApp builds the application for one command and closes it afterwards.
func (c *commandContext) withApp(fn appRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := c.application(cmd)
		if err != nil {
			return err
		}
		defer c.close()
		return fn(cmd, args, app)
	}
}

func (c *commandContext) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(); err != nil {
		slog.Warn("sonicctl: close application", "error", err)
	}
	c.app = nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{logOutput: os.Stderr}

	root := &cobra.Command{
		Use:           "sonicctl",
		Short:         "Ingest remote audio and derive stems, pitch variants and chords",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newIngestCommand(ctx),
		newSeparateCommand(ctx),
		newPitchCommand(ctx),
		newChordsCommand(ctx),
		newDeleteCommand(ctx),
		newListCommand(ctx),
		newURLCommand(ctx),
		newInspectCommand(ctx),
		newStagingCommand(ctx),
	)
	return root
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
