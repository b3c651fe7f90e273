package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"thirdcoast.systems/sonicstream/internal/application"
	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/derive"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/pkg/chords"
	"thirdcoast.systems/sonicstream/pkg/spleeter"
)

type ingestOutput struct {
	Record      *asset.Record `json:"record"`
	DownloadURL string        `json:"downloadUrl,omitempty"`
}

type separateOutput struct {
	Record *asset.Record `json:"record"`
	Folder string        `json:"folder"`
	Stems  []string      `json:"stems"`
}

type pitchOutput struct {
	Record *asset.Record `json:"record"`
	Scale  float64       `json:"scale"`
}

type chordsOutput struct {
	Name   string          `json:"name"`
	Key    string          `json:"key,omitempty"`
	Chords chords.Document `json:"chords"`
}

type deleteOutput struct {
	Name          string `json:"name"`
	GroupsUpdated int    `json:"groupsUpdated"`
}

type urlOutput struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>",
		Short: "Download audio from a remote URL and record it as a new asset",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			res, err := app.Pipeline.Ingest(cmd.Context(), derive.IngestRequest{URL: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ingestOutput{Record: res.Record, DownloadURL: res.DownloadURL})
		}),
	}
}

func newSeparateCommand(ctx *commandContext) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "separate <name>",
		Short: "Split an asset into stems",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			res, err := app.Pipeline.SeparateStems(cmd.Context(), derive.SeparateRequest{Name: args[0], Model: model})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), separateOutput{Record: res.Record, Folder: res.Folder, Stems: res.Stems})
		}),
	}
	cmd.Flags().StringVar(&model, "model", spleeter.DefaultModel, "Separation model (spleeter:2stems, spleeter:4stems, spleeter:5stems)")
	return cmd
}

func newPitchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pitch <name> <semitones>",
		Short: "Derive a pitch-shifted copy of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			semitones, err := parseSemitones(args[1])
			if err != nil {
				return err
			}
			res, err := app.Pipeline.PitchShift(cmd.Context(), derive.PitchRequest{Name: args[0], Semitones: semitones})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pitchOutput{Record: res.Record, Scale: res.Scale})
		}),
	}
	// Negative offsets such as -2 are arguments, not shorthand flags.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func parseSemitones(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, faults.BadRequest("sonicctl", fmt.Sprintf("semitones %q is not a number", raw))
	}
	return v, nil
}

func newChordsCommand(ctx *commandContext) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "chords <name>",
		Short: "Extract the chord sequence of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			if show {
				doc, err := app.Pipeline.Chords(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return faults.Wrap(faults.ErrAssetNotFound, "sonicctl", "chords", "no chords recorded for "+args[0], nil)
				}
				return printJSON(cmd.OutOrStdout(), chordsOutput{Name: args[0], Chords: doc})
			}
			res, err := app.Pipeline.ExtractChords(cmd.Context(), derive.ChordsRequest{Name: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chordsOutput{Name: res.Name, Key: res.Key, Chords: res.Document})
		}),
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print previously extracted chords instead of running extraction")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove an asset, its derived artifacts and group references",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			res, err := app.Pipeline.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), deleteOutput{Name: res.Name, GroupsUpdated: res.GroupsUpdated})
		}),
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded assets",
		Args:  cobra.NoArgs,
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			records, err := app.Pipeline.List(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []*asset.Record{}
			}
			return printJSON(cmd.OutOrStdout(), records)
		}),
	}
}

func newURLCommand(ctx *commandContext) *cobra.Command {
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print signed read links for published artifacts",
	}

	urlCmd.AddCommand(&cobra.Command{
		Use:   "stream <name>",
		Short: "Signed link to an asset's audio",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			u, err := app.Pipeline.StreamURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), urlOutput{Name: args[0], URL: u})
		}),
	})
	urlCmd.AddCommand(&cobra.Command{
		Use:   "thumbnail <name>",
		Short: "Signed link to an asset's thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			u, err := app.Pipeline.ThumbnailURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), urlOutput{Name: args[0], URL: u})
		}),
	})
	urlCmd.AddCommand(&cobra.Command{
		Use:   "stem <name> <stem>",
		Short: "Signed link to one stem of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			u, err := app.Pipeline.StemURL(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), urlOutput{Name: args[0] + "/" + args[1], URL: u})
		}),
	})

	return urlCmd
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <url>",
		Short: "Show remote metadata without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.withApp(func(cmd *cobra.Command, args []string, app *application.App) error {
			info, err := app.Pipeline.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		}),
	}
}

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean scratch space",
	}

	stagingCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List run directories left in the staging area",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config(cmd)
			if err != nil {
				return err
			}
			return listStaging(cmd, cfg.Staging.StagingDir)
		},
	})

	var maxAge time.Duration
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Remove run directories older than the configured age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config(cmd)
			if err != nil {
				return err
			}
			age := cfg.Staging.StagingMaxAge
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}
			return cleanStaging(cmd, cfg.Staging.StagingDir, age)
		},
	}
	clean.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove directories older than this (defaults to STAGING_MAX_AGE)")
	stagingCmd.AddCommand(clean)

	return stagingCmd
}
