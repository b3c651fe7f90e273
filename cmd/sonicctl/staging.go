package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"thirdcoast.systems/sonicstream/internal/staging"
)

func listStaging(cmd *cobra.Command, dir string) error {
	dirs, err := staging.List(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(dirs) == 0 {
		fmt.Fprintln(out, "Staging: empty")
		return nil
	}
	const stampLayout = "2006-01-02 15:04"
	for _, d := range dirs {
		fmt.Fprintf(out, "%s  %8s  %s\n", d.ModTime.Format(stampLayout), d.HumanSize(), d.Name)
	}
	return nil
}

func cleanStaging(cmd *cobra.Command, dir string, maxAge time.Duration) error {
	res := staging.CleanStale(cmd.Context(), dir, maxAge, slog.Default())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Removed: %d\n", len(res.Removed))
	for _, p := range res.Removed {
		fmt.Fprintf(out, "  %s\n", p)
	}
	if len(res.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, fmt.Errorf("%s: %w", e.Path, e.Error))
	}
	return errors.Join(errs...)
}
