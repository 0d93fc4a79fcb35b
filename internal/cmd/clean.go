package cmd

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/state"
)

func newCleanCmd(globals func() globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale files from the update cache",
		Long: `Clean removes interrupted downloads and superseded files from the
pending directory. The downloaded update waiting to be installed is kept
unless --all is given. The cached base artifacts are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.OutOrStdout(), cmd.ErrOrStderr(), globals(), all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also discard the downloaded update")

	return cmd
}

func runClean(stdout, stderr io.Writer, g globalOptions, all bool) error {
	env, err := newRuntimeEnv(stdout, stderr, g)
	if err != nil {
		return err
	}
	store := state.NewStore(env.cache.Dir())

	var keep []string
	if !all {
		rec, err := store.Read()
		switch {
		case err == nil:
			keep = append(keep, filepath.Base(rec.InstallerPath))
			if rec.PackagePath != "" {
				keep = append(keep, filepath.Base(rec.PackagePath))
			}
		case !errors.Is(err, state.ErrNoRecord):
			return err
		}
	}

	res, err := env.cache.Prune(keep...)
	if err != nil {
		return err
	}
	if all {
		if err := store.Clear(); err != nil {
			return err
		}
	}

	report := output.CleanReport{Deleted: []string{}, Kept: res.Kept}
	for _, e := range res.Deleted {
		report.Deleted = append(report.Deleted, e.Name)
	}
	return env.out.Write(report)
}
