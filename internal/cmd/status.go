package cmd

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/cache"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/state"
)

func newStatusCmd(globals func() globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the update cache and any downloaded update",
		Long:  `Status shows the resolved variant, the cached base artifacts used for differential downloads, and the update waiting to be installed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), cmd.ErrOrStderr(), globals())
		},
	}
}

func runStatus(stdout, stderr io.Writer, g globalOptions) error {
	env, err := newRuntimeEnv(stdout, stderr, g)
	if err != nil {
		return err
	}

	report := output.StatusReport{
		Version:         env.host.Version(),
		Variant:         env.variant().String(),
		ConfigPath:      env.cfgPath,
		CacheDir:        env.cache.Dir(),
		CachedInstaller: cache.Exists(env.cache.CurrentInstaller()),
		CachedPackage:   cache.Exists(env.cache.CurrentPackage()),
		Pending:         []output.PendingFile{},
	}

	rec, err := state.NewStore(env.cache.Dir()).Read()
	switch {
	case err == nil:
		report.DownloadedUpdate = rec.Version
	case !errors.Is(err, state.ErrNoRecord):
		env.logger.Warn("unreadable downloaded update record", "err", err)
	}

	entries, err := env.cache.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		report.Pending = append(report.Pending, output.PendingFile{
			Name:       e.Name,
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt,
			Temporary:  e.Temporary,
		})
	}

	return env.out.Write(report)
}
