package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

type checkOptions struct {
	Release  string
	Platform string
}

func newCheckCmd(globals func() globalOptions) *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Long: `Read a release description and compare it to the installed version.

The release may be an http(s) URL or a local file in YAML or JSON.

Examples:
  hatch check --release https://updates.example.com/latest.yml
  hatch check --release ./latest.yml --platform windows/amd64 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), globals(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Release, "release", "", "Release description URL or path")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "Select artifacts for os/arch instead of this host")
	_ = cmd.MarkFlagRequired("release")

	return cmd
}

func runCheck(ctx context.Context, stdout, stderr io.Writer, g globalOptions, opts checkOptions) error {
	env, err := newRuntimeEnv(stdout, stderr, g)
	if err != nil {
		return err
	}
	platform, err := parsePlatform(opts.Platform)
	if err != nil {
		return err
	}

	info, _, err := checkRelease(ctx, env, platform, opts.Release)
	if err != nil {
		return err
	}
	return env.out.Write(checkReport(info))
}

// checkRelease reads and evaluates the release at source.
func checkRelease(ctx context.Context, env *runtimeEnv, platform *update.Platform, source string) (*update.UpdateInfo, *update.Release, error) {
	checker := env.checker(platform)
	rel, err := checker.ReadRelease(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	info, err := checker.Check(rel)
	if err != nil {
		return nil, nil, err
	}
	env.logger.Debug("checked release", "current", info.CurrentVersion, "latest", info.LatestVersion, "available", info.Available)
	return info, rel, nil
}

func checkReport(info *update.UpdateInfo) output.CheckReport {
	r := output.CheckReport{
		CurrentVersion: info.CurrentVersion,
		LatestVersion:  info.LatestVersion,
		Available:      info.Available,
		ReleaseNotes:   info.ReleaseNotes,
	}
	if info.Artifact != nil {
		r.Artifact = info.Artifact.FileName()
	}
	return r
}
