package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/interactive"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/state"
)

type downloadOptions struct {
	Release  string
	Platform string
	Force    bool
	Install  bool
}

func newDownloadCmd(globals func() globalOptions) *cobra.Command {
	var opts downloadOptions

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the latest release into the update cache",
		Long: `Download the artifact for this host from a release description.

When a previous installer is cached and the release publishes block maps,
only the changed ranges are fetched. Any differential failure falls back
to a full download.

On a terminal you are asked whether to install right away; the download is
kept either way and can be installed later with 'hatch install'.

Examples:
  hatch download --release https://updates.example.com/latest.yml
  hatch download --release ./latest.yml --install
  hatch download --release ./latest.yml --force   # even if not newer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(),
				withHostPID(cmd, globals()), opts, interactive.IsTerminal())
		},
	}

	cmd.Flags().StringVar(&opts.Release, "release", "", "Release description URL or path")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "Select artifacts for os/arch instead of this host")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Download even when the release is not newer")
	cmd.Flags().BoolVar(&opts.Install, "install", false, "Install right after downloading")
	addHostPIDFlag(cmd)
	_ = cmd.MarkFlagRequired("release")

	return cmd
}

func runDownload(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, g globalOptions, opts downloadOptions, prompt bool) error {
	env, err := newRuntimeEnv(stdout, stderr, g)
	if err != nil {
		return err
	}
	platform, err := parsePlatform(opts.Platform)
	if err != nil {
		return err
	}

	info, rel, err := checkRelease(ctx, env, platform, opts.Release)
	if err != nil {
		return err
	}
	if !info.Available && !opts.Force {
		return env.out.Write(checkReport(info))
	}

	u, err := env.updater(platform)
	if err != nil {
		return err
	}
	rec, err := u.Download(ctx, rel)
	if err != nil {
		return err
	}
	if err := env.out.Write(downloadReport(rec)); err != nil {
		return err
	}

	switch {
	case opts.Install:
	case prompt && !env.format.Structured():
		if interactive.NewPrompterWithIO(stdin, stdout).ConfirmInstall(rec) != interactive.ResponseYes {
			return nil
		}
	default:
		return nil
	}
	return installDownloaded(ctx, env, u)
}

func downloadReport(rec *state.Record) output.DownloadReport {
	return output.DownloadReport{
		Version:       rec.Version,
		InstallerPath: rec.InstallerPath,
		PackagePath:   rec.PackagePath,
		Differential:  rec.Differential,
		Size:          rec.Size,
	}
}
