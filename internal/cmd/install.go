package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

func newInstallCmd(globals func() globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the downloaded update",
		Long: `Install the update recorded by the last 'hatch download'.

The installer is re-hashed first. Installer builds verify the publisher
signature when publisherName is configured, then run the installer,
elevating once if the system requires it. Portable builds stage the new
executable and hand the swap to a watchdog that runs after this process
exits. When hatch runs beside the application rather than as it, pass
the application's process id with --host-pid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), withHostPID(cmd, globals()))
		},
	}
	addHostPIDFlag(cmd)
	return cmd
}

func runInstall(ctx context.Context, stdout, stderr io.Writer, g globalOptions) error {
	env, err := newRuntimeEnv(stdout, stderr, g)
	if err != nil {
		return err
	}
	u, err := env.updater(nil)
	if err != nil {
		return err
	}
	return installDownloaded(ctx, env, u)
}

func installDownloaded(ctx context.Context, env *runtimeEnv, u *update.Updater) error {
	out := u.Install(ctx)

	report := output.InstallReport{Outcome: out.Kind.String(), Reason: out.Reason}
	if out.Err != nil {
		report.Error = out.Err.Error()
	}
	if err := env.out.Write(report); err != nil {
		return err
	}

	if out.Kind.IsSuccess() {
		return nil
	}
	if out.Err == nil {
		return errors.New("install failed")
	}
	return fmt.Errorf("install failed: %w", out.Err)
}
