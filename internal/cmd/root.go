package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/types"
)

// buildInfo is stamped into the binary at release time.
type buildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalOptions are the persistent flags. Each one can also be set through
// a HATCH_* environment variable, e.g. HATCH_CACHE_DIR.
type globalOptions struct {
	Output     string
	ConfigPath string
	CacheDir   string
	App        string
	AppVersion string
	Variant    string
	Verbose    bool
	Quiet      bool

	// HostPID is the process a portable swap waits for. It comes from
	// --host-pid on install and download, or HATCH_HOST_PID.
	HostPID int
}

// Execute runs the CLI. An interrupt cancels in-flight downloads.
func Execute(version, commit, date string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(buildInfo{Version: version, Commit: commit, Date: date}).ExecuteContext(ctx)
}

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("hatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// addHostPIDFlag registers --host-pid on commands that may swap a portable
// executable.
func addHostPIDFlag(cmd *cobra.Command) {
	cmd.Flags().Int("host-pid", 0, "Process the portable watchdog waits for (defaults to hatch when it is the portable executable)")
}

// withHostPID applies an explicit --host-pid over the environment.
func withHostPID(cmd *cobra.Command, g globalOptions) globalOptions {
	if cmd.Flags().Changed("host-pid") {
		if pid, err := cmd.Flags().GetInt("host-pid"); err == nil {
			g.HostPID = pid
		}
	}
	return g
}

func newRootCmd(info buildInfo) *cobra.Command {
	settings := newSettings()

	rootCmd := &cobra.Command{
		Use:   "hatch",
		Short: "Download and install application updates",
		Long: `hatch keeps a desktop application up to date.

It downloads new releases differentially when a previous installer is
cached, verifies them, and hands them to the platform installer or swaps
a portable executable in place.`,
		Version:      info.Version,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("output", "o", "text", "Output format: text, json, yaml")
	pf.String("config", "", "Path to the update config file")
	pf.String("cache-dir", "", "Update cache directory")
	pf.String("app", "hatch", "Application name, used for the default cache directory")
	pf.String("app-version", "", "Installed application version (defaults to hatch's own)")
	pf.String("variant", "", "Force the installer or portable variant")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.BoolP("quiet", "q", false, "Quiet mode (errors only)")
	_ = settings.BindPFlags(pf)
	_ = settings.BindEnv("host-pid")

	globals := func() globalOptions {
		g := globalOptions{
			Output:     settings.GetString("output"),
			ConfigPath: settings.GetString("config"),
			CacheDir:   settings.GetString("cache-dir"),
			App:        settings.GetString("app"),
			AppVersion: settings.GetString("app-version"),
			Variant:    settings.GetString("variant"),
			Verbose:    settings.GetBool("verbose"),
			Quiet:      settings.GetBool("quiet"),
			HostPID:    settings.GetInt("host-pid"),
		}
		if g.AppVersion == "" {
			g.AppVersion = info.Version
		}
		return g
	}

	rootCmd.AddCommand(newCheckCmd(globals))
	rootCmd.AddCommand(newDownloadCmd(globals))
	rootCmd.AddCommand(newInstallCmd(globals))
	rootCmd.AddCommand(newStatusCmd(globals))
	rootCmd.AddCommand(newCleanCmd(globals))
	rootCmd.AddCommand(newPlanCmd(globals))
	rootCmd.AddCommand(newBlockMapCmd(globals))
	rootCmd.AddCommand(newWatchdogCmd(globals))
	rootCmd.AddCommand(newVersionCmd(globals, info))
	rootCmd.AddCommand(newCompletionCmd())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("variant", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, v := range types.AllVariants() {
			names = append(names, v.String())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}
