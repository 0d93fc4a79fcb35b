package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/output"
)

type versionReport struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func (v versionReport) String() string {
	return fmt.Sprintf("hatch version %s (commit %s, built %s)", v.Version, v.Commit, v.Date)
}

func newVersionCmd(globals func() globalOptions, info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), globals(), info)
		},
	}
}

func runVersion(stdout io.Writer, g globalOptions, info buildInfo) error {
	format, err := output.ParseFormat(g.Output)
	if err != nil {
		return err
	}
	return output.NewWriter(stdout, format).Write(versionReport(info))
}
