package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/differential"
	"github.com/adamancini/hatch/internal/output"
)

type planOptions struct {
	OldMap   string
	NewMap   string
	Embedded bool
}

func newPlanCmd(globals func() globalOptions) *cobra.Command {
	var opts planOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which ranges a differential download would reuse or fetch",
		Long: `Compare two block maps and print the download plan between them.

With --embedded the arguments are artifacts carrying an embedded block map
instead of standalone .blockmap files.

Examples:
  hatch plan --old "App Setup 1.0.0.exe.blockmap" --new "App Setup 1.1.0.exe.blockmap"
  hatch plan --old App-1.0.0.AppImage --new App-1.1.0.AppImage --embedded`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.OutOrStdout(), cmd.ErrOrStderr(), globals(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.OldMap, "old", "", "Block map of the installed artifact")
	cmd.Flags().StringVar(&opts.NewMap, "new", "", "Block map of the new artifact")
	cmd.Flags().BoolVar(&opts.Embedded, "embedded", false, "Read block maps embedded in the artifacts")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")

	return cmd
}

func runPlan(stdout, stderr io.Writer, g globalOptions, opts planOptions) error {
	format, err := output.ParseFormat(g.Output)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, g)

	oldMap, err := readBlockMap(opts.OldMap, opts.Embedded)
	if err != nil {
		return err
	}
	newMap, err := readBlockMap(opts.NewMap, opts.Embedded)
	if err != nil {
		return err
	}

	plan, err := differential.ComputePlan(oldMap, newMap)
	if err != nil {
		return err
	}
	logger.Debug("computed plan", "ranges", len(plan.Ranges), "fetch", plan.FetchBytes(), "reuse", plan.ReuseBytes())

	report := output.PlanReport{
		Size:       plan.Size,
		ReuseBytes: plan.ReuseBytes(),
		FetchBytes: plan.FetchBytes(),
		Ranges:     make([]output.RangeLine, 0, len(plan.Ranges)),
	}
	for _, r := range plan.Ranges {
		report.Ranges = append(report.Ranges, output.RangeLine{Start: r.Start, End: r.End, Source: r.Source.String()})
	}
	return output.NewWriter(stdout, format).Write(report)
}

func readBlockMap(path string, embedded bool) (*blockmap.BlockMap, error) {
	if !embedded {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read block map: %w", err)
		}
		m, err := blockmap.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m, _, err := blockmap.ReadEmbedded(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
