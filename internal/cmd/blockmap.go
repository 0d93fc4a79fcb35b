package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/update"
)

type blockMapOptions struct {
	Out       string
	Embed     bool
	BlockSize int64
}

func newBlockMapCmd(globals func() globalOptions) *cobra.Command {
	var opts blockMapOptions

	cmd := &cobra.Command{
		Use:   "blockmap <file>",
		Short: "Generate the block map published next to an artifact",
		Long: `Split an artifact into blocks and write its block map.

By default the map is written to <file>.blockmap. With --embed it is
appended to the artifact itself, which is how package files and portable
executables carry their map.

Examples:
  hatch blockmap "dist/App Setup 1.1.0.exe"
  hatch blockmap dist/app-1.1.0-x64.nsis.7z --embed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockMap(cmd.OutOrStdout(), cmd.ErrOrStderr(), globals(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "Output path (default <file>.blockmap)")
	cmd.Flags().BoolVar(&opts.Embed, "embed", false, "Append the map to the file instead of writing it alongside")
	cmd.Flags().Int64Var(&opts.BlockSize, "block-size", blockmap.DefaultBlockSize, "Block size in bytes")

	return cmd
}

func runBlockMap(stdout, stderr io.Writer, g globalOptions, file string, opts blockMapOptions) error {
	format, err := output.ParseFormat(g.Output)
	if err != nil {
		return err
	}
	if opts.Embed && opts.Out != "" {
		return fmt.Errorf("--out and --embed are mutually exclusive")
	}
	logger := newLogger(stderr, g)

	m, err := blockmap.BuildFile(file, opts.BlockSize)
	if err != nil {
		return err
	}

	report := output.BlockMapReport{
		File:     file,
		Size:     m.Size,
		Blocks:   len(m.Blocks),
		Checksum: m.Checksum,
		Embedded: opts.Embed,
	}

	if opts.Embed {
		f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		n, err := blockmap.AppendEmbedded(f, m)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to embed block map: %w", err)
		}
		logger.Debug("embedded block map", "file", file, "payload", n)
		report.Output = file
	} else {
		out := opts.Out
		if out == "" {
			out = file + update.BlockMapSuffix
		}
		data, err := blockmap.Marshal(m)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write block map: %w", err)
		}
		logger.Debug("wrote block map", "path", out, "bytes", len(data))
		report.Output = out
	}

	return output.NewWriter(stdout, format).Write(report)
}
