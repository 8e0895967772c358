package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/internal/orchestrator"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

func newScanCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the models directory and update the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			report, err := eng.Rescan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("scanned %s: %d found, %d added, %d removed, %d skipped\n",
				report.ScanPath, report.Found, report.Added, report.Removed, report.Skipped)
			return nil
		},
	}
}

func newModelsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the cataloged models",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(opts)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			models := eng.ListModels()
			if len(models) == 0 {
				fmt.Println("no models cataloged; run `synapsed scan` first")
				return nil
			}
			sort.Slice(models, func(i, j int) bool {
				a, b := models[i], models[j]
				if pa, pb := a.EffectiveTier().Priority(), b.EffectiveTier().Priority(); pa != pb {
					return pa < pb
				}
				return a.ID < b.ID
			})

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIER\tSIZE\tQUANT\tPORT\tENABLED\tFILE")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%gB\t%s\t%s\t%v\t%s\n",
					m.ID, m.EffectiveTier(), m.SizeParams, m.Quantization,
					portLabel(m), m.Enabled, fileLabel(m))
			}
			return tw.Flush()
		},
	}
}

func newEngine(opts *rootOpts) (*orchestrator.Engine, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	log := opts.newLogger(cfg)
	return orchestrator.New(cfg, log, events.NoopPublisher{})
}

func portLabel(m types.ModelEntry) string {
	if m.Port == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *m.Port)
}

// fileLabel shows the filename with its on-disk size when the artifact is
// still present.
func fileLabel(m types.ModelEntry) string {
	fi, err := os.Stat(m.FilePath)
	if err != nil {
		return m.Filename + " (missing)"
	}
	return fmt.Sprintf("%s (%s)", m.Filename, humanize.IBytes(uint64(fi.Size())))
}
