package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/folio/pkg/tool"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Report whether the external rendering engines resolve on PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := tool.Lookup(cfg.Pipeline.Programs(), "rasterizer", "converter")
			if err := writeReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			for _, s := range report {
				if !s.Found {
					return fmt.Errorf("%s %q not found", s.Name, s.Program)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func writeReport(w io.Writer, report []tool.Status, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tPROGRAM\tSTATUS")
	for _, s := range report {
		status := "missing"
		if s.Found {
			status = s.Path
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Program, status)
	}
	return tw.Flush()
}
