package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/robert-malhotra/wekeo-mosaic/internal/report"
)

func printReport(w io.Writer, rep *report.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep.Summary())
	case "pretty", "":
		printPrettyReport(w, rep.Summary())
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettyReport(w io.Writer, s report.Summary) {
	fmt.Fprintf(w, "Started:  %s\n", s.Started.Format(time.RFC3339))
	if !s.Finished.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", s.Finished.Sub(s.Started).Round(time.Second))
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Aborted:  %s\n", s.Error)
	}
	fmt.Fprintln(w)

	for _, r := range s.Results {
		status := "OK"
		switch r.Status {
		case report.StatusSkipped:
			status = "SKIP"
		case report.StatusPartial:
			status = "PART"
		}
		line := fmt.Sprintf("- [%s] %-9s %s", status, r.Stage, r.Key)
		if r.Detail != "" {
			line += " -> " + r.Detail
		}
		if r.Reason != "" {
			line += ": " + r.Reason
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d ok, %d partial, %d skipped\n", s.Counts.OK, s.Counts.Partial, s.Counts.Skipped)
	fmt.Fprintf(w, "Outputs (%d):\n", len(s.Outputs))
	for _, o := range s.Outputs {
		fmt.Fprintf(w, "  %s\n", o)
	}
}
