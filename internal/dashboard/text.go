package dashboard

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
)

// RenderText writes a terminal version of the dashboard
func RenderText(w io.Writer, v View) error {
	var b strings.Builder

	fmt.Fprintf(&b, "REPORT %s  %s\n", v.ReportID, v.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "VERDICT  %s\n", v.Verdict)
	fmt.Fprintf(&b, "SCORE    %s (confidence %s)\n\n", v.Score, v.Confidence)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tSTATUS\tSCORE\tOBSERVATION")
	for _, f := range v.Features {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", f.Label, f.Status, f.Score, f.Observation)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "failed to lay out feature table")
	}

	b.WriteString("\nANOMALIES\n")
	if len(v.Anomalies) == 0 {
		fmt.Fprintf(&b, "  %s\n", NoAnomaliesMessage)
	}
	for _, a := range v.Anomalies {
		fmt.Fprintf(&b, "  %s  %-6s  %s\n", a.Offset, a.Severity, a.Description)
	}

	fmt.Fprintf(&b, "\nSUMMARY\n  %s\n", v.Summary)
	fmt.Fprintf(&b, "\nRECOMMENDATION\n  %s\n", v.Recommendation)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "failed to write report")
	}
	return nil
}
