package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/skilldag/skilldag/pkg/engine"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
)

// statusColor picks the color a status is printed in.
func statusColor(status engine.ExecutionStatus) *color.Color {
	switch status {
	case engine.StatusCompleted:
		return green
	case engine.StatusFailed:
		return red
	case engine.StatusSkipped, engine.StatusCancelled:
		return yellow
	default:
		return faint
	}
}

func statusMark(status engine.ExecutionStatus) string {
	switch status {
	case engine.StatusCompleted:
		return "✓"
	case engine.StatusFailed:
		return "✗"
	default:
		return "-"
	}
}

// printSummary writes one line per node followed by the run totals.
func printSummary(w io.Writer, workflow string, result *engine.DAGExecutionResult) {
	bold.Fprintf(w, "%s", workflow)
	fmt.Fprintf(w, "  run %s  ", result.RunID)
	statusColor(result.Status).Fprintf(w, "%s", result.Status)
	fmt.Fprintf(w, " in %s\n\n", result.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, res := range result.Results {
		c := statusColor(res.Status)
		detail := ""
		switch {
		case res.Status == engine.StatusCompleted && res.RetryCount > 0:
			detail = fmt.Sprintf("after %d retries", res.RetryCount)
		case res.Status == engine.StatusFailed:
			detail = fmt.Sprintf("%d attempts: %s", res.RetryCount, res.Error)
		case res.Error != "":
			detail = res.Error
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			c.Sprint(statusMark(res.Status)),
			res.SkillName,
			c.Sprint(res.Status),
			res.Duration.Round(time.Millisecond),
			detail,
		)
	}
	_ = tw.Flush()

	s := result.Summary()
	fmt.Fprintf(w, "\n%d nodes: %d completed, %d failed, %d skipped, %d cancelled (%d retries)\n",
		s.Total, s.Completed, s.Failed, s.Skipped, s.Cancelled, s.Retries)
}
