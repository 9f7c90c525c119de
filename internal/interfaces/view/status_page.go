// Package view renders the HTML status page.
package view

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/dreschagin/pagespeed-monitor/internal/application/dto"
)

// StatusPageData holds everything the status page shows.
type StatusPageData struct {
	Status   *dto.RunStatusDTO
	Stats    *dto.StatsDTO
	Recent   []*dto.MeasurementDTO
	Location *time.Location
}

const refreshWhileRunning = 10

// StatusPage renders the run status, the aggregate stats and the latest measurements.
func StatusPage(data StatusPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		loc := data.Location
		if loc == nil {
			loc = time.UTC
		}

		p := &printer{w: w}
		p.raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
		if data.Status != nil && data.Status.Running {
			p.raw(fmt.Sprintf("<meta http-equiv=\"refresh\" content=\"%d\">\n", refreshWhileRunning))
		}
		p.raw("<title>PageSpeed Monitor</title>\n")
		p.raw("<style>body{font-family:sans-serif;margin:2rem;color:#222}table{border-collapse:collapse}" +
			"td,th{padding:.3rem .8rem;border-bottom:1px solid #ddd;text-align:left}" +
			".Good{color:#0a7d32}.NeedsImprovement{color:#b26a00}.Poor,.Failed{color:#c62828}</style>\n")
		p.raw("</head>\n<body>\n<h1>PageSpeed Monitor</h1>\n")

		renderRunStatus(p, data.Status, loc)
		renderStats(p, data.Stats)
		renderRecent(p, data.Recent)

		p.raw("</body>\n</html>\n")
		return p.err
	})
}

func renderRunStatus(p *printer, status *dto.RunStatusDTO, loc *time.Location) {
	p.raw("<section id=\"run\">\n<h2>Measurement run</h2>\n<table>\n")
	if status == nil {
		p.row("Outcome", "idle")
		p.raw("</table>\n</section>\n")
		return
	}

	p.row("Outcome", status.Outcome)
	if status.RunID != "" {
		p.row("Run", status.RunID)
		p.row("Trigger", status.Trigger)
		p.row("Network", status.Network)
		p.row("Progress", fmt.Sprintf("%d / %d (failed %d)", status.Completed+status.Failed, status.Total, status.Failed))
	}
	if status.Message != "" {
		p.row("Message", status.Message)
	}
	if status.TimedOut {
		p.row("Timed out", "yes")
	}
	if status.StartedAt != nil {
		p.row("Started", formatTime(*status.StartedAt, loc))
	}
	if status.FinishedAt != nil {
		p.row("Finished", formatTime(*status.FinishedAt, loc))
	}
	if status.NextScheduledRun != nil {
		p.row("Next scheduled run", formatTime(*status.NextScheduledRun, loc))
	}
	p.raw("</table>\n</section>\n")
}

func renderStats(p *printer, stats *dto.StatsDTO) {
	if stats == nil {
		return
	}
	p.raw("<section id=\"stats\">\n<h2>Summary</h2>\n<table>\n")
	p.row("Average score", fmt.Sprintf("%.1f", stats.AverageScore))
	p.row("Active URLs", fmt.Sprintf("%d", stats.ActiveTargets))
	p.row("Measurements", fmt.Sprintf("%d", stats.TotalMeasurements))
	p.raw("</table>\n</section>\n")
}

func renderRecent(p *printer, recent []*dto.MeasurementDTO) {
	if len(recent) == 0 {
		return
	}
	p.raw("<section id=\"recent\">\n<h2>Latest measurements</h2>\n<table>\n")
	p.raw("<tr><th>Measured</th><th>URL</th><th>Network</th><th>Score</th><th>Status</th></tr>\n")
	for _, m := range recent {
		p.raw("<tr><td>")
		p.text(m.MeasuredAtLocal)
		p.raw("</td><td>")
		p.text(m.URL)
		p.raw("</td><td>")
		p.text(m.Network)
		p.raw("</td><td>")
		p.text(fmt.Sprintf("%d", m.PerformanceScore))
		p.raw("</td><td class=\"")
		p.text(m.Status)
		p.raw("\">")
		p.text(m.Status)
		p.raw("</td></tr>\n")
	}
	p.raw("</table>\n</section>\n")
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// printer keeps the first write error so that rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *printer) row(label, value string) {
	p.raw("<tr><th>")
	p.text(label)
	p.raw("</th><td>")
	p.text(value)
	p.raw("</td></tr>\n")
}
