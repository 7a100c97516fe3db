// Package report prints run results for the loadgen CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// Palette used by the text report. Colours degrade to plain text when w is
// not a terminal.
var (
	successColor = lipgloss.AdaptiveColor{Light: "#008800", Dark: "#9ece6a"}
	warningColor = lipgloss.AdaptiveColor{Light: "#ff8800", Dark: "#ffb86c"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#cc0000", Dark: "#f7768e"}
	faintColor   = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#565f89"}
)

const labelWidth = 20

// JSON writes the run as indented JSON.
func JSON(w io.Writer, run *domain.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// Text writes a human readable summary of the run.
func Text(w io.Writer, run *domain.Run) error {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	label := r.NewStyle().Width(labelWidth).Foreground(faintColor)
	section := r.NewStyle().Bold(true).MarginTop(1)

	statusStyle := r.NewStyle().Bold(true).Foreground(successColor)
	switch {
	case run.Status == domain.RunStatusFailed:
		statusStyle = statusStyle.Foreground(errorColor)
	case run.Summary != nil && run.Summary.VUsersFailed > 0:
		statusStyle = statusStyle.Foreground(warningColor)
	}

	var b strings.Builder
	row := func(k, v string) {
		if len(k) >= labelWidth {
			b.WriteString(k + " " + v + "\n")
			return
		}
		b.WriteString(label.Render(k) + v + "\n")
	}

	b.WriteString(title.Render("Run "+run.ID) + "  " + statusStyle.Render(string(run.Status)) + "\n")
	if run.Name != "" {
		row("name", run.Name)
	}
	row("target", run.Target)
	if run.Error != "" {
		row("error", r.NewStyle().Foreground(errorColor).Render(run.Error))
	}

	if s := run.Summary; s != nil {
		row("duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String())

		b.WriteString(section.Render("Virtual users") + "\n")
		row("created", strconv.FormatInt(s.VUsersCreated, 10))
		row("completed", strconv.FormatInt(s.VUsersCompleted, 10))
		row("failed", strconv.FormatInt(s.VUsersFailed, 10))

		b.WriteString(section.Render("Requests") + "\n")
		row("total", strconv.FormatInt(s.Requests, 10))
		row("errors", strconv.FormatInt(s.Errors, 10))
		row("rps", strconv.FormatFloat(s.RPS, 'f', 2, 64))
		for _, code := range sortedKeys(s.Codes) {
			row("code "+strconv.Itoa(code), strconv.FormatInt(s.Codes[code], 10))
		}
		for _, kind := range sortedKeys(s.ErrorKinds) {
			row("error "+kind, strconv.FormatInt(s.ErrorKinds[kind], 10))
		}

		b.WriteString(section.Render("Latency (ms)") + "\n")
		row("min / max", fmt.Sprintf("%.1f / %.1f", s.Latency.Min, s.Latency.Max))
		row("mean / median", fmt.Sprintf("%.1f / %.1f", s.Latency.Mean, s.Latency.Median))
		row("p95 / p99", fmt.Sprintf("%.1f / %.1f", s.Latency.P95, s.Latency.P99))

		if len(s.Counters) > 0 {
			b.WriteString(section.Render("Counters") + "\n")
			for _, name := range sortedKeys(s.Counters) {
				row(name, strconv.FormatFloat(s.Counters[name], 'f', -1, 64))
			}
		}
		if len(s.Histograms) > 0 {
			b.WriteString(section.Render("Histograms") + "\n")
			for _, name := range sortedKeys(s.Histograms) {
				h := s.Histograms[name]
				row(name, fmt.Sprintf("median %.1f  p95 %.1f  max %.1f", h.Median, h.P95, h.Max))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
