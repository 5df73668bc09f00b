// Package viewer renders scoring results for the terminal: a styled report
// for a single candidate and an interactive browser for hunt results.
package viewer

import (
	"fmt"
	"strings"
	"time"

	"github.com/activecm/beaconsift/beacon"

	"github.com/charmbracelet/lipgloss"
)

// colors
var (
	defaultTextColor = lipgloss.AdaptiveColor{Light: "#2c2b2f", Dark: "#d3cdd4"}
	subduedTextColor = lipgloss.AdaptiveColor{Light: "#454545", Dark: "#A49FA5"}

	// catpuccin theme colors
	red      = lipgloss.AdaptiveColor{Light: "#D2042D", Dark: "#f38ba8"}
	peach    = lipgloss.AdaptiveColor{Light: "#fe640b", Dark: "#fab387"}
	yellow   = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	lavender = lipgloss.AdaptiveColor{Light: "#7287fd", Dark: "#b4befe"}
	mauve    = lipgloss.AdaptiveColor{Light: "#8839ef", Dark: "#cba6f7"}
	sapphire = lipgloss.AdaptiveColor{Light: "#209fb5", Dark: "#74c7ec"}
	green    = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}

	overlay0 = lipgloss.AdaptiveColor{Light: "#9ca0b0", Dark: "#6c7086"}
	surface0 = lipgloss.AdaptiveColor{Light: "#ccd0da", Dark: "#313244"}
	base     = lipgloss.AdaptiveColor{Light: "#eff1f5", Dark: "#1e1e2e"}
	overlay2 = lipgloss.AdaptiveColor{Light: "#7c7f93", Dark: "#9399b2"}
)

const histogramBarMaxWidth = 40

// severity buckets for composite beacon scores
const (
	criticalScore = 0.95
	highScore     = 0.85
	mediumScore   = 0.7
)

// ScoreSeverity names the severity bucket a composite score falls into.
func ScoreSeverity(score float64) string {
	switch {
	case score >= criticalScore:
		return "Critical"
	case score >= highScore:
		return "High"
	case score >= mediumScore:
		return "Medium"
	default:
		return "Low"
	}
}

func severityColor(score float64) lipgloss.AdaptiveColor {
	switch {
	case score >= criticalScore:
		return red
	case score >= highScore:
		return peach
	case score >= mediumScore:
		return yellow
	default:
		return sapphire
	}
}

// RenderReport formats a single candidate's score report, sub-score
// diagnostics and connection histogram for the terminal.
func RenderReport(src string, target string, connections int, report beacon.ScoreReport) string {
	headerLabelStyle := lipgloss.NewStyle().Padding(0, 2).Background(overlay0).Foreground(defaultTextColor).Bold(true)
	headerValueStyle := lipgloss.NewStyle().Padding(0, 2).Background(mauve).Foreground(base).Bold(true)

	srcLine := lipgloss.JoinHorizontal(lipgloss.Left, headerLabelStyle.Render("SRC"), headerValueStyle.Render(src))
	dstLine := lipgloss.JoinHorizontal(lipgloss.Left, headerLabelStyle.Render("DST"), headerValueStyle.Render(target))
	heading := lipgloss.JoinVertical(lipgloss.Top, srcLine, dstLine)

	sectionStyle := lipgloss.NewStyle().
		Foreground(overlay2).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(surface0)

	scoreStyle := lipgloss.NewStyle().Foreground(severityColor(report.Score)).Bold(true)
	compositeLine := fmt.Sprintf("%s  %s (%s)",
		lipgloss.NewStyle().Bold(true).Render("Beacon Score:"),
		scoreStyle.Render(fmt.Sprintf("%.3f", report.Score)),
		ScoreSeverity(report.Score))

	labelStyle := lipgloss.NewStyle().Foreground(subduedTextColor).Width(22)
	row := func(label string, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render(label), value)
	}

	subScores := lipgloss.JoinVertical(lipgloss.Top,
		sectionStyle.Render("「 Sub-Scores 」"),
		row("Timestamp", fmt.Sprintf("%.3f", report.TimestampScore)),
		row("Data Size", fmt.Sprintf("%.3f", report.DataSizeScore)),
		row("Histogram", fmt.Sprintf("%.3f", report.HistogramScore)),
		row("Duration", fmt.Sprintf("%.3f", report.DurationScore)),
	)

	diagnostics := lipgloss.JoinVertical(lipgloss.Top,
		sectionStyle.Render("「 Diagnostics 」"),
		row("Connections", fmt.Sprintf("%d", connections)),
		row("Interval Mode", fmt.Sprintf("%ds seen %d times", report.TSMode, report.TSModeCount)),
		row("Size Mode", fmt.Sprintf("%dB seen %d times", report.DSMode, report.DSModeCount)),
		row("TS Skew / MADM", fmt.Sprintf("%.3f / %.1f", report.TSSkew, report.TSMadm)),
		row("DS Skew / MADM", fmt.Sprintf("%.3f / %.1f", report.DSSkew, report.DSMadm)),
		row("Active Hours", fmt.Sprintf("%d", report.TotalBars)),
		row("Longest Run", fmt.Sprintf("%dh", report.LongestRun)),
		row("Coverage", fmt.Sprintf("%.3f", report.Coverage)),
		row("Consistency", fmt.Sprintf("%.3f", report.Consistency)),
	)

	histogram := lipgloss.JoinVertical(lipgloss.Top,
		sectionStyle.Render("「 Connection Histogram 」"),
		RenderHistogram(report.BucketDivs, report.FreqList),
	)

	return lipgloss.JoinVertical(lipgloss.Top,
		heading,
		"",
		compositeLine,
		"",
		subScores,
		"",
		diagnostics,
		"",
		histogram,
	) + "\n"
}

// RenderHistogram draws the bucketed connection histogram as horizontal bars,
// one row per bucket, labelled with the bucket's start time.
func RenderHistogram(bucketDivs []int64, freqList []int) string {
	if len(bucketDivs) < 2 || len(freqList) != len(bucketDivs)-1 {
		return ""
	}

	maxFreq := 0
	for _, freq := range freqList {
		if freq > maxFreq {
			maxFreq = freq
		}
	}

	barStyle := lipgloss.NewStyle().Foreground(lavender)
	labelStyle := lipgloss.NewStyle().Foreground(subduedTextColor)

	var rows []string
	for i, freq := range freqList {
		label := time.Unix(bucketDivs[i], 0).UTC().Format("15:04")

		barWidth := 0
		if maxFreq > 0 && freq > 0 {
			// scale bars to the busiest bucket, keeping at least one block
			// for any bucket with activity
			barWidth = freq * histogramBarMaxWidth / maxFreq
			if barWidth < 1 {
				barWidth = 1
			}
		}

		rows = append(rows, fmt.Sprintf("%s %s %d",
			labelStyle.Render(label),
			barStyle.Render(strings.Repeat("▌", barWidth)),
			freq))
	}

	return strings.Join(rows, "\n")
}
