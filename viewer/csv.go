package viewer

import (
	"fmt"
	"strings"

	"github.com/activecm/beaconsift/ingest"
)

// FormatToCSV renders hunt results as comma-delimited text, one candidate
// per row, suitable for piping into spreadsheet or SIEM tooling.
func FormatToCSV(results []ingest.HuntResult) string {
	// define the columns for the CSV output
	columns := []string{
		"Severity",
		"Source IP",
		"Destination IP",
		"Beacon Score",
		"Timestamp Score",
		"Data Size Score",
		"Histogram Score",
		"Duration Score",
		"Connection Count",
	}

	// loop over the results and format into rows and columns
	data := make([]string, 0, len(results))
	for _, result := range results {
		fields := []string{
			ScoreSeverity(result.Report.Score), result.Src, result.Dst,
			fmt.Sprintf("%.3f", result.Report.Score),
			fmt.Sprintf("%.3f", result.Report.TimestampScore), fmt.Sprintf("%.3f", result.Report.DataSizeScore),
			fmt.Sprintf("%.3f", result.Report.HistogramScore), fmt.Sprintf("%.3f", result.Report.DurationScore),
			fmt.Sprint(result.Connections),
		}

		// create comma-delimited string from each field in this row
		data = append(data, strings.Join(fields, ","))
	}

	// combine the columns and data into a CSV output
	csvOutput := []string{
		strings.Join(columns, ","),
		// print comma-delimited rows, one per line
		strings.Join(data, "\n"),
	}
	return strings.Join(csvOutput, "\n")
}
