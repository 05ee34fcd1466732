// Package output provides table rendering helpers for CLI commands.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// newTable returns a tablewriter configured for clean, borderless output.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes rows as a formatted table with the given headers.
func PrintTable(w io.Writer, headers []string, rows [][]string) {
	table := newTable(w)
	table.SetHeader(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// PrintPairs writes a two-column key/value table without headers.
func PrintPairs(w io.Writer, pairs [][2]string) {
	table := newTable(w)
	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}
	table.Render()
}
