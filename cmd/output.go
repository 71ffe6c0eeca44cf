package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// maxCellWidth caps table cells so long descriptions do not wrap rows.
const maxCellWidth = 48

// table is a simple text table.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = cell(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// cell flattens s to one line and truncates it by display width.
func cell(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if s == "" {
		return "-"
	}
	return runewidth.Truncate(s, maxCellWidth, "…")
}

// render prints v in the selected --output format, calling tableFn for table.
func render(v any, tableFn func() *table) error {
	return renderTo(os.Stdout, outputFormat, v, tableFn)
}

func renderTo(w io.Writer, format string, v any, tableFn func() *table) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		if tableFn == nil {
			return renderTo(w, "yaml", v, nil)
		}
		t := tableFn()
		if len(t.rows) == 0 {
			fmt.Fprintln(w, "(none)")
			return nil
		}
		t.render(w)
		return nil
	}
}
