package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/karlgluck/tagengine/engine"
)

// CSVEscape replaces commas and newlines the way spec.md §6 requires
// for the optional CSV export: commas become ";" and newlines become a
// single space. This is deliberately not RFC 4180 quoting -- the
// source's own CSV export never quotes fields either.
func CSVEscape(value string) string {
	value = strings.ReplaceAll(value, ",", ";")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}

// WriteCSV writes one row per result to w: "path" followed by the
// union of every tag name across all results (sorted), plus "#errors"
// as the final column.
func WriteCSV(w io.Writer, results []*engine.Result) error {
	tagNames := make(map[string]struct{})
	for _, res := range results {
		for name := range res.Context {
			tagNames[name] = struct{}{}
		}
	}
	columns := make([]string, 0, len(tagNames))
	for name := range tagNames {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	header := append([]string{"path"}, columns...)
	header = append(header, "#errors")
	if _, err := fmt.Fprintln(w, strings.Join(header, ",")); err != nil {
		return err
	}

	for _, res := range results {
		row := make([]string, 0, len(header))
		row = append(row, CSVEscape(res.ObjectPath))
		for _, col := range columns {
			row = append(row, CSVEscape(res.Context[col]))
		}
		row = append(row, CSVEscape(errorsColumn(res)))
		if _, err := fmt.Fprintln(w, strings.Join(row, ",")); err != nil {
			return err
		}
	}
	return nil
}

func errorsColumn(res *engine.Result) string {
	lines := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}
