package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karlgluck/tagengine/engine"
)

func TestCSVEscapeReplacesCommasAndNewlines(t *testing.T) {
	assert.Equal(t, "a; b c", CSVEscape("a, b\nc"))
}

func TestWriteCSVHeaderAndRow(t *testing.T) {
	results := []*engine.Result{
		{
			ObjectPath: "/objs/a",
			Context:    map[string]string{"k": "v", "j": "w"},
			Errors:     nil,
		},
	}
	var b strings.Builder
	require.NoError(t, WriteCSV(&b, results))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "path,j,k,#errors", lines[0])
	assert.Equal(t, "/objs/a,w,v,", lines[1])
}

func TestReportListsReadersForReadOnlyTags(t *testing.T) {
	reg := engine.NewRegistry()
	res := &engine.Result{
		ObjectPath: "/objs/a",
		Initial:    map[string]string{"x": "41"},
		Changed:    map[string]string{},
		Readers:    map[string][]engine.PropertyWrite{"x": {{RuleID: "r1", TraceIndex: 0}}},
	}
	text := Report(res, reg)
	assert.Contains(t, text, "-- x (writers: ; readers: r1) --")
}

func TestReportIncludesSummaryAndTrace(t *testing.T) {
	reg := engine.NewRegistry()
	res := &engine.Result{
		ObjectPath: "/objs/a",
		Initial:    map[string]string{"x": "41"},
		Changed:    map[string]string{"y": "42"},
		Trace:      []engine.TraceEntry{{Index: 0, RuleID: "r1", Note: "ran in 1ms"}},
		RuleLog:    map[string][]engine.LogEntry{"r1": {{TraceIndex: 0, Note: "ran in 1ms"}}},
		Profiling:  map[string]time.Duration{"r1": time.Millisecond, "total": time.Millisecond},
	}
	text := Report(res, reg)
	assert.Contains(t, text, "Summary for /objs/a")
	assert.Contains(t, text, "y = 42 (new)")
	assert.Contains(t, text, "Execution Trace")
}
