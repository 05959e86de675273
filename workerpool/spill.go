package workerpool

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"github.com/karlgluck/tagengine/engine"
)

// SpillRecord is one object's serialized result, the tuple spec.md
// §6 names for the batch spill file: (object_path, initial_tags,
// changed_tags, errors, trace_log, rule_log, property_log, profiling).
type SpillRecord struct {
	ObjectPath  string                     `yaml:"object_path"`
	Initial     map[string]string          `yaml:"initial_tags"`
	Changed     map[string]string          `yaml:"changed_tags"`
	Errors      []engine.EvalError         `yaml:"errors"`
	Trace       []engine.TraceEntry        `yaml:"trace_log"`
	RuleLog     map[string][]engine.LogEntry `yaml:"rule_log"`
	PropertyLog map[string][]engine.LogEntry `yaml:"property_log"`
	Profiling   map[string]string          `yaml:"profiling"`
}

// RecordOf builds a SpillRecord from an evaluator Result. Profiling
// durations are rendered as strings (Go's time.Duration has no plain
// YAML scalar form worth round-tripping through) rather than
// milliseconds as an integer, so the spill file is self-describing.
func RecordOf(res *engine.Result) SpillRecord {
	profiling := make(map[string]string, len(res.Profiling))
	for k, v := range res.Profiling {
		profiling[k] = v.String()
	}
	return SpillRecord{
		ObjectPath:  res.ObjectPath,
		Initial:     res.Initial,
		Changed:     res.Changed,
		Errors:      res.Errors,
		Trace:       res.Trace,
		RuleLog:     res.RuleLog,
		PropertyLog: res.PropertyLog,
		Profiling:   profiling,
	}
}

// SpillWriter serializes SpillRecords as a stream of "---"-delimited
// YAML documents, the single-writer spill file of spec.md §5.
type SpillWriter struct {
	w io.Writer
}

// NewSpillWriter wraps w. The caller owns w's lifetime (flush/close).
func NewSpillWriter(w io.Writer) *SpillWriter {
	return &SpillWriter{w: w}
}

// Write appends one record as a new YAML document.
func (s *SpillWriter) Write(rec SpillRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling spill record for %s: %w", rec.ObjectPath, err)
	}
	if _, err := s.w.Write([]byte("---\n")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("writing spill record for %s: %w", rec.ObjectPath, err)
	}
	return nil
}
