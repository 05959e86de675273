// Package render composes the human-readable mash.log report from an
// evaluator result, per spec.md §4.7.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/karlgluck/tagengine/engine"
)

const truncateLimit = 32

// truncate shortens s to 29 characters plus "..." when it exceeds 32,
// the literal rule spec.md §4.7 gives for inline string values.
func truncate(s string) string {
	if len(s) <= truncateLimit {
		return s
	}
	return s[:29] + "..."
}

// perform renders messageTemplate against ctx the way the teacher's
// createPerformString renders a rule's violation message: a thin
// wrapper so every section below goes through one template call site.
func perform(messageTemplate string, ctx map[string]interface{}) string {
	out, err := mustache.Render(messageTemplate, ctx)
	if err != nil {
		return messageTemplate
	}
	return out
}

// Report renders the full top-to-bottom text described in spec.md
// §4.7: summary, errors, updated tags, trace, per-rule log,
// per-property log, profiling, and rule definitions.
func Report(res *engine.Result, reg *engine.Registry) string {
	var b strings.Builder

	writeSummary(&b, res)
	writeErrors(&b, res)
	writeUpdatedTags(&b, res)
	writeTrace(&b, res, reg)
	writeRuleLog(&b, res, reg)
	writePropertyLog(&b, res, reg)
	writeProfiling(&b, res)
	writeRuleDefinitions(&b, reg)

	return b.String()
}

func ruleRef(reg *engine.Registry, id string) string {
	if reg == nil {
		return id
	}
	if r, ok := reg.Rule(id); ok {
		return r.Ref()
	}
	return id
}

func writeSummary(b *strings.Builder, res *engine.Result) {
	b.WriteString(perform("=== Summary for {{object}} ===\n", map[string]interface{}{"object": res.ObjectPath}))
	b.WriteString(perform("{{changed}} tag(s) changed, {{errors}} error(s), {{steps}} step(s) traced.\n\n", map[string]interface{}{
		"changed": len(res.Changed),
		"errors":  len(res.Errors),
		"steps":   len(res.Trace),
	}))
}

func writeErrors(b *strings.Builder, res *engine.Result) {
	if len(res.Errors) == 0 {
		return
	}
	b.WriteString("=== Errors ===\n")
	for _, e := range res.Errors {
		b.WriteString(perform("[{{index}}] {{kind}} {{rule}}: {{message}}\n", map[string]interface{}{
			"index":   e.TraceIndex,
			"kind":    string(e.Kind),
			"rule":    e.RuleRef,
			"message": e.Message,
		}))
	}
	b.WriteString("\n")
}

func writeUpdatedTags(b *strings.Builder, res *engine.Result) {
	b.WriteString("=== Updated Tags ===\n")
	names := sortedKeys(res.Changed)
	for _, name := range names {
		old, hadOld := res.Initial[name]
		note := "new"
		if hadOld {
			note = fmt.Sprintf("was %q", truncate(old))
		}
		b.WriteString(perform("{{name}} = {{value}} ({{note}})\n", map[string]interface{}{
			"name":  name,
			"value": truncate(res.Changed[name]),
			"note":  note,
		}))
	}
	b.WriteString("\n")
}

func writeTrace(b *strings.Builder, res *engine.Result, reg *engine.Registry) {
	b.WriteString("=== Execution Trace ===\n")
	for _, t := range res.Trace {
		b.WriteString(perform("[{{index}}] {{rule}}: {{note}}\n", map[string]interface{}{
			"index": t.Index,
			"rule":  ruleRef(reg, t.RuleID),
			"note":  t.Note,
		}))
	}
	b.WriteString("\n")
}

func writeRuleLog(b *strings.Builder, res *engine.Result, reg *engine.Registry) {
	b.WriteString("=== Rule Evaluations ===\n")
	for _, id := range sortedKeysLog(res.RuleLog) {
		b.WriteString(perform("-- {{rule}} --\n", map[string]interface{}{"rule": ruleRef(reg, id)}))
		for _, entry := range res.RuleLog[id] {
			b.WriteString(perform("  [{{index}}] {{note}}\n", map[string]interface{}{"index": entry.TraceIndex, "note": entry.Note}))
		}
	}
	b.WriteString("\n")
}

// writePropertyLog lists every tag a rule either read (bound as an
// input) or wrote, per spec.md §4.7 -- a read-only tag still gets a
// header naming its readers even though it has no PropertyLog entries
// of its own.
func writePropertyLog(b *strings.Builder, res *engine.Result, reg *engine.Registry) {
	b.WriteString("=== Property Evaluations ===\n")
	seen := make(map[string]struct{}, len(res.PropertyLog)+len(res.Readers))
	for name := range res.PropertyLog {
		seen[name] = struct{}{}
	}
	for name := range res.Readers {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		writers := res.Writers[name]
		writerRefs := make([]string, 0, len(writers))
		for _, w := range writers {
			writerRefs = append(writerRefs, ruleRef(reg, w.RuleID))
		}
		readers := res.Readers[name]
		readerRefs := make([]string, 0, len(readers))
		for _, r := range readers {
			readerRefs = append(readerRefs, ruleRef(reg, r.RuleID))
		}
		b.WriteString(perform("-- {{tag}} (writers: {{writers}}; readers: {{readers}}) --\n", map[string]interface{}{
			"tag":     name,
			"writers": strings.Join(writerRefs, ", "),
			"readers": strings.Join(readerRefs, ", "),
		}))
		for _, entry := range res.PropertyLog[name] {
			b.WriteString(perform("  [{{index}}] {{note}}\n", map[string]interface{}{"index": entry.TraceIndex, "note": entry.Note}))
		}
	}
	b.WriteString("\n")
}

func writeProfiling(b *strings.Builder, res *engine.Result) {
	b.WriteString("=== Profiling ===\n")
	type row struct {
		key string
		ns  int64
	}
	rows := make([]row, 0, len(res.Profiling))
	for k, v := range res.Profiling {
		if k == "total" {
			continue
		}
		rows = append(rows, row{key: k, ns: v.Nanoseconds()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ns > rows[j].ns })
	for _, r := range rows {
		b.WriteString(perform("{{key}}: {{ms}}ms\n", map[string]interface{}{"key": r.key, "ms": r.ns / 1e6}))
	}
	if total, ok := res.Profiling["total"]; ok {
		b.WriteString(perform("total: {{ms}}ms\n", map[string]interface{}{"ms": total.Nanoseconds() / 1e6}))
	}
	b.WriteString("\n")
}

func writeRuleDefinitions(b *strings.Builder, reg *engine.Registry) {
	b.WriteString("=== Rule Definitions ===\n")
	if reg == nil {
		return
	}
	for _, id := range reg.AllRules() {
		r, ok := reg.Rule(id)
		if !ok {
			continue
		}
		b.WriteString(perform("{{ref}}: in {{in}} out {{out}} kind={{kind}} ({{file}})\n", map[string]interface{}{
			"ref":  r.Ref(),
			"in":   strings.Join(r.In, ", "),
			"out":  strings.Join(r.Out, ", "),
			"kind": r.Kind.String(),
			"file": r.SourceFile,
		}))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysLog(m map[string][]engine.LogEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
