// Package harness executes declarative YAML scenarios against the full
// core: a fresh file store, the dispatcher with all engines wired, a
// deterministic ID sequence, and a fixed clock. Scenarios exercise the
// same paths an embedding application would, so they double as
// executable documentation of the platform's invariants.
package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/jamhub/jamhub/internal/content"
	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/schema"
	"github.com/jamhub/jamhub/internal/store"
	"github.com/jamhub/jamhub/internal/testutil"
)

// FixedTime is the clock every scenario runs under, so timestamps in
// golden snapshots are stable.
var FixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Runner executes scenarios against one store.
type Runner struct {
	files      *store.Store
	dispatcher *content.Dispatcher

	// bindings maps save_as names to record IDs.
	bindings map[string]string
}

// NewRunner creates a runner over a fresh store rooted at dir.
func NewRunner(dir string) (*Runner, error) {
	files, err := store.Open(dir, store.WithIDGenerator(testutil.NewIDSequence()))
	if err != nil {
		return nil, err
	}
	cfg, err := schema.Default()
	if err != nil {
		return nil, err
	}
	return &Runner{
		files:      files,
		dispatcher: content.New(files, cfg),
		bindings:   make(map[string]string),
	}, nil
}

// Files exposes the underlying store for snapshotting.
func (r *Runner) Files() *store.Store { return r.files }

// Run executes every step, then every assertion. The first failure
// aborts with an error naming the step or assertion.
func (r *Runner) Run(s *Scenario) error {
	restore := record.FixedNow(FixedTime)
	defer restore()

	for i, step := range s.Steps {
		if err := r.runStep(&step); err != nil {
			return fmt.Errorf("scenario %s: steps[%d] (%s %s): %w", s.Name, i, step.Op, step.Type, err)
		}
	}
	for i, a := range s.Assertions {
		if err := r.runAssertion(&a); err != nil {
			return fmt.Errorf("scenario %s: assertions[%d] (%s %s): %w", s.Name, i, a.Type, a.Table, err)
		}
	}
	return nil
}

func (r *Runner) runStep(step *Step) error {
	user := content.User{ID: r.resolveString(step.As)}

	var rec *record.Record
	var err error
	switch step.Op {
	case "content.create":
		rec, err = r.dispatcher.CreateContent(step.Type, r.resolveMap(step.Data), user)
	case "content.update":
		rec, err = r.dispatcher.UpdateContent(step.Type, r.resolveString(step.ID), r.resolveMap(step.Updates), user)
	case "content.delete":
		rec, err = r.dispatcher.DeleteContent(step.Type, r.resolveString(step.ID), user)
	case "relation.create":
		rec, err = r.dispatcher.Relations().Create(step.Type, r.resolveMap(step.Data))
	case "relation.update":
		var updated []*record.Record
		updated, err = r.dispatcher.Relations().Update(step.Type, r.resolveMap(step.Filters), r.resolveMap(step.Updates))
		if err == nil && len(updated) > 0 {
			rec = updated[0]
		}
	case "relation.delete":
		_, err = r.dispatcher.Relations().Delete(step.Type, r.resolveMap(step.Filters))
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.Expect != nil && step.Expect.Error != "" {
		if err == nil {
			return fmt.Errorf("expected %s fault, got success", step.Expect.Error)
		}
		if got := string(fault.CodeOf(err)); got != step.Expect.Error {
			return fmt.Errorf("expected %s fault, got %q (%v)", step.Expect.Error, got, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if step.Expect != nil && len(step.Expect.Fields) > 0 {
		if rec == nil {
			return fmt.Errorf("expected fields on result, operation returned no record")
		}
		if err := matchSubset(rec, r.resolveMap(step.Expect.Fields)); err != nil {
			return err
		}
	}
	if step.SaveAs != "" {
		if rec == nil {
			return fmt.Errorf("save_as %q: operation returned no record", step.SaveAs)
		}
		r.bindings[step.SaveAs] = rec.ID
	}
	return nil
}

func (r *Runner) runAssertion(a *Assertion) error {
	switch a.Type {
	case AssertStateMatch:
		rec, err := r.findOne(a)
		if err != nil {
			return err
		}
		return matchSubset(rec, r.resolveMap(a.Expect))

	case AssertStateCount:
		matches, err := r.files.Find(a.Table, r.resolveMap(a.Where))
		if err != nil {
			return err
		}
		if len(matches) != a.Count {
			return fmt.Errorf("expected %d record(s), found %d", a.Count, len(matches))
		}
		return nil

	case AssertStateAbsent:
		if a.ID != "" {
			if r.files.Exists(a.Table, r.resolveString(a.ID)) {
				return fmt.Errorf("record %s still exists", r.resolveString(a.ID))
			}
			return nil
		}
		matches, err := r.files.Find(a.Table, r.resolveMap(a.Where))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			return fmt.Errorf("expected no records, found %d", len(matches))
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// findOne resolves a state_match target: by ID, or by filter expecting
// exactly one match.
func (r *Runner) findOne(a *Assertion) (*record.Record, error) {
	if a.ID != "" {
		return r.files.Load(a.Table, r.resolveString(a.ID))
	}
	matches, err := r.files.Find(a.Table, r.resolveMap(a.Where))
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("expected exactly one match, found %d", len(matches))
	}
	return matches[0], nil
}

// resolveString substitutes a $name reference with its bound ID.
func (r *Runner) resolveString(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	if id, ok := r.bindings[s[1:]]; ok {
		return id
	}
	return s
}

// resolveMap substitutes $name references in every string value,
// recursing into nested maps and sequences.
func (r *Runner) resolveMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.resolveValue(v)
	}
	return out
}

func (r *Runner) resolveValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.resolveString(val)
	case map[string]any:
		return r.resolveMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.resolveValue(item)
		}
		return out
	}
	return v
}

// matchSubset verifies every expected field against the record. The
// pseudo-fields "id" and "body" match the record's ID and body; a nil
// expectation requires the field to be absent or null.
func matchSubset(rec *record.Record, expect map[string]any) error {
	for field, want := range expect {
		var got any
		switch field {
		case "id":
			got = rec.ID
		case "body":
			got = rec.Body
		default:
			got = rec.Fields[field]
		}
		if want == nil {
			if got != nil {
				return fmt.Errorf("field %s: expected absence, got %v", field, got)
			}
			continue
		}
		if !valuesEqual(got, want) {
			return fmt.Errorf("field %s: expected %v, got %v", field, want, got)
		}
	}
	return nil
}

// valuesEqual compares scalars with numeric cross-kind tolerance, since
// YAML round-trips whole floats as ints.
func valuesEqual(got, want any) bool {
	if got == want {
		return true
	}
	gf, gok := asFloat(got)
	wf, wok := asFloat(want)
	return gok && wok && gf == wf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
