package content

import (
	"fmt"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// ruleHooks validates scoring criteria on rule records: every weight is
// a percentage in (0, 100] and the weights sum to 100.
type ruleHooks struct{}

func (ruleHooks) ContentType() string { return "rule" }

func (ruleHooks) OnCreate(env *Env, r *record.Record) error {
	return checkScoringCriteria(r.Fields["scoring_criteria"])
}

func (ruleHooks) OnPreUpdate(env *Env, current *record.Record, updates map[string]any) error {
	criteria, changed := updates["scoring_criteria"]
	if !changed {
		return nil
	}
	return checkScoringCriteria(criteria)
}

func checkScoringCriteria(v any) error {
	if v == nil {
		return nil
	}
	seq, ok := v.([]any)
	if !ok {
		return fault.Validation("scoring_criteria must be a sequence", "scoring_criteria")
	}
	var sum float64
	for _, item := range seq {
		entry, ok := item.(map[string]any)
		if !ok {
			return fault.Validation("scoring criterion must be a map", "scoring_criteria")
		}
		name, _ := entry["name"].(string)
		if name == "" {
			return fault.Validation("scoring criterion has no name", "scoring_criteria")
		}
		weight, ok := criterionWeight(entry["weight"])
		if !ok || weight <= 0 || weight > 100 {
			return fault.Validation(
				fmt.Sprintf("criterion %q weight must be in (0, 100]", name), "scoring_criteria")
		}
		sum += weight
	}
	if len(seq) > 0 && sum != 100 {
		return fault.Validation(
			fmt.Sprintf("criterion weights sum to %v, expected 100", sum), "scoring_criteria")
	}
	return nil
}

func criterionWeight(v any) (float64, bool) {
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
