package rules

import "fmt"

// CheckTeamJoin validates a group_user insert against max_team_size
// rules of every category the group is registered to. A group at or over
// capacity rejects the join.
func (e *Evaluator) CheckTeamJoin(groupID string) error {
	categoryIDs, err := e.groupCategories(groupID)
	if err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}

	count, err := e.acceptedMemberCount(groupID)
	if err != nil {
		return err
	}

	for _, categoryID := range categoryIDs {
		rules, err := e.categoryRules(categoryID)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			max, ok := rule.Int("max_team_size")
			if !ok {
				continue
			}
			if count >= max {
				return ruleFault(rule, "max_team_size",
					fmt.Sprintf("team already has %d of %d members", count, max))
			}
		}
	}
	return nil
}
