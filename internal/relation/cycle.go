package relation

import "github.com/jamhub/jamhub/internal/fault"

// checkEdgeCycle rejects inserting source -> target into the directed
// edge set of one relation_type if target already reaches source.
//
// Each relation_type (stage, prerequisite) forms its own edge set; an
// edge never interacts with cycles of another type. The walk is a
// depth-first search over the existing edges, linear in the edge count.
func (s *Store) checkEdgeCycle(relType, source, target string) error {
	edges, err := s.files.Find("category_category", map[string]any{
		"relation_type": relType,
	})
	if err != nil {
		return err
	}

	adjacency := make(map[string][]string, len(edges))
	for _, edge := range edges {
		from := edge.String("source_category_id")
		adjacency[from] = append(adjacency[from], edge.String("target_category_id"))
	}

	if reaches(adjacency, target, source, make(map[string]bool)) {
		return fault.Cycle("relation would create a cycle", "category_category").
			With("relation_type", relType).
			With("source", source).
			With("target", target)
	}
	return nil
}

// reaches reports whether a path from -> to exists in the adjacency set.
func reaches(adjacency map[string][]string, from, to string, seen map[string]bool) bool {
	if from == to {
		return true
	}
	seen[from] = true
	for _, next := range adjacency[from] {
		if !seen[next] && reaches(adjacency, next, to, seen) {
			return true
		}
	}
	return false
}
