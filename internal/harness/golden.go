package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"gopkg.in/yaml.v3"

	"github.com/jamhub/jamhub/internal/store"
)

// SnapshotState serializes the entire store as YAML: every type
// directory in name order, records in file order, fields flattened with
// the ID. Deterministic given a fixed clock and ID sequence.
func SnapshotState(files *store.Store) ([]byte, error) {
	types, err := files.Types()
	if err != nil {
		return nil, err
	}

	state := make(map[string]any, len(types))
	for _, typ := range types {
		records, err := files.List(typ)
		if err != nil {
			return nil, err
		}
		entries := make([]any, 0, len(records))
		for _, r := range records {
			entry := make(map[string]any, len(r.Fields)+2)
			for k, v := range r.Fields {
				entry[k] = v
			}
			entry["id"] = r.ID
			if r.Body != "" {
				entry["body"] = r.Body
			}
			entries = append(entries, entry)
		}
		if len(entries) > 0 {
			state[typ] = entries
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(state); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the final store state
// against testdata/golden/{scenario.Name}.golden. Regenerate with
// go test ./internal/harness -update.
func RunWithGolden(t *testing.T, runner *Runner, scenario *Scenario) error {
	t.Helper()

	if err := runner.Run(scenario); err != nil {
		return err
	}
	snapshot, err := SnapshotState(runner.Files())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}
