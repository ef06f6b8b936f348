package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: a valid scenario
steps:
  - op: content.create
    type: user
    data: {username: ada, email: ada@example.com}
assertions:
  - type: state_count
    table: user
    count: 1
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "content.create", s.Steps[0].Op)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: typo in a field name
steps:
  - op: content.create
    type: user
    datas: {username: ada}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenario_MissingName(t *testing.T) {
	path := writeScenario(t, `
description: nameless
steps:
  - op: content.create
    type: user
    data: {username: ada}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_UnknownOp(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: bad op
steps:
  - op: content.truncate
    type: user
    data: {username: ada}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op")
}

func TestLoadScenario_UpdateRequiresID(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: update without id
steps:
  - op: content.update
    type: user
    updates: {status: suspended}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestLoadScenario_BadAssertion(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: assertion without target
steps:
  - op: content.create
    type: user
    data: {username: ada}
assertions:
  - type: state_match
    table: user
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id or where")
}

func TestLoadScenario_AllFixturesParse(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		t.Run(entry.Name(), func(t *testing.T) {
			_, err := LoadScenario(filepath.Join("testdata", "scenarios", entry.Name()))
			require.NoError(t, err)
		})
	}
}
