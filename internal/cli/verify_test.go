package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/store"
	"github.com/jamhub/jamhub/internal/testutil"
)

// seedStore builds a store directory with a consistent pair of records
// plus a valid relation, and returns its root.
func seedStore(t *testing.T) (string, *store.Store) {
	t.Helper()
	root := t.TempDir()
	files, err := store.Open(root, store.WithIDGenerator(testutil.NewIDSequence()))
	require.NoError(t, err)

	save := func(typ, id string, fields map[string]any) {
		r := record.New(typ, id)
		for k, v := range fields {
			r.Set(k, v)
		}
		require.NoError(t, files.Save(r))
	}
	save("event", "evt_1", map[string]any{"title": "Jam"})
	save("post", "post_1", map[string]any{"title": "Entry"})
	save("category_post", "rel_0001", map[string]any{
		"category_id": "evt_1", "post_id": "post_1",
	})
	return root, files
}

func TestVerify_CleanStore(t *testing.T) {
	root, _ := seedStore(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DataDir: root, Format: "text"}
	cmd := NewVerifyCommand(rootOpts)
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "ok:")
}

func TestVerify_DanglingReference(t *testing.T) {
	root, files := seedStore(t)
	dangling := record.New("category_post", "rel_0002")
	dangling.Set("category_id", "evt_1").Set("post_id", "post_gone")
	require.NoError(t, files.Save(dangling))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DataDir: root, Format: "text"}
	cmd := NewVerifyCommand(rootOpts)
	cmd.SetOut(buf)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "post_gone")
}

func TestVerify_DuplicateCompositeKey(t *testing.T) {
	root, files := seedStore(t)
	dup := record.New("category_post", "rel_0002")
	dup.Set("category_id", "evt_1").Set("post_id", "post_1")
	require.NoError(t, files.Save(dup))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DataDir: root, Format: "text"}
	cmd := NewVerifyCommand(rootOpts)
	cmd.SetOut(buf)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "duplicate composite key")
}

func TestVerify_JSONReport(t *testing.T) {
	root, files := seedStore(t)
	dangling := record.New("category_post", "rel_0002")
	dangling.Set("category_id", "evt_gone").Set("post_id", "post_1")
	require.NoError(t, files.Save(dangling))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DataDir: root, Format: "json"}
	cmd := NewVerifyCommand(rootOpts)
	cmd.SetOut(buf)

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestVerify_MissingStoreDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DataDir: "/nonexistent/jamhub-store", Format: "text"}
	cmd := NewVerifyCommand(rootOpts)
	cmd.SetOut(buf)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
