package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/draftsync"
	"immimate/pkg/testutil"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"name=Ana", "age=31", "married=false", "tags=[\"a\"]", "note=hello world"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":    "Ana",
		"age":     float64(31),
		"married": false,
		"tags":    []any{"a"},
		"note":    "hello world",
	}, got)

	for _, bad := range [][]string{nil, {"novalue"}, {"=x"}, {"_formId=x"}} {
		_, err := parseAssignments(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	require.NoError(t, newRootCommand(&rootConfig{}).ParseAndRun(context.Background(), args))
	return buf.Bytes()
}

func TestOfflineSetThenLoad(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	common := []string{"-db", db, "-server", "", "-form", "f1"}

	run(t, append(common, "set", "fullName=Ana", "age=31")...)

	var view snapshotView
	require.NoError(t, json.Unmarshal(run(t, append(common, "load")...), &view))
	assert.Equal(t, "f1", view.FormID)
	assert.Equal(t, draftsync.SourceLocal, view.Source)
	assert.Equal(t, "Ana", view.Payload["fullName"])
	assert.Equal(t, float64(31), view.Payload["age"])

	var entries map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(run(t, append(common, "show")...), &entries))
	assert.Contains(t, entries, draftsync.LocalKey("f1"))

	run(t, append(common, "discard")...)
	require.NoError(t, json.Unmarshal(run(t, append(common, "load")...), &view))
	assert.Equal(t, draftsync.SourceInitial, view.Source)
}

func TestConvertOffline(t *testing.T) {
	var out map[string]any
	require.NoError(t, json.Unmarshal(run(t, "convert", "-offline", "IELTS", "speaking", "7.0"), &out))
	assert.Equal(t, true, out["found"])
	assert.Equal(t, float64(9), out["clbLevel"])
}

func TestDiscardIsScopedToOneForm(t *testing.T) {
	db := filepath.Join(t.TempDir(), "drafts.db")
	form := func(id string) []string { return []string{"-db", db, "-server", "", "-form", id} }
	load := func(t *testing.T, id string) snapshotView {
		var view snapshotView
		require.NoError(t, json.Unmarshal(run(t, append(form(id), "load")...), &view))
		return view
	}

	testutil.Given(t, "drafts for two forms", func(t *testing.T) {
		run(t, append(form("profile"), "set", "fullName=Ana")...)
		run(t, append(form("contact"), "set", "phone=555")...)

		testutil.When(t, "one form is discarded", func(t *testing.T) {
			run(t, append(form("profile"), "discard")...)

			testutil.Then(t, "that form loads blank", func(t *testing.T) {
				assert.Equal(t, draftsync.SourceInitial, load(t, "profile").Source)
			})
			testutil.Then(t, "the other form keeps its draft", func(t *testing.T) {
				view := load(t, "contact")
				assert.Equal(t, draftsync.SourceLocal, view.Source)
				assert.Equal(t, float64(555), view.Payload["phone"])
			})
		})
	})
}
