package diagnostics

import (
	"bufio"
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/logger"
	"session-agent/internal/testutil/fakebrowser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBrowser(t *testing.T, markup string) *fakebrowser.Browser {
	t.Helper()
	site := fakebrowser.NewSite("https://app.example.test")
	site.Page("/i/flow/login", markup)
	bc, err := fakebrowser.NewProvisioner(site).Provision(context.Background(), entity.EnvironmentConfig{}, nil)
	require.NoError(t, err)
	b := bc.(*fakebrowser.Browser)
	require.NoError(t, b.Navigate(context.Background(), site.URL("/i/flow/login")))
	return b
}

func TestRecorder_RecordWritesArtifacts(t *testing.T) {
	root := t.TempDir()
	f, err := NewFactory(root, logger.NewNop())
	require.NoError(t, err)
	b := newBrowser(t, `<body><input name="password" type="password" value="hunter2"></body>`)

	rec, err := f.ForAttempt("alice@example.com", "attempt-1", b)
	require.NoError(t, err)

	entry := rec.Record(context.Background(), "username_entry")

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "username_entry", entry.Label)
	assert.Equal(t, "https://app.example.test/i/flow/login", entry.URL)
	require.Len(t, entry.Fields, 1)
	assert.Equal(t, "password", entry.Fields[0].Name)

	expectedDir := filepath.Join(root, "alice_example_com", "attempt-1")
	assert.Equal(t, expectedDir, filepath.Dir(entry.DOMSnapshotRef))
	assert.True(t, strings.HasSuffix(entry.DOMSnapshotRef, "-username_entry.html"))
	assert.Contains(t, filepath.Base(entry.DOMSnapshotRef), string(entry.ID)[:8])

	dom, err := os.ReadFile(entry.DOMSnapshotRef)
	require.NoError(t, err)
	assert.NotContains(t, string(dom), "hunter2")

	shot, err := os.Open(entry.ScreenshotRef)
	require.NoError(t, err)
	defer shot.Close()
	_, err = jpeg.Decode(shot)
	assert.NoError(t, err, "screenshots are normalized to JPEG")
}

func TestRecorder_EntriesAreAppendOnly(t *testing.T) {
	f, err := NewFactory(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	rec, err := f.ForAttempt("bob", "a", newBrowser(t, `<body><p>hi</p></body>`))
	require.NoError(t, err)

	first := rec.Record(context.Background(), "start")
	entries := rec.Entries()
	entries[0].Label = "mutated"
	second := rec.Record(context.Background(), "verify")

	got := rec.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
	assert.NotEqual(t, first.ID, second.ID)

	trail, err := os.Open(filepath.Join(rec.(*Recorder).Dir(), trailFile))
	require.NoError(t, err)
	defer trail.Close()
	lines := 0
	for sc := bufio.NewScanner(trail); sc.Scan(); {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestRecorder_ClosedContextStillRecords(t *testing.T) {
	f, err := NewFactory(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	b := newBrowser(t, `<body></body>`)
	rec, err := f.ForAttempt("carol", "a", b)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	entry := rec.Record(context.Background(), "failed")

	assert.NotEmpty(t, entry.ID)
	assert.Empty(t, entry.DOMSnapshotRef)
	assert.Empty(t, entry.ScreenshotRef)
	assert.Len(t, rec.Entries(), 1)
}

func TestSanitizeSegment(t *testing.T) {
	assert.Equal(t, "account", sanitizeSegment("@@", "account"))
	assert.Equal(t, "a_b", sanitizeSegment("a/b", "x"))
}
