package sessionstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/logger"
	"session-agent/internal/testutil/fakebrowser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"), logger.NewNop())
	require.NoError(t, err)
	return s
}

func provision(t *testing.T, site *fakebrowser.Site, restore *entity.SessionState) *fakebrowser.Browser {
	t.Helper()
	bc, err := fakebrowser.NewProvisioner(site).Provision(context.Background(), entity.EnvironmentConfig{UserAgent: "UA/1"}, restore)
	require.NoError(t, err)
	return bc.(*fakebrowser.Browser)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	site := fakebrowser.NewSite("https://app.example.test")
	b := provision(t, site, nil)
	b.SetCookie("auth_token", "tok-1")
	b.SetCookie("ct0", "csrf")
	b.SetLocalStorage("theme", "dark")
	b.SetLocalStorage("lang", "en")

	saved, err := store.Save(ctx, b, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", saved.AccountKey)
	assert.Equal(t, fixed, saved.SavedAt)
	assert.Equal(t, entity.SessionStateVersion, saved.Version)

	loaded, err := store.Load("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.Cookies, loaded.Cookies)
	require.Len(t, loaded.Origins, 1)
	assert.ElementsMatch(t, saved.Origins[0].LocalStorage, loaded.Origins[0].LocalStorage)
	assert.Equal(t, "UA/1", loaded.UserAgent)

	restored := provision(t, site, loaded)
	exported, err := restored.ExportState(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Cookies, exported.Cookies)
	require.Len(t, exported.Origins, 1)
	assert.ElementsMatch(t, saved.Origins[0].LocalStorage, exported.Origins[0].LocalStorage)
}

func TestFileStore_PreservesCookieAttributes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	site := fakebrowser.NewSite("https://app.example.test")
	cookie := entity.Cookie{
		Name: "sid", Value: "v", Domain: ".example.test", Path: "/x", Expires: 1.9e9,
		HTTPOnly: true, Secure: true, SameSite: "None", Priority: "High",
	}
	b := provision(t, site, &entity.SessionState{Cookies: []entity.Cookie{cookie}})

	_, err := store.Save(ctx, b, "bob")
	require.NoError(t, err)
	loaded, err := store.Load("bob")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, cookie, loaded.Cookies[0])
}

func TestFileStore_LoadMissing(t *testing.T) {
	state, err := newStore(t).Load("nobody")
	assert.NoError(t, err)
	assert.Nil(t, state)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	site := fakebrowser.NewSite("https://app.example.test")
	b := provision(t, site, nil)

	b.SetCookie("auth_token", "old")
	_, err := store.Save(ctx, b, "carol")
	require.NoError(t, err)
	b.SetCookie("auth_token", "new")
	_, err = store.Save(ctx, b, "carol")
	require.NoError(t, err)

	loaded, err := store.Load("carol")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "new", loaded.Cookies[0].Value)

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path("dave"), []byte("{not json"), 0o600))
	_, err := store.Load("dave")
	assert.Error(t, err)
}

func TestFileStore_RejectsNewerVersion(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path("erin"), []byte(`{"version": 99}`), 0o600))
	_, err := store.Load("erin")
	assert.ErrorContains(t, err, "newer")
}

func TestFileStore_SaveFailsOnClosedContext(t *testing.T) {
	store := newStore(t)
	b := provision(t, fakebrowser.NewSite("https://app.example.test"), nil)
	require.NoError(t, b.Close())
	_, err := store.Save(context.Background(), b, "frank")
	assert.ErrorIs(t, err, entity.ErrContextClosed)
}

func TestFileStore_PathIsUniquePerKey(t *testing.T) {
	store := newStore(t)
	assert.NotEqual(t, store.Path("a/b"), store.Path("a_b"))
	assert.Equal(t, store.Path("a/b"), store.Path("a/b"))
	assert.Equal(t, filepath.Dir(store.Path("../../etc/passwd")), store.dir)
}

func TestFileStore_ConcurrentAccounts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	site := fakebrowser.NewSite("https://app.example.test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		b := provision(t, site, nil)
		b.SetCookie("auth_token", fmt.Sprintf("tok-%d", i))
		wg.Add(1)
		go func(i int, b *fakebrowser.Browser) {
			defer wg.Done()
			_, err := store.Save(ctx, b, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
		}(i, b)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		loaded, err := store.Load(fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, fmt.Sprintf("tok-%d", i), loaded.Cookies[0].Value)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "alice_example.com", sanitize("Alice@Example.com"))
	assert.Equal(t, "account", sanitize(".."))
	assert.Equal(t, "_.._etc", sanitize("/../etc"))
}
