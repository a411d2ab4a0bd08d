// Package sessionstore persists browsing-context sessions as JSON files, one
// per account key.
package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
)

var _ output.SessionStore = (*FileStore)(nil)

type FileStore struct {
	dir    string
	logger output.LoggerPort
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(dir string, logger output.LoggerPort) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Path is where the session for accountKey lives. Distinct keys never share a
// file even when they sanitize to the same prefix.
func (s *FileStore) Path(accountKey string) string {
	sum := sha256.Sum256([]byte(accountKey))
	return filepath.Join(s.dir, sanitize(accountKey)+"-"+hex.EncodeToString(sum[:4])+".json")
}

// Save exports the context's cookies and storage and overwrites the account's
// file atomically.
func (s *FileStore) Save(ctx context.Context, browser output.BrowserContext, accountKey string) (*entity.SessionState, error) {
	state, err := browser.ExportState(ctx)
	if err != nil {
		return nil, fmt.Errorf("export session: %w", err)
	}
	state.Version = entity.SessionStateVersion
	state.AccountKey = accountKey
	state.SavedAt = s.now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	lock := s.lockFor(accountKey)
	lock.Lock()
	defer lock.Unlock()

	path := s.Path(accountKey)
	if err := writeAtomic(path, data); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}
	s.logger.Info("session saved", "account", accountKey, "cookies", len(state.Cookies), "origins", len(state.Origins))
	return state, nil
}

// Load returns (nil, nil) when no session was ever saved for accountKey.
func (s *FileStore) Load(accountKey string) (*entity.SessionState, error) {
	lock := s.lockFor(accountKey)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.Path(accountKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var state entity.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if state.Version > entity.SessionStateVersion {
		return nil, fmt.Errorf("session version %d is newer than supported %d", state.Version, entity.SessionStateVersion)
	}
	return &state, nil
}

func (s *FileStore) lockFor(accountKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountKey] = l
	}
	return l
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "account"
	}
	if len(out) > 48 {
		out = out[:48]
	}
	return out
}
