// Package diagnostics captures DOM snapshots and screenshots at every
// login transition so selector drift can be debugged after the fact.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	maxScreenshotWidth = 1024
	trailFile          = "trail.jsonl"
)

var (
	_ output.DiagnosticsFactory  = (*Factory)(nil)
	_ output.DiagnosticsRecorder = (*Recorder)(nil)
)

type Factory struct {
	root   string
	logger output.LoggerPort
	now    func() time.Time
}

func NewFactory(root string, logger output.LoggerPort) (*Factory, error) {
	if root == "" {
		return nil, errors.New("diagnostics dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}
	return &Factory{root: root, logger: logger, now: time.Now}, nil
}

// ForAttempt opens <root>/<account>/<attempt> and binds a recorder to browser.
func (f *Factory) ForAttempt(accountKey, attemptID string, browser output.BrowserContext) (output.DiagnosticsRecorder, error) {
	dir := filepath.Join(f.root, sanitizeSegment(accountKey, "account"), sanitizeSegment(attemptID, "attempt"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attempt diagnostics dir: %w", err)
	}
	return &Recorder{
		dir:     dir,
		browser: browser,
		logger:  f.logger.WithFields(map[string]any{"account": accountKey, "attempt": attemptID}),
		now:     f.now,
	}, nil
}

// Recorder is append-only. Capture failures leave the corresponding ref empty
// and are logged; Record itself never fails.
type Recorder struct {
	dir     string
	browser output.BrowserContext
	logger  output.LoggerPort
	now     func() time.Time

	mu      sync.Mutex
	entries []entity.DiagnosticsEntry
}

func (r *Recorder) Dir() string {
	return r.dir
}

func (r *Recorder) Record(ctx context.Context, label string) entity.DiagnosticsEntry {
	id := uuid.New().String()
	ts := r.now().UTC()
	entry := entity.DiagnosticsEntry{
		ID:        entity.EvidenceRef(id),
		Timestamp: ts,
		Label:     label,
		URL:       r.browser.CurrentURL(),
	}
	base := fmt.Sprintf("%s-%s-%s", ts.Format("20060102T150405.000"), id[:8], sanitizeSegment(label, "entry"))

	if raw, err := r.browser.HTML(ctx); err != nil {
		r.logger.Warn("dom snapshot failed", "label", label, "error", err)
	} else {
		entry.Fields = Inventory(raw)
		path := filepath.Join(r.dir, base+".html")
		if err := os.WriteFile(path, []byte(SanitizeSnapshot(raw, nil)), 0o600); err != nil {
			r.logger.Warn("write dom snapshot failed", "label", label, "error", err)
		} else {
			entry.DOMSnapshotRef = path
		}
	}

	if shot, err := r.browser.Screenshot(ctx); err != nil {
		r.logger.Warn("screenshot failed", "label", label, "error", err)
	} else {
		path := filepath.Join(r.dir, base+".jpg")
		if err := writeJPEG(path, shot); err != nil {
			r.logger.Warn("write screenshot failed", "label", label, "error", err)
		} else {
			entry.ScreenshotRef = path
		}
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	r.appendTrail(entry)

	r.logger.Debug("diagnostics recorded", "label", label, "id", id, "url", entry.URL)
	return entry
}

func (r *Recorder) Entries() []entity.DiagnosticsEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.DiagnosticsEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Recorder) appendTrail(entry entity.DiagnosticsEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(r.dir, trailFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		r.logger.Warn("open trail failed", "error", err)
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

// writeJPEG stores the screenshot as JPEG no wider than maxScreenshotWidth,
// whatever format the browser produced.
func writeJPEG(path string, shot *entity.Screenshot) error {
	if shot == nil || len(shot.Data) == 0 {
		return errors.New("empty screenshot")
	}
	img, err := imaging.Decode(bytes.NewReader(shot.Data))
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > maxScreenshotWidth {
		img = imaging.Resize(img, maxScreenshotWidth, 0, imaging.Lanczos)
	}
	return imaging.Save(img, path, imaging.JPEGQuality(75))
}

func sanitizeSegment(s, fallback string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "_") == "" {
		return fallback
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}
