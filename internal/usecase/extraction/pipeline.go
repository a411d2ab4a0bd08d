// Package extraction scrolls an authenticated page and lazily yields the
// records rendered on it.
package extraction

import (
	"context"
	"iter"
	"sync/atomic"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
	"session-agent/internal/usecase/humanize"
)

const (
	defaultStallLimit = 3
	defaultScrollPX   = 1400
)

type Config struct {
	// StallLimit is how many consecutive scrolls may bring no new record
	// before the feed is considered exhausted.
	StallLimit int
	ScrollPX   int
}

func DefaultConfig() Config {
	return Config{StallLimit: defaultStallLimit, ScrollPX: defaultScrollPX}
}

type Pipeline struct {
	parser   *parser
	emulator *humanize.Emulator
	logger   output.LoggerPort
	cfg      Config
}

func NewPipeline(schema entity.RecordSchema, emulator *humanize.Emulator, logger output.LoggerPort, cfg Config) (*Pipeline, error) {
	p, err := newParser(schema)
	if err != nil {
		return nil, err
	}
	if cfg.StallLimit <= 0 {
		cfg.StallLimit = defaultStallLimit
	}
	if cfg.ScrollPX <= 0 {
		cfg.ScrollPX = defaultScrollPX
	}
	return &Pipeline{parser: p, emulator: emulator, logger: logger, cfg: cfg}, nil
}

// Extract navigates to targetURL (empty stays on the current page) and yields
// at most maxCount records with distinct keys. Nothing happens until the
// sequence is ranged over, and it can be ranged over once: a second range
// yields ErrSequenceConsumed. Running out of records before maxCount is not
// an error.
//
// A node whose identity has not rendered yet is held back until a later
// snapshot resolves it. Nodes still unresolved when the feed is exhausted are
// yielded last under their content key.
func (p *Pipeline) Extract(ctx context.Context, browser output.BrowserContext, targetURL string, maxCount int) iter.Seq2[entity.ExtractedRecord, error] {
	var used atomic.Bool
	return func(yield func(entity.ExtractedRecord, error) bool) {
		if used.Swap(true) {
			yield(entity.ExtractedRecord{}, entity.ErrSequenceConsumed)
			return
		}
		if maxCount <= 0 {
			return
		}
		s := &scan{
			p:        p,
			browser:  browser,
			max:      maxCount,
			seen:     make(map[string]struct{}),
			resolved: make(map[string]struct{}),
			waiting:  make(map[string]struct{}),
		}
		if err := s.run(ctx, targetURL, yield); err != nil {
			p.logger.Warn("extraction aborted", "yielded", s.yielded, "error", err)
			yield(entity.ExtractedRecord{}, err)
			return
		}
		p.logger.Info("extraction finished", "yielded", s.yielded, "max", maxCount, "reason", s.reason)
	}
}

type scan struct {
	p       *Pipeline
	browser output.BrowserContext
	max     int
	seen    map[string]struct{}
	yielded int
	reason  string

	// resolved holds aliases of nodes seen with an identity, waiting those of
	// pending nodes not yet matched, in first-seen order in pending.
	resolved map[string]struct{}
	waiting  map[string]struct{}
	pending  []parsed
}

func (s *scan) run(ctx context.Context, targetURL string, yield func(entity.ExtractedRecord, error) bool) error {
	if targetURL != "" {
		if err := s.browser.Navigate(ctx, targetURL); err != nil {
			return err
		}
		if err := s.p.emulator.Delay(ctx); err != nil {
			return err
		}
	}

	stalls := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := s.browser.HTML(ctx)
		if err != nil {
			return err
		}
		nodes, err := s.p.parser.parse(raw)
		if err != nil {
			return err
		}

		fresh := 0
		for _, n := range nodes {
			if n.pending {
				s.hold(n)
				continue
			}
			s.resolved[n.alias] = struct{}{}
			delete(s.waiting, n.alias)
			if _, dup := s.seen[n.ID]; dup {
				continue
			}
			fresh++
			if s.emit(n.ExtractedRecord, yield) {
				return nil
			}
		}

		if fresh == 0 {
			stalls++
		} else {
			stalls = 0
		}
		if stalls >= s.p.cfg.StallLimit {
			s.reason = "feed exhausted"
			s.flush(yield)
			return nil
		}
		s.p.logger.Debug("scrolling for more records", "yielded", s.yielded, "stalls", stalls)

		if err := s.p.emulator.Scroll(ctx, humanize.Down, s.p.cfg.ScrollPX); err != nil {
			return err
		}
		if err := s.p.emulator.Delay(ctx); err != nil {
			return err
		}
	}
}

// hold parks a pending node unless the same node already resolved.
func (s *scan) hold(n parsed) {
	if _, ok := s.resolved[n.alias]; ok {
		return
	}
	if _, ok := s.waiting[n.alias]; ok {
		return
	}
	s.waiting[n.alias] = struct{}{}
	s.pending = append(s.pending, n)
}

// flush yields the nodes whose identity never rendered.
func (s *scan) flush(yield func(entity.ExtractedRecord, error) bool) {
	for _, n := range s.pending {
		if _, ok := s.waiting[n.alias]; !ok {
			continue
		}
		if _, dup := s.seen[n.ID]; dup {
			continue
		}
		if s.emit(n.ExtractedRecord, yield) {
			return
		}
	}
}

// emit yields rec and reports whether the scan must stop.
func (s *scan) emit(rec entity.ExtractedRecord, yield func(entity.ExtractedRecord, error) bool) bool {
	s.seen[rec.ID] = struct{}{}
	s.yielded++
	if !yield(rec, nil) {
		s.reason = "consumer stopped"
		return true
	}
	if s.yielded >= s.max {
		s.reason = "limit reached"
		return true
	}
	return false
}

// Collect drains seq, returning the records gathered before the first error.
func Collect(seq iter.Seq2[entity.ExtractedRecord, error]) ([]entity.ExtractedRecord, error) {
	var out []entity.ExtractedRecord
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
