package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/metrics"
	"github.com/AlexYaroshenko/hades/internal/store"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

// Fetcher is the getUpdates side of the Bot API client.
type Fetcher interface {
	GetUpdates(ctx context.Context, offset int64, limit, timeout int) ([]telegram.Update, error)
}

// Dispatcher hands one update to the application.
type Dispatcher interface {
	Dispatch(ctx context.Context, u telegram.Update) (int64, error)
}

// AdvanceMode decides how far the offset moves after a batch.
type AdvanceMode int

const (
	// AdvanceByCount adds the number of consumed updates to the offset.
	AdvanceByCount AdvanceMode = iota
	// AdvanceByUpdateID moves the offset to the last consumed update_id + 1.
	AdvanceByUpdateID
)

func (m AdvanceMode) String() string {
	if m == AdvanceByUpdateID {
		return "update_id"
	}
	return "count"
}

// ParseAdvanceMode accepts "count" and "update_id".
func ParseAdvanceMode(s string) (AdvanceMode, error) {
	switch s {
	case "", "count":
		return AdvanceByCount, nil
	case "update_id":
		return AdvanceByUpdateID, nil
	}
	return AdvanceByCount, fmt.Errorf("unknown offset advance mode %q", s)
}

// ErrorReporter is told about every update whose dispatch failed.
type ErrorReporter func(ctx context.Context, u telegram.Update, err error)

type Poller struct {
	fetcher    Fetcher
	dispatcher Dispatcher
	offsets    store.OffsetStore
	mode       AdvanceMode
	skipFailed bool
	report     ErrorReporter
	log        zerolog.Logger
}

type Option func(*Poller)

// WithOffsetStore sets where RunOnce keeps its offset.
func WithOffsetStore(s store.OffsetStore) Option {
	return func(p *Poller) { p.offsets = s }
}

func WithAdvanceMode(m AdvanceMode) Option {
	return func(p *Poller) { p.mode = m }
}

// WithSkipFailed makes failed updates count as consumed, so a batch is
// never fetched twice because of a handler error. Without it the offset
// stops at the first failed update, and RunForever refetches that update
// immediately, spinning for as long as its handler keeps failing.
func WithSkipFailed(skip bool) Option {
	return func(p *Poller) { p.skipFailed = skip }
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(p *Poller) { p.report = r }
}

func WithLogger(log zerolog.Logger) Option {
	return func(p *Poller) { p.log = log }
}

func New(f Fetcher, d Dispatcher, opts ...Option) (*Poller, error) {
	if f == nil {
		return nil, errors.New("poller: nil fetcher")
	}
	if d == nil {
		return nil, errors.New("poller: nil dispatcher")
	}
	p := &Poller{
		fetcher:    f,
		dispatcher: d,
		mode:       AdvanceByCount,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// BatchError lists the dispatch failures of one batch. Offset is where
// the poller will resume.
type BatchError struct {
	Offset   int64
	Failures []error
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("poller: 1 update failed, offset %d: %v", e.Offset, e.Failures[0])
	}
	return fmt.Sprintf("poller: %d updates failed, offset %d: %v", len(e.Failures), e.Offset, e.Failures[0])
}

func (e *BatchError) Unwrap() []error { return e.Failures }

// RunOnce fetches and dispatches a single batch starting at the stored
// offset, then stores the advanced offset and returns it. An empty batch
// leaves the store alone.
func (p *Poller) RunOnce(ctx context.Context, limit, timeout int) (int64, error) {
	if p.offsets == nil {
		return 0, &store.ConfigurationError{Component: "poller", Backend: "offset"}
	}
	offset, err := p.offsets.LoadOffset(ctx)
	if err != nil {
		return 0, fmt.Errorf("load offset: %w", err)
	}
	metrics.SetOffset(offset)

	updates, err := p.fetcher.GetUpdates(ctx, offset, limit, timeout)
	if err != nil {
		return offset, err
	}
	if len(updates) == 0 {
		return offset, nil
	}

	next, failures := p.process(ctx, offset, updates)
	if next != offset {
		// The batch is already handled; a cancelled ctx must not lose the cursor.
		if err := p.offsets.SaveOffset(context.WithoutCancel(ctx), next); err != nil {
			return offset, fmt.Errorf("save offset: %w", err)
		}
	}
	p.log.Debug().Int64("offset", next).Int("updates", len(updates)).Msg("batch done")
	if len(failures) > 0 {
		return next, &BatchError{Offset: next, Failures: failures}
	}
	return next, nil
}

// RunForever polls until ctx is done or getUpdates fails. The offset lives
// in memory only; the first non-empty batch seen at offset 0 starts it at
// that batch's first update_id.
func (p *Poller) RunForever(ctx context.Context, limit, timeout int) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, err := p.fetcher.GetUpdates(ctx, offset, limit, timeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.log.Error().Err(err).Int64("offset", offset).Msg("getUpdates failed, stopping")
			return err
		}
		if len(updates) == 0 {
			continue
		}
		if offset == 0 {
			offset = updates[0].UpdateID
		}
		var failures []error
		offset, failures = p.process(ctx, offset, updates)
		if len(failures) > 0 {
			p.log.Warn().Int("failed", len(failures)).Int64("offset", offset).Msg("batch had failures")
		}
	}
}

// process dispatches updates in order and returns the advanced offset.
// Updates count as consumed up to the first failure, unless skipFailed.
func (p *Poller) process(ctx context.Context, offset int64, updates []telegram.Update) (int64, []error) {
	metrics.IncBatch()

	var (
		failures []error
		consumed int64
		lastID   int64
		blocked  bool
	)
	for _, u := range updates {
		if ctx.Err() != nil {
			break
		}
		id, err := p.dispatcher.Dispatch(ctx, u)
		if err != nil {
			failures = append(failures, err)
			p.fail(ctx, u, err)
			if !p.skipFailed {
				blocked = true
			}
		}
		if !blocked {
			consumed++
			lastID = id
		}
	}

	next := offset
	switch p.mode {
	case AdvanceByUpdateID:
		if consumed > 0 && lastID+1 > offset {
			next = lastID + 1
		}
	default:
		next = offset + consumed
	}
	metrics.SetOffset(next)
	return next, failures
}

func (p *Poller) fail(ctx context.Context, u telegram.Update, err error) {
	kind := dispatch.Unknown
	var herr *dispatch.HandlerError
	if errors.As(err, &herr) {
		kind = herr.Kind
	}
	metrics.IncDispatchFailure(kind.String())
	p.log.Error().Err(err).Int64("update_id", u.UpdateID).Str("kind", kind.String()).Msg("dispatch failed")
	if p.report != nil {
		p.report(ctx, u, err)
	}
}
