package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlexYaroshenko/hades/internal/config"
	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/logging"
	"github.com/AlexYaroshenko/hades/internal/poller"
	"github.com/AlexYaroshenko/hades/internal/sentryutil"
	"github.com/AlexYaroshenko/hades/internal/store"
	"github.com/AlexYaroshenko/hades/internal/telegram"
	"github.com/AlexYaroshenko/hades/internal/web"
)

// HandlerFactory builds the update handlers once the App's stores and
// client exist, so handlers can close over them.
type HandlerFactory func(a *App) dispatch.Handlers

// App owns every connection the bot opens and releases them in Close.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	client    *telegram.Client
	kv        store.KV
	pg        *store.PgStore
	offsets   store.OffsetStore
	status    *store.StatusStore
	languages *store.LanguageStore

	dispatcher *dispatch.Dispatcher
	server     *web.Server
	poller     *poller.Poller
}

// New connects the configured backends and wires the bot. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, handlers HandlerFactory) (*App, error) {
	a := &App{cfg: cfg, log: log}

	steps := []func(context.Context) error{
		a.initTelegram,
		a.initKV,
		a.initDatabase,
		a.initStores,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if err := a.initDispatch(handlers); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initTelegram(context.Context) error {
	opts := []telegram.Option{
		telegram.WithHTTPClient(&http.Client{Timeout: a.cfg.Telegram.HTTPTimeout}),
	}
	if a.cfg.Telegram.APIURL != "" {
		opts = append(opts, telegram.WithServerURL(a.cfg.Telegram.APIURL))
	}
	client, err := telegram.NewClient(a.cfg.Telegram.Token, opts...)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}
	a.client = client
	a.log.Info().Str("token", logging.Redact(a.cfg.Telegram.Token)).Msg("telegram client ready")
	return nil
}

func (a *App) initKV(ctx context.Context) error {
	kv := a.cfg.KV
	switch kv.Driver {
	case "redis":
		r, err := store.OpenRedis(ctx, kv.RedisURL, kv.Password, kv.DB)
		if err != nil {
			return err
		}
		a.kv = r
		a.log.Info().Msg("connected to redis")
	case "bolt":
		b, err := store.OpenBolt(kv.BoltPath, kv.TablePrefix)
		if err != nil {
			return err
		}
		a.kv = b
		n, err := b.Purge()
		if err != nil {
			return err
		}
		a.log.Info().Str("path", kv.BoltPath).Int("expired", n).Msg("opened bolt store")
	default:
		a.log.Warn().Msg("no key-value store configured, status store disabled")
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		return nil
	}
	loc, err := a.cfg.OffsetLocation()
	if err != nil {
		return err
	}
	pg, err := store.OpenPostgres(ctx, a.cfg.Database.URL, loc)
	if err != nil {
		return err
	}
	a.pg = pg
	a.log.Info().Msg("connected to postgres")
	return nil
}

func (a *App) initStores(context.Context) error {
	switch a.cfg.Offset.Backend {
	case "postgres":
		if a.pg != nil {
			a.offsets = a.pg
		}
	default:
		if a.kv != nil {
			offsets, err := store.NewKVOffsetStore(a.kv, a.cfg.Offset.Key)
			if err != nil {
				return err
			}
			a.offsets = offsets
		}
	}

	if a.kv != nil {
		status, err := store.NewStatusStore(a.kv)
		if err != nil {
			return err
		}
		a.status = status
	}

	var repo store.LanguageRepository
	if a.pg != nil {
		repo = a.pg
	}
	a.languages = store.NewLanguageStore(repo, a.kv, a.log.With().Str("component", "language").Logger())
	return nil
}

func (a *App) initDispatch(handlers HandlerFactory) error {
	var h dispatch.Handlers
	if handlers != nil {
		h = handlers(a)
	}
	a.dispatcher = dispatch.New(h, a.log.With().Str("component", "dispatch").Logger())
	a.server = web.New(a.dispatcher,
		web.WithSecret(a.cfg.HTTP.WebhookSecret),
		web.WithMode(a.cfg.Poll.Mode),
		web.WithErrorReporter(sentryutil.ReportDispatch),
		web.WithLogger(a.log.With().Str("component", "web").Logger()),
	)

	mode, err := poller.ParseAdvanceMode(a.cfg.Poll.Advance)
	if err != nil {
		return err
	}
	opts := []poller.Option{
		poller.WithAdvanceMode(mode),
		poller.WithSkipFailed(a.cfg.Poll.SkipFailed),
		poller.WithErrorReporter(sentryutil.ReportDispatch),
		poller.WithLogger(a.log.With().Str("component", "poller").Logger()),
	}
	if a.offsets != nil {
		opts = append(opts, poller.WithOffsetStore(a.offsets))
	}
	p, err := poller.New(a.client, a.server, opts...)
	if err != nil {
		return err
	}
	a.poller = p
	return nil
}

// Run blocks in the configured mode until ctx is done. "once" handles a
// single batch and returns.
func (a *App) Run(ctx context.Context) error {
	limit, timeout := a.cfg.Poll.Limit, a.cfg.Poll.Timeout

	switch a.cfg.Poll.Mode {
	case "once":
		offset, err := a.poller.RunOnce(ctx, limit, timeout)
		var batchErr *poller.BatchError
		if errors.As(err, &batchErr) {
			a.log.Warn().Int("failed", len(batchErr.Failures)).Int64("offset", offset).Msg("batch finished with failures")
			return nil
		}
		if err != nil {
			return err
		}
		a.log.Info().Int64("offset", offset).Msg("batch finished")
		return nil

	case "webhook":
		return a.server.ListenAndServe(ctx, a.cfg.HTTP.Addr)

	default:
		g, gctx := errgroup.WithContext(ctx)
		if a.cfg.HTTP.Addr != "" {
			g.Go(func() error { return a.server.ListenAndServe(gctx, a.cfg.HTTP.Addr) })
		}
		g.Go(func() error {
			a.log.Info().Int("limit", limit).Int("timeout", timeout).Msg("polling started")
			err := a.poller.RunForever(gctx, limit, timeout)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		})
		return g.Wait()
	}
}

// Close releases the backends. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	if a.pg != nil {
		errs = append(errs, a.pg.Close())
		a.pg = nil
	}
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
		a.kv = nil
	}
	return errors.Join(errs...)
}

func (a *App) Client() *telegram.Client { return a.client }

// Status is nil when no key-value store is configured.
func (a *App) Status() *store.StatusStore { return a.status }

func (a *App) Languages() *store.LanguageStore { return a.languages }

func (a *App) Logger() zerolog.Logger { return a.log }

// Dispatcher routes single updates, e.g. for replaying a stored update.
func (a *App) Dispatcher() web.Dispatcher { return a.server }
