// Package pipeline runs one tracking cycle: fetch every source, extract and
// reconcile listings, notify about new ones and persist the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"regent-tracker/config"
	"regent-tracker/fetch"
	"regent-tracker/models"
	"regent-tracker/scraper"
	"regent-tracker/services"
	"regent-tracker/storage"
	"regent-tracker/utils"
)

// Store is the persisted state plus its presentation export.
type Store interface {
	storage.StateStore
	storage.SnapshotWriter
}

// Fetchers resolves the fetcher for a source.
type Fetchers interface {
	For(src config.Source) fetch.Fetcher
}

// Deps are the collaborators of a Cycle.
type Deps struct {
	Config    *config.Config
	Fetchers  Fetchers
	Extractor *scraper.Extractor
	Store     Store
	// Exports receive the snapshot listings after the store is saved.
	// Their failures are logged and never fail the run.
	Exports  []storage.ListingWriter
	Notifier services.Notifier
	Logger   *utils.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Cycle is one invocation of the tracker.
type Cycle struct {
	Deps
	filter scraper.Filter
}

func New(d Deps) *Cycle {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = utils.NewNopLogger()
	}
	if d.Notifier == nil {
		d.Notifier = services.NewLogNotifier(d.Logger)
	}
	return &Cycle{Deps: d, filter: scraper.NewFilter(d.Config.Filter)}
}

// LockPath is the single-writer lock next to the cache file.
func LockPath(cfg *config.Config) string {
	return cfg.CacheFile + ".lock"
}

// sourceResult is what one source contributed.
type sourceResult struct {
	report   models.SourceReport
	listings []models.Listing
}

// Run executes the cycle. The report is returned even when persisting fails;
// an error means the store could not be locked or saved.
func (c *Cycle) Run(ctx context.Context) (*models.RunReport, error) {
	start := c.Now()
	report := &models.RunReport{RunID: c.NewRunID(), StartedAt: start}
	log := c.Logger.With("run_id", report.RunID)

	if err := os.MkdirAll(filepath.Dir(c.Config.CacheFile), 0o755); err != nil {
		return report, fmt.Errorf("create state dir: %w", err)
	}
	release, err := storage.Lock(LockPath(c.Config), c.Config.LockTTL)
	if err != nil {
		return report, err
	}
	defer release()

	cache, err := c.Store.Load()
	var corrupt *storage.CorruptStateError
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNoHistory):
		report.ColdStart = true
		log.Info("no listing history, starting cold")
	case errors.As(err, &corrupt):
		report.ColdStart = true
		log.Warn("listing history unusable, starting cold", "path", corrupt.Path, "error", err)
	default:
		report.ColdStart = true
		log.Warn("could not load listing history, starting cold", "error", err)
	}
	report.StoreBefore = len(cache.Listings)

	results := c.collect(ctx, log)
	var fresh []models.Listing
	for _, r := range results {
		report.Sources = append(report.Sources, r.report)
		fresh = append(fresh, r.listings...)
	}
	report.Extracted = len(fresh)

	rec := services.Reconcile(cache.Listings, fresh, start)
	report.New = rec.New
	report.SeenAgain = rec.SeenAgain
	report.StoreAfter = len(rec.Store)
	log.Info("reconciled",
		"extracted", report.Extracted,
		"new", len(rec.New),
		"seen_again", rec.SeenAgain,
		"store", report.StoreAfter)

	report.Notify, report.NotifyReason = c.notify(ctx, log, rec.New)

	next := &models.Cache{
		Version:  models.CacheVersion,
		RunID:    report.RunID,
		LastRun:  start,
		Listings: rec.Store,
	}
	persistCtx := context.WithoutCancel(ctx)
	if _, err := Publish(persistCtx, c.Store, c.Exports, next, c.Config.Sources, start, log); err != nil {
		report.FinishedAt = c.Now()
		return report, err
	}

	report.FinishedAt = c.Now()
	log.Info("cycle complete",
		"new", len(report.New),
		"unavailable", report.UnavailableSources(),
		"notify", report.Notify,
		"elapsed", report.FinishedAt.Sub(start).Round(time.Millisecond))
	return report, nil
}

// collect fetches and extracts every source on the worker pool and returns
// the results in configured source order. A panicking source is reported
// unavailable.
func (c *Cycle) collect(ctx context.Context, log *utils.Logger) []sourceResult {
	sources := c.Config.Sources
	results := make([]sourceResult, len(sources))
	pool := utils.NewWorkerPool(c.Config.MaxConcurrency, c.Config.RateLimitMs)

	for i, src := range sources {
		pool.Submit(func() {
			srcLog := log.With("source", src.ID)
			defer func() {
				if r := recover(); r != nil {
					srcLog.Error("source panicked", "panic", r, "stack", string(debug.Stack()))
					results[i] = sourceResult{report: models.SourceReport{
						Source: src.ID,
						Status: models.SourceUnavailable,
						Reason: scraper.ReasonPanic,
					}}
				}
			}()
			results[i] = c.collectSource(ctx, srcLog, src)
		})
	}
	pool.Wait()
	return results
}

func (c *Cycle) collectSource(ctx context.Context, log *utils.Logger, src config.Source) (out sourceResult) {
	began := time.Now()
	out = sourceResult{report: models.SourceReport{Source: src.ID, Status: models.SourceOK}}
	defer func() { out.report.Elapsed = time.Since(began) }()

	unavailable := func(err error) sourceResult {
		out.report.Status = models.SourceUnavailable
		var su *scraper.SourceUnavailableError
		switch {
		case errors.As(err, &su):
			out.report.Reason = su.Reason
		default:
			out.report.Reason = "rule"
		}
		log.Warn("source unavailable", "reason", out.report.Reason, "error", err)
		return out
	}

	fctx, cancel := context.WithTimeout(ctx, c.sourceTimeout())
	defer cancel()

	raw, err := c.Fetchers.For(src).Fetch(fctx, src.URL)
	if err != nil {
		reason := scraper.ReasonFetch
		if errors.Is(err, context.DeadlineExceeded) {
			reason = scraper.ReasonTimeout
		}
		return unavailable(&scraper.SourceUnavailableError{Source: src.ID, Reason: reason, Cause: err})
	}

	res, err := c.Extractor.Extract(raw, src.ID, c.filter)
	if err != nil {
		return unavailable(err)
	}

	out.report.Anchors = res.Anchors
	out.report.Listings = len(res.Listings)
	out.report.Skipped = res.Skipped
	out.report.Filtered = res.Filtered
	out.report.Duplicates = res.Duplicates
	out.listings = res.Listings
	if res.Skipped > 0 {
		log.Debug("fragments skipped", "count", res.Skipped)
	}
	log.Info("source extracted",
		"anchors", res.Anchors,
		"listings", len(res.Listings),
		"filtered", res.Filtered,
		"duplicates", res.Duplicates)
	return out
}

// sourceTimeout bounds one source including its retries.
func (c *Cycle) sourceTimeout() time.Duration {
	return c.Config.FetchTimeout * time.Duration(c.Config.MaxRetries+1)
}

func (c *Cycle) notify(ctx context.Context, log *utils.Logger, fresh []models.Listing) (models.NotifyOutcome, string) {
	outcome, err := c.Notifier.Notify(ctx, fresh)
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	switch outcome {
	case models.NotifySent:
		log.Info("notification sent", "listings", len(fresh))
	case models.NotifyFailed:
		log.Error("notification failed", "listings", len(fresh), "error", err)
	default:
		log.Info("notification skipped", "reason", reason)
	}
	return outcome, reason
}

// Publish saves cache, then writes the presentation export and every
// secondary export derived from it. Only a failed cache save or snapshot
// write is returned.
func Publish(ctx context.Context, store Store, exports []storage.ListingWriter, cache *models.Cache,
	sources []config.Source, runStart time.Time, log *utils.Logger) (*models.Snapshot, error) {
	if err := store.Save(cache); err != nil {
		return nil, fmt.Errorf("save cache: %w", err)
	}

	snap := storage.BuildSnapshot(cache, sources, runStart)
	if err := store.WriteSnapshot(snap); err != nil {
		return snap, fmt.Errorf("write snapshot: %w", err)
	}

	for _, w := range exports {
		if err := w.Write(ctx, snap.Listings); err != nil {
			log.Warn("secondary export failed", "error", err)
		}
	}
	log.Info("state saved", "listings", snap.Count, "new", snap.NewCount)
	return snap, nil
}
