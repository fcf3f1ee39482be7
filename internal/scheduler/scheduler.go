// Package scheduler keeps the published report of every watched GC log up to
// date, re-parsing a log when its fingerprint changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/gc-sentinel/gc-sentinel/internal/model"
	"github.com/gc-sentinel/gc-sentinel/internal/notifier"
	"github.com/gc-sentinel/gc-sentinel/internal/reader"
)

// DefaultAnalysisTimeout is the default timeout for one parse.
const DefaultAnalysisTimeout = 5 * time.Minute

// Analyzer runs one full parse of one resource.
type Analyzer interface {
	Analyze(ctx context.Context, resource string) (*model.Report, error)
}

// Recorder keeps the history of published reports.
type Recorder interface {
	Save(ctx context.Context, report *model.Report) error
}

// Options configures a Scheduler.
type Options struct {
	// Location interprets cron expressions. Defaults to UTC.
	Location *time.Location

	// MinInterval is the shortest time between two parses of one resource
	// triggered by a change. Zero disables the limit.
	MinInterval time.Duration

	// Timeout bounds one parse. Defaults to DefaultAnalysisTimeout.
	Timeout time.Duration

	// Recorder, when set, receives every published report.
	Recorder Recorder

	// Client fetches the fingerprints of remote resources.
	Client *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// entry is the state of one resource.
type entry struct {
	resource  string
	report    atomic.Pointer[model.Report]
	analyzing atomic.Bool
	limiter   *rate.Limiter

	mu          sync.Mutex
	fingerprint reader.Fingerprint
	parsed      bool
}

// Scheduler manages the re-parse jobs of a fixed set of resources. Reports
// are swapped in atomically, so readers never see a partial parse.
type Scheduler struct {
	cron     *cron.Cron
	analyzer Analyzer
	notifier notifier.Notifier
	opts     Options
	logger   *slog.Logger

	resources []string
	entries   map[string]*entry

	mu      sync.Mutex
	running bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new Scheduler for resources.
func New(analyzer Analyzer, notify notifier.Notifier, resources []string, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAnalysisTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if notify == nil {
		notify = notifier.Nop{}
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(opts.Location)),
		analyzer: analyzer,
		notifier: notify,
		opts:     opts,
		logger:   opts.Logger,
		entries:  make(map[string]*entry, len(resources)),
	}
	for _, r := range resources {
		if _, dup := s.entries[r]; dup {
			continue
		}
		s.resources = append(s.resources, r)
		s.entries[r] = &entry{resource: r, limiter: rate.NewLimiter(limit, 1)}
	}
	return s
}

// Schedule adds a job checking every resource for changes with the given
// cron expression.
func (s *Scheduler) Schedule(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, func() {
		s.CheckAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", cronExpr, err)
	}
	return nil
}

// Watch subscribes to file system notifications for the local resources;
// a write to one of them triggers a change check. It must be called before
// Start.
func (s *Scheduler) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, r := range s.resources {
		if reader.IsRemote(r) {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			w.Close()
			return fmt.Errorf("resolving %s: %w", r, err)
		}
		// watch the directory so rotated and recreated files are seen
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Start begins running scheduled jobs and the watch loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.cron.Start()
	if s.watcher != nil {
		s.done = make(chan struct{})
		s.wg.Add(1)
		go s.watchLoop(s.watcher, s.done)
	}
	s.running = true
	s.logger.Info("scheduler started", "resources", len(s.resources), "watch", s.watcher != nil)
}

// Stop halts all scheduled jobs and the watch loop. It waits for parses
// triggered by the watcher; the returned context is done once running cron
// jobs have completed.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return context.Background()
	}

	ctx := s.cron.Stop()
	if s.watcher != nil {
		close(s.done)
		s.wg.Wait()
		s.watcher.Close()
		s.watcher = nil
	}
	s.running = false
	s.logger.Info("scheduler stopped")
	return ctx
}

func (s *Scheduler) watchLoop(w *fsnotify.Watcher, done <-chan struct{}) {
	defer s.wg.Done()

	byPath := make(map[string]*entry, len(s.entries))
	for _, e := range s.entries {
		if abs, err := filepath.Abs(e.resource); err == nil && !reader.IsRemote(e.resource) {
			byPath[abs] = e
		}
	}

	for {
		select {
		case <-done:
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			e, ok := byPath[filepath.Clean(ev.Name)]
			if !ok {
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.refresh(context.Background(), e, false)
			}()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", "error", err)
		}
	}
}

// RunNow parses every resource immediately, ignoring fingerprints and the
// rate limit, and returns the joined errors of the failed parses.
func (s *Scheduler) RunNow(ctx context.Context) error {
	var errs []error
	for _, r := range s.resources {
		if _, err := s.refresh(ctx, s.entries[r], true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckAll re-parses the resources whose fingerprint changed since their
// last parse.
func (s *Scheduler) CheckAll(ctx context.Context) {
	for _, r := range s.resources {
		s.refresh(ctx, s.entries[r], false)
	}
}

// refresh parses e when forced or when its fingerprint changed. It reports
// whether a new report was published. A parse already in flight for e is
// not duplicated.
func (s *Scheduler) refresh(ctx context.Context, e *entry, force bool) (bool, error) {
	if !e.analyzing.CompareAndSwap(false, true) {
		s.logger.Debug("parse already in progress, skipping", "resource", e.resource)
		return false, nil
	}
	defer e.analyzing.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	fp, statErr := reader.Stat(ctx, e.resource, s.opts.Client)
	if statErr != nil && !force {
		s.logger.Warn("checking resource failed", "resource", e.resource, "error", statErr)
		return false, statErr
	}

	if !force {
		e.mu.Lock()
		unchanged := e.parsed && sameFingerprint(e.fingerprint, fp)
		e.mu.Unlock()
		if unchanged {
			return false, nil
		}
		if !e.limiter.Allow() {
			s.logger.Debug("re-parse rate limited", "resource", e.resource)
			return false, nil
		}
	}

	report, err := s.analyzer.Analyze(ctx, e.resource)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Error("parse timed out", "resource", e.resource, "timeout", s.opts.Timeout)
		} else {
			s.logger.Error("parse failed", "resource", e.resource, "error", err)
		}
		return false, err
	}

	e.report.Store(report)
	e.mu.Lock()
	e.fingerprint, e.parsed = fp, true
	e.mu.Unlock()

	s.publish(ctx, report)
	return true, nil
}

// publish hands a new report to the recorder and the notifier. Their
// failures are logged and do not withdraw the report.
func (s *Scheduler) publish(ctx context.Context, report *model.Report) {
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Save(ctx, report); err != nil {
			s.logger.Warn("saving report failed", "resource", report.Resource, "error", err)
		}
	}
	if err := s.notifier.Send(ctx, report); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("notification timed out", "notifier", s.notifier.Name())
		} else {
			s.logger.Warn("notification failed", "notifier", s.notifier.Name(), "error", err)
		}
		return
	}
	s.logger.Debug("notification sent", "notifier", s.notifier.Name(), "resource", report.Resource)
}

func sameFingerprint(a, b reader.Fingerprint) bool {
	return a.Size == b.Size && a.ModTime.Equal(b.ModTime)
}

// Resources returns the scheduled resources in configuration order.
func (s *Scheduler) Resources() []string {
	out := make([]string, len(s.resources))
	copy(out, s.resources)
	return out
}

// Report returns the latest published report of resource.
func (s *Scheduler) Report(resource string) (*model.Report, bool) {
	e, ok := s.entries[resource]
	if !ok {
		return nil, false
	}
	r := e.report.Load()
	return r, r != nil
}

// Reports returns the latest published report of every resource that has
// one, in configuration order.
func (s *Scheduler) Reports() []*model.Report {
	var out []*model.Report
	for _, r := range s.resources {
		if rep := s.entries[r].report.Load(); rep != nil {
			out = append(out, rep)
		}
	}
	return out
}

// IsRunning returns whether the scheduler is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsAnalyzing returns whether any parse is currently in progress.
func (s *Scheduler) IsAnalyzing() bool {
	for _, e := range s.entries {
		if e.analyzing.Load() {
			return true
		}
	}
	return false
}
