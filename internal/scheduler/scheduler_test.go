package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// fakeAnalyzer implements Analyzer for testing.
type fakeAnalyzer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, resource string) (*model.Report, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.Report{RunID: "run", Resource: resource}, nil
}

// mockNotifier implements notifier.Notifier for testing.
type mockNotifier struct {
	mu   sync.Mutex
	sent []*model.Report
}

func (m *mockNotifier) Send(ctx context.Context, report *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, report)
	return nil
}

func (m *mockNotifier) Name() string {
	return "mock"
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockRecorder struct {
	saves atomic.Int32
	err   error
}

func (m *mockRecorder) Save(ctx context.Context, report *model.Report) error {
	m.saves.Add(1)
	return m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func writeLog(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gc.log")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatal(err)
	}
}

func TestScheduler_RunNowPublishes(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{}
	notify := &mockNotifier{}
	rec := &mockRecorder{err: errors.New("disk full")}
	sched := New(an, notify, []string{path, path}, Options{Recorder: rec, Logger: quietLogger()})

	if got := sched.Resources(); len(got) != 1 {
		t.Fatalf("Resources() = %v, want duplicates removed", got)
	}
	if _, ok := sched.Report(path); ok {
		t.Fatal("Report() found before any parse")
	}

	if err := sched.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}

	report, ok := sched.Report(path)
	if !ok || report.Resource != path {
		t.Fatalf("Report() = %+v, %v", report, ok)
	}
	if len(sched.Reports()) != 1 {
		t.Errorf("Reports() = %d, want 1", len(sched.Reports()))
	}
	if notify.count() != 1 {
		t.Errorf("notifications = %d, want 1", notify.count())
	}
	// a recorder failure does not withdraw the report
	if rec.saves.Load() != 1 {
		t.Errorf("saves = %d, want 1", rec.saves.Load())
	}
}

func TestScheduler_CheckAllSkipsUnchanged(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{}
	sched := New(an, nil, []string{path}, Options{Logger: quietLogger()})

	sched.CheckAll(context.Background())
	sched.CheckAll(context.Background())
	if got := an.calls.Load(); got != 1 {
		t.Fatalf("calls = %d after two checks of an unchanged file, want 1", got)
	}

	appendLog(t, path, "2.0: [GC 150K->60K(200K), 0.01 secs]\n")
	sched.CheckAll(context.Background())
	if got := an.calls.Load(); got != 2 {
		t.Errorf("calls = %d after the file grew, want 2", got)
	}

	// forced runs ignore the fingerprint
	if err := sched.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := an.calls.Load(); got != 3 {
		t.Errorf("calls = %d after RunNow, want 3", got)
	}
}

func TestScheduler_RateLimited(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{}
	sched := New(an, nil, []string{path}, Options{MinInterval: time.Hour, Logger: quietLogger()})

	sched.CheckAll(context.Background())
	appendLog(t, path, "2.0: [GC 150K->60K(200K), 0.01 secs]\n")
	sched.CheckAll(context.Background())

	if got := an.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want the second parse rate limited", got)
	}
}

func TestScheduler_Concurrency(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sched := New(an, nil, []string{path}, Options{Logger: quietLogger()})

	if sched.IsAnalyzing() {
		t.Error("New scheduler should not be analyzing")
	}

	done := make(chan error, 1)
	go func() { done <- sched.RunNow(context.Background()) }()

	select {
	case <-an.started:
	case <-time.After(time.Second):
		t.Fatal("first parse did not start")
	}
	if !sched.IsAnalyzing() {
		t.Error("IsAnalyzing() = false during a parse")
	}

	// a second run while the first is in flight is skipped
	if err := sched.RunNow(context.Background()); err != nil {
		t.Errorf("overlapping RunNow() error = %v", err)
	}
	if got := an.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}

	close(an.release)
	if err := <-done; err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if sched.IsAnalyzing() {
		t.Error("IsAnalyzing() = true after the parse finished")
	}
}

func TestScheduler_Failures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.log")
	an := &fakeAnalyzer{err: errors.New("no such file")}
	notify := &mockNotifier{}
	sched := New(an, notify, []string{missing}, Options{Logger: quietLogger()})

	// a change check on a missing file never reaches the analyzer
	sched.CheckAll(context.Background())
	if got := an.calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}

	err := sched.RunNow(context.Background())
	if err == nil || !errors.Is(err, an.err) {
		t.Fatalf("RunNow() error = %v, want the analyzer error", err)
	}
	if _, ok := sched.Report(missing); ok {
		t.Error("Report() published after a failed parse")
	}
	if notify.count() != 0 {
		t.Errorf("notifications = %d, want 0", notify.count())
	}
}

func TestScheduler_Schedule(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil, Options{Logger: quietLogger()})

	if err := sched.Schedule("*/30 * * * * *"); err != nil {
		t.Errorf("Schedule() error = %v", err)
	}
	if err := sched.Schedule("every now and then"); err == nil {
		t.Error("Schedule() expected error for an invalid expression")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil, Options{Logger: quietLogger()})

	if sched.IsRunning() {
		t.Error("Scheduler should not be running initially")
	}

	sched.Start()
	if !sched.IsRunning() {
		t.Error("Scheduler should be running after Start()")
	}

	// Start again should be no-op
	sched.Start()
	if !sched.IsRunning() {
		t.Error("Scheduler should still be running")
	}

	ctx := sched.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Stop context should be done")
	}

	if sched.IsRunning() {
		t.Error("Scheduler should not be running after Stop()")
	}
}

func TestScheduler_Watch(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{}
	sched := New(an, nil, []string{path, "http://example.invalid/gc.log"}, Options{Logger: quietLogger()})

	if err := sched.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	sched.Start()
	defer sched.Stop()

	appendLog(t, path, "2.0: [GC 150K->60K(200K), 0.01 secs]\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := sched.Report(path); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no report after a write, calls = %d", an.calls.Load())
}

func TestScheduler_StopWaitsForWatchParse(t *testing.T) {
	path := writeLog(t, "1.0: [GC 100K->50K(200K), 0.01 secs]\n")
	an := &fakeAnalyzer{started: make(chan struct{}, 8), release: make(chan struct{})}
	notify := &mockNotifier{}
	sched := New(an, notify, []string{path}, Options{Logger: quietLogger()})

	if err := sched.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	sched.Start()

	appendLog(t, path, "2.0: [GC 150K->60K(200K), 0.01 secs]\n")
	select {
	case <-an.started:
	case <-time.After(5 * time.Second):
		close(an.release)
		sched.Stop()
		t.Fatal("no parse after a write")
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while a parse was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(an.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return after the parse finished")
	}
	if notify.count() != 1 {
		t.Errorf("notifications = %d, want 1 before Stop() returns", notify.count())
	}
	if sched.IsAnalyzing() {
		t.Error("IsAnalyzing() = true after Stop()")
	}
}

func TestScheduler_DefaultTimeout(t *testing.T) {
	sched := New(&fakeAnalyzer{}, nil, nil, Options{})
	if sched.opts.Timeout != DefaultAnalysisTimeout {
		t.Errorf("Timeout = %v, want %v", sched.opts.Timeout, DefaultAnalysisTimeout)
	}
	if sched.opts.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", sched.opts.Location)
	}
}
