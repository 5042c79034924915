// Package task manages the lifecycle of download runs: starting a run over a
// window of a catalog file, processing it, polling and cancelling it.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"PdfVault/internal/download"
	"PdfVault/internal/repo"
	"PdfVault/internal/rowsource"
	"PdfVault/model"
	"PdfVault/utils"
)

var (
	ErrAlreadyRunning = errors.New("a run is already in progress for this file")
	ErrTaskNotFound   = repo.ErrTaskNotFound
	ErrInvalidRequest = errors.New("invalid run request")
	ErrSourceNotFound = errors.New("source file not found")
)

const runName = "download"

// Dispatcher hands a created task to whatever will process it.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

// Locker serializes starts for the same source file across processes.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), error)
}

// Notifier is told about every run that ends.
type Notifier interface {
	NotifyRun(ctx context.Context, status RunStatus) error
}

// Options configures a Runner.
type Options struct {
	SourceDir        string
	Folder           string
	Workers          int
	ProgressInterval time.Duration
	Columns          rowsource.Columns
	Mirror           download.Mirror
	Locker           Locker
	Notifier         Notifier
	OnProgress       func(taskID string, c download.Counters)
}

// Runner starts and tracks runs.
type Runner struct {
	tasks    *repo.TaskRepo
	reports  *repo.ReportRepo
	fetcher  download.Fetcher
	opts     Options
	dispatch Dispatcher
	now      func() time.Time

	baseCtx context.Context
	wg      sync.WaitGroup
	// startMu makes the running check and the insert one step within
	// this process; Locker extends that across processes.
	startMu sync.Mutex
}

// NewRunner builds a Runner. Runs are processed in-process until
// SetDispatcher installs another dispatcher.
func NewRunner(tasks *repo.TaskRepo, reports *repo.ReportRepo, fetcher download.Fetcher, opts Options) *Runner {
	if opts.Columns == (rowsource.Columns{}) {
		opts.Columns = rowsource.DefaultColumns()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = download.DefaultFlushInterval
	}
	r := &Runner{
		tasks:   tasks,
		reports: reports,
		fetcher: fetcher,
		opts:    opts,
		now:     time.Now,
		baseCtx: context.Background(),
	}
	r.dispatch = localDispatcher{r}
	return r
}

// SetDispatcher replaces the in-process dispatcher, e.g. with a queue.
func (r *Runner) SetDispatcher(d Dispatcher) {
	r.dispatch = d
}

// SetBaseContext sets the parent context of in-process runs; cancelling it
// interrupts them.
func (r *Runner) SetBaseContext(ctx context.Context) {
	r.baseCtx = ctx
}

// Wait blocks until in-process runs have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// StartRequest selects the rows of one run. A nil RowCount reads to the end.
type StartRequest struct {
	SourceFile string
	StartRow   int
	RowCount   *int
}

// Start validates req, records a running task and dispatches it.
func (r *Runner) Start(ctx context.Context, req StartRequest) (*model.RunningTask, error) {
	return r.start(ctx, req, r.dispatch)
}

// RunForeground starts a run and processes it before returning.
func (r *Runner) RunForeground(ctx context.Context, req StartRequest) (*RunStatus, error) {
	t, err := r.start(ctx, req, inline{})
	if err != nil {
		return nil, err
	}
	procErr := r.Process(ctx, t.TaskID)
	status, err := r.Status(context.WithoutCancel(ctx), t.TaskID)
	if err != nil {
		return nil, err
	}
	return status, procErr
}

func (r *Runner) start(ctx context.Context, req StartRequest, dispatch Dispatcher) (*model.RunningTask, error) {
	name := filepath.Clean(strings.TrimSpace(req.SourceFile))
	if strings.TrimSpace(req.SourceFile) == "" {
		return nil, fmt.Errorf("%w: source file is required", ErrInvalidRequest)
	}
	if req.StartRow < 0 {
		return nil, fmt.Errorf("%w: start row must not be negative", ErrInvalidRequest)
	}
	if req.RowCount != nil && *req.RowCount < 0 {
		return nil, fmt.Errorf("%w: row count must not be negative", ErrInvalidRequest)
	}
	if err := rowsource.CheckFormat(name); err != nil {
		return nil, err
	}
	path, err := r.sourcePath(name)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}

	if r.opts.Locker != nil {
		release, err := r.opts.Locker.Acquire(ctx, name)
		if errors.Is(err, repo.ErrLockBusy) {
			return nil, ErrAlreadyRunning
		}
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", name, err)
		}
		defer release()
	}
	r.startMu.Lock()
	defer r.startMu.Unlock()

	running, err := r.tasks.FindRunning(ctx, name)
	if err != nil {
		return nil, err
	}
	if running != nil {
		return nil, fmt.Errorf("%w: task %s", ErrAlreadyRunning, running.TaskID)
	}

	numRows := model.RowsToEnd
	if req.RowCount != nil {
		numRows = *req.RowCount
	}
	t := &model.RunningTask{
		TaskID:      utils.GetToken(),
		Name:        runName,
		Status:      model.TaskRunning,
		RunningFile: name,
		StartTime:   r.now(),
		StartRow:    req.StartRow,
		NumRows:     numRows,
		Results:     download.Counters{}.JSON(),
	}
	if err := r.tasks.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := dispatch.Dispatch(ctx, t.TaskID); err != nil {
		if ferr := r.tasks.Finish(context.WithoutCancel(ctx), t.TaskID, 0, t.Results, r.now()); ferr != nil {
			logger.WithError(ferr).WithField("task_id", t.TaskID).Error("close undispatched task failed")
		}
		return nil, fmt.Errorf("dispatch task %s: %w", t.TaskID, err)
	}
	logger.WithFields(logger.Fields{
		"task_id":   t.TaskID,
		"file":      name,
		"start_row": t.StartRow,
		"num_rows":  t.NumRows,
	}).Info("run started")
	return t, nil
}

// Process runs the window of a task to completion. A task that is no longer
// running is skipped.
func (r *Runner) Process(ctx context.Context, taskID string) error {
	t, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	log := logger.WithFields(logger.Fields{"task_id": taskID, "file": t.RunningFile})
	if t.Status != model.TaskRunning {
		log.WithField("status", t.Status).Info("task is not running, skipping")
		return nil
	}

	reporter := download.NewReporter(r.tasks, taskID, r.opts.ProgressInterval)
	src, err := r.openSource(t)
	if err != nil {
		log.WithError(err).Error("open source failed")
		// the coordinator never started, so nothing else closes the task
		if ferr := reporter.Finish(context.WithoutCancel(ctx), download.Counters{}); ferr != nil {
			log.WithError(ferr).Error("close task failed")
		}
		r.notify(ctx, taskID)
		return err
	}
	err = r.run(ctx, taskID, src, reporter)
	if err != nil {
		log.WithError(err).Error("run failed")
	}
	r.notify(ctx, taskID)
	return err
}

func (r *Runner) openSource(t *model.RunningTask) (rowsource.Source, error) {
	path, err := r.sourcePath(t.RunningFile)
	if err != nil {
		return nil, err
	}
	return rowsource.Open(path, t.StartRow, t.NumRows, r.opts.Columns)
}

func (r *Runner) run(ctx context.Context, taskID string, src rowsource.Source, reporter *download.Reporter) error {
	defer src.Close()
	coord := download.New(r.fetcher, download.NewRecorder(r.reports), download.Options{
		Workers: r.opts.Workers,
		Folder:  r.opts.Folder,
		Mirror:  r.opts.Mirror,
	})
	var onProgress func(download.Counters)
	if r.opts.OnProgress != nil {
		onProgress = func(c download.Counters) { r.opts.OnProgress(taskID, c) }
	}
	counters, err := coord.Run(ctx, src, -1, reporter, onProgress)
	logger.WithFields(logger.Fields{
		"task_id":            taskID,
		"successful":         counters.Successful,
		"already_downloaded": counters.AlreadyDownloaded,
		"failed":             counters.Failed,
		"processed_rows":     counters.ProcessedRows,
	}).Info("run ended")
	return err
}

func (r *Runner) notify(ctx context.Context, taskID string) {
	if r.opts.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	status, err := r.Status(ctx, taskID)
	if err != nil {
		logger.WithError(err).WithField("task_id", taskID).Warn("load task for notification failed")
		return
	}
	if err := r.opts.Notifier.NotifyRun(ctx, *status); err != nil {
		logger.WithError(err).WithField("task_id", taskID).Warn("run notification failed")
	}
}

// Cancel stops a running task. It reports whether the task changed and the
// status the task now has.
func (r *Runner) Cancel(ctx context.Context, taskID string) (bool, string, error) {
	prev, changed, err := r.tasks.Cancel(ctx, taskID)
	if err != nil {
		return false, "", err
	}
	if changed {
		logger.WithField("task_id", taskID).Info("run cancelled")
		return true, model.TaskCancelled, nil
	}
	return false, prev, nil
}

// sourcePath resolves name inside SourceDir. Absolute names are used as is.
func (r *Runner) sourcePath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: source file escapes the source folder", ErrInvalidRequest)
	}
	return filepath.Join(r.opts.SourceDir, name), nil
}

// inline leaves processing to the caller.
type inline struct{}

func (inline) Dispatch(context.Context, string) error { return nil }

type localDispatcher struct {
	r *Runner
}

func (d localDispatcher) Dispatch(_ context.Context, taskID string) error {
	d.r.wg.Add(1)
	go func() {
		defer d.r.wg.Done()
		if err := d.r.Process(d.r.baseCtx, taskID); err != nil {
			logger.WithError(err).WithField("task_id", taskID).Error("process run failed")
		}
	}()
	return nil
}
