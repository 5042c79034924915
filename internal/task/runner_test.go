package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PdfVault/internal/download"
	"PdfVault/internal/fetch"
	"PdfVault/internal/repo"
	"PdfVault/internal/rowsource"
	"PdfVault/model"
)

type captureDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *captureDispatcher) Dispatch(_ context.Context, taskID string) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, taskID)
	return nil
}

type captureNotifier struct {
	mu   sync.Mutex
	runs []RunStatus
}

func (n *captureNotifier) NotifyRun(_ context.Context, s RunStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, s)
	return nil
}

type env struct {
	runner    *Runner
	tasks     *repo.TaskRepo
	reports   *repo.ReportRepo
	sourceDir string
	folder    string
	server    *httptest.Server
	notifier  *captureNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repo.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() { _ = repo.CloseDB(db) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.5 test"))
	}))
	t.Cleanup(srv.Close)

	e := &env{
		tasks:     repo.NewTaskRepo(db),
		reports:   repo.NewReportRepo(db),
		sourceDir: t.TempDir(),
		folder:    t.TempDir(),
		server:    srv,
		notifier:  &captureNotifier{},
	}
	fetcher := fetch.New(fetch.Options{Timeout: time.Second, AllowPrivate: true, RequireExtension: true})
	e.runner = NewRunner(e.tasks, e.reports, fetcher, Options{
		SourceDir: e.sourceDir,
		Folder:    e.folder,
		Workers:   2,
		Notifier:  e.notifier,
	})
	return e
}

// writeCatalog writes n rows; every third row points at a missing file.
func (e *env) writeCatalog(t *testing.T, name string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("BRnum,Pdf_URL,Report Html Address,Title\n")
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("%s/files/r%d.pdf", e.server.URL, i)
		if i%3 == 2 {
			url = fmt.Sprintf("%s/missing/r%d.pdf", e.server.URL, i)
		}
		fmt.Fprintf(&b, "BR%d,%s,,Report %d\n", i, url, i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(e.sourceDir, name), []byte(b.String()), 0o644))
}

func intPtr(v int) *int { return &v }

func TestStartValidation(t *testing.T) {
	e := newEnv(t)
	e.runner.SetDispatcher(&captureDispatcher{})

	_, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "catalog.txt"})
	var formatErr *rowsource.FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "nope.csv"})
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: ""})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	e.writeCatalog(t, "c.csv", 3)
	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "c.csv", StartRow: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "c.csv", RowCount: intPtr(-2)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "../c.csv"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tasks, err := e.tasks.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStartRejectsSecondRunOnSameFile(t *testing.T) {
	e := newEnv(t)
	d := &captureDispatcher{}
	e.runner.SetDispatcher(d)
	e.writeCatalog(t, "a.csv", 3)
	e.writeCatalog(t, "b.csv", 3)

	first, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "a.csv"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskRunning, first.Status)
	assert.Equal(t, model.RowsToEnd, first.NumRows)

	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "a.csv", StartRow: 1})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "b.csv"})
	assert.NoError(t, err)
	assert.Len(t, d.ids, 2)

	changed, status, err := e.runner.Cancel(context.Background(), first.TaskID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.TaskCancelled, status)

	_, err = e.runner.Start(context.Background(), StartRequest{SourceFile: "a.csv"})
	assert.NoError(t, err)
}

func TestConcurrentStartsAdmitOneRun(t *testing.T) {
	e := newEnv(t)
	e.runner.SetDispatcher(&captureDispatcher{})
	e.writeCatalog(t, "a.csv", 3)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "a.csv"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, ErrAlreadyRunning):
				rejected++
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, callers-1, rejected)

	tasks, err := e.tasks.List(context.Background(), 50)
	require.NoError(t, err)
	running := 0
	for _, rt := range tasks {
		if rt.RunningFile == "a.csv" && rt.Status == model.TaskRunning {
			running++
		}
	}
	assert.Equal(t, 1, running)
}

func TestProcessWindow(t *testing.T) {
	e := newEnv(t)
	d := &captureDispatcher{}
	e.runner.SetDispatcher(d)
	e.writeCatalog(t, "gri.csv", 10)

	task, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "gri.csv", StartRow: 2, RowCount: intPtr(6)})
	require.NoError(t, err)
	require.Equal(t, []string{task.TaskID}, d.ids)

	require.NoError(t, e.runner.Process(context.Background(), task.TaskID))

	status, err := e.runner.Status(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFinished, status.Status)
	require.NotNil(t, status.EndTime)
	assert.Equal(t, 6, status.ProcessedRows)
	// rows 2..7: 2, 5 point at missing files
	assert.Equal(t, download.Counters{Successful: 4, Failed: 2, ProcessedRows: 6}, status.Counters)
	assert.Equal(t, 2, status.StartRow)
	assert.Equal(t, 6, status.RowCount)

	_, err = e.reports.GetByKey(context.Background(), "BR1")
	assert.ErrorIs(t, err, repo.ErrReportNotFound)
	rec, err := e.reports.GetByKey(context.Background(), "BR3")
	require.NoError(t, err)
	assert.Equal(t, "Report 3", rec.Title)
	assert.FileExists(t, filepath.Join(e.folder, "r3.pdf"))

	require.Len(t, e.notifier.runs, 1)
	assert.Equal(t, 4, e.notifier.runs[0].Counters.Successful)

	changed, current, err := e.runner.Cancel(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.TaskFinished, current)
}

func TestProcessSkipsCancelledTask(t *testing.T) {
	e := newEnv(t)
	e.runner.SetDispatcher(&captureDispatcher{})
	e.writeCatalog(t, "gri.csv", 4)

	task, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "gri.csv"})
	require.NoError(t, err)
	_, _, err = e.runner.Cancel(context.Background(), task.TaskID)
	require.NoError(t, err)

	require.NoError(t, e.runner.Process(context.Background(), task.TaskID))
	status, err := e.runner.Status(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCancelled, status.Status)
	assert.Zero(t, status.ProcessedRows)
	assert.Empty(t, e.notifier.runs)
}

func TestProcessClosesTaskWhenSourceVanishes(t *testing.T) {
	e := newEnv(t)
	e.runner.SetDispatcher(&captureDispatcher{})
	e.writeCatalog(t, "gri.csv", 4)

	task, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "gri.csv"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(e.sourceDir, "gri.csv")))

	assert.Error(t, e.runner.Process(context.Background(), task.TaskID))
	status, err := e.runner.Status(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFinished, status.Status)
	assert.NotNil(t, status.EndTime)
}

func TestStartDispatchFailureClosesTask(t *testing.T) {
	e := newEnv(t)
	e.runner.SetDispatcher(&captureDispatcher{err: errors.New("broker down")})
	e.writeCatalog(t, "gri.csv", 2)

	_, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "gri.csv"})
	require.ErrorContains(t, err, "broker down")

	running, err := e.tasks.FindRunning(context.Background(), "gri.csv")
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestLocalDispatchRunsInBackground(t *testing.T) {
	e := newEnv(t)
	e.writeCatalog(t, "gri.csv", 5)

	task, err := e.runner.Start(context.Background(), StartRequest{SourceFile: "gri.csv"})
	require.NoError(t, err)
	e.runner.Wait()

	status, err := e.runner.Status(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFinished, status.Status)
	assert.Equal(t, 5, status.ProcessedRows)
	assert.Equal(t, status.ProcessedRows, status.Counters.Successful+status.Counters.AlreadyDownloaded+status.Counters.Failed)

	list, err := e.runner.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.TaskID, list[0].TaskID)
}

func TestStatusUnknownTask(t *testing.T) {
	e := newEnv(t)
	_, err := e.runner.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, _, err = e.runner.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

type capturePublisher struct {
	bodies [][]byte
}

func (p *capturePublisher) PublishTask(_ context.Context, body []byte) error {
	p.bodies = append(p.bodies, body)
	return nil
}

func TestQueueDispatcher(t *testing.T) {
	pub := &capturePublisher{}
	require.NoError(t, NewQueueDispatcher(pub).Dispatch(context.Background(), "abc"))
	require.Len(t, pub.bodies, 1)
	var msg RunMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, RunMessage{TaskID: "abc"}, msg)
}

func TestSummaryBody(t *testing.T) {
	body := string(SummaryBody(RunStatus{
		TaskID:        "t1",
		Status:        model.TaskFinished,
		SourceFile:    "gri<1>.csv",
		RowCount:      model.RowsToEnd,
		ProcessedRows: 7,
		Counters:      download.Counters{Successful: 5, Failed: 2, ProcessedRows: 7},
		Elapsed:       90 * time.Second,
	}))
	assert.Contains(t, body, "gri&lt;1&gt;.csv")
	assert.Contains(t, body, "to end of file")
	assert.Contains(t, body, "<td>Downloaded</td><td>5</td>")
	assert.Contains(t, body, "1m30s")
}

func TestRunForeground(t *testing.T) {
	e := newEnv(t)
	d := &captureDispatcher{}
	e.runner.SetDispatcher(d)
	e.writeCatalog(t, "gri.csv", 3)

	var seen []download.Counters
	e.runner.opts.OnProgress = func(_ string, c download.Counters) { seen = append(seen, c) }

	status, err := e.runner.RunForeground(context.Background(), StartRequest{SourceFile: "gri.csv", RowCount: intPtr(2)})
	require.NoError(t, err)
	assert.Empty(t, d.ids)
	assert.Equal(t, model.TaskFinished, status.Status)
	assert.Equal(t, download.Counters{Successful: 2, ProcessedRows: 2}, status.Counters)
	assert.Len(t, seen, 2)
}
