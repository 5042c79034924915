// Package download runs a window of catalog rows through a pool of fetch
// workers, falling back to the backup URL once, and records one outcome per row.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	logger "github.com/sirupsen/logrus"

	"PdfVault/internal/fetch"
	"PdfVault/internal/rowsource"
	"PdfVault/model"
)

// Fetcher downloads one URL into a folder.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, folder string) fetch.Outcome
}

// Mirror copies a downloaded file to secondary storage and returns its object name.
type Mirror interface {
	Mirror(ctx context.Context, key, folder, fileName string) (string, error)
}

// Options configures a Coordinator.
type Options struct {
	Workers int
	Folder  string
	Mirror  Mirror
}

// Coordinator owns the worker pool of one or more runs.
type Coordinator struct {
	fetcher  Fetcher
	recorder *Recorder
	opts     Options
}

// New builds a Coordinator. Workers defaults to the number of CPUs.
func New(fetcher Fetcher, recorder *Recorder, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Coordinator{fetcher: fetcher, recorder: recorder, opts: opts}
}

// attempt is one URL of one item handed to a worker.
type attempt struct {
	item  *model.CatalogItem
	url   string
	first bool // consult earlier outcomes before fetching
	final bool // a failure ends the item
}

func firstAttempt(item *model.CatalogItem) attempt {
	if item.PrimaryURL != "" {
		return attempt{item: item, url: item.PrimaryURL, first: true, final: item.BackupURL == ""}
	}
	return attempt{item: item, url: item.BackupURL, first: true, final: true}
}

type resultKind int

const (
	resultSuccess resultKind = iota
	resultAlready
	resultFailed
	resultRetry
)

type result struct {
	attempt attempt
	kind    resultKind
}

// Run processes up to limit rows of src (all rows if limit < 0) and returns
// the final counters. progress and onProgress may be nil.
func (c *Coordinator) Run(
	ctx context.Context,
	src rowsource.Source,
	limit int,
	progress Progress,
	onProgress func(Counters),
) (Counters, error) {
	var counters Counters
	folder, err := filepath.Abs(c.opts.Folder)
	if err != nil {
		return counters, err
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return counters, fmt.Errorf("create download folder: %w", err)
	}

	stopped := false
	if progress != nil {
		if err := progress.Start(ctx, counters); err != nil {
			if errors.Is(err, ErrTaskNotRunning) {
				stopped = true
			} else {
				logger.WithError(err).Warn("initial progress write failed")
			}
		}
	}

	jobs := make(chan attempt)
	results := make(chan result)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- c.process(ctx, a, folder)
			}
		}()
	}

	var (
		retries   []attempt
		next      *attempt
		exhausted = limit == 0
		pulled    int
		inFlight  int
		srcErr    error
	)
	for {
		if !stopped && ctx.Err() != nil {
			logger.WithError(ctx.Err()).Info("run interrupted, draining in-flight downloads")
			stopped = true
		}
		if stopped {
			next = nil
		} else if next == nil && !exhausted {
			item, err := src.Next()
			switch {
			case errors.Is(err, io.EOF):
				exhausted = true
			case err != nil:
				srcErr = fmt.Errorf("read row %d: %w", pulled, err)
				exhausted = true
			default:
				pulled++
				a := firstAttempt(item)
				next = &a
				if limit > 0 && pulled >= limit {
					exhausted = true
				}
			}
		}

		var (
			send chan<- attempt
			cand attempt
		)
		if len(retries) > 0 {
			send, cand = jobs, retries[0]
		} else if next != nil {
			send, cand = jobs, *next
		}
		if send == nil && inFlight == 0 {
			break
		}

		select {
		case send <- cand:
			inFlight++
			if len(retries) > 0 {
				retries = retries[1:]
			} else {
				next = nil
			}
		case res := <-results:
			inFlight--
			switch res.kind {
			case resultRetry:
				item := res.attempt.item
				retries = append(retries, attempt{item: item, url: item.BackupURL, final: true})
				continue
			case resultSuccess:
				counters.Successful++
			case resultAlready:
				counters.AlreadyDownloaded++
			case resultFailed:
				counters.Failed++
			}
			counters.ProcessedRows++
			if onProgress != nil {
				onProgress(counters)
			}
			if progress != nil && !stopped {
				if _, err := progress.MaybeFlush(ctx, counters); err != nil {
					if errors.Is(err, ErrTaskNotRunning) {
						logger.Info("task left running state, no new rows will be submitted")
						stopped = true
					} else {
						logger.WithError(err).Warn("progress write failed")
					}
				}
			}
		}
	}
	close(jobs)
	wg.Wait()

	if progress != nil {
		if err := progress.Finish(context.WithoutCancel(ctx), counters); err != nil {
			logger.WithError(err).Error("final progress write failed")
			if srcErr == nil {
				srcErr = err
			}
		}
	}
	return counters, srcErr
}

func (c *Coordinator) process(ctx context.Context, a attempt, folder string) result {
	item := a.item
	log := logger.WithFields(logger.Fields{"key": item.Key, "row": item.Row})
	if strings.TrimSpace(item.Key) == "" {
		log.Warn("row has no catalog key")
		return result{attempt: a, kind: resultFailed}
	}

	if a.first {
		prior, err := c.recorder.PriorSuccess(ctx, item.Key)
		if err != nil {
			log.WithError(err).Warn("lookup of earlier outcome failed")
		}
		if prior != nil {
			c.record(ctx, log, item, Outcome{
				Success:    true,
				FileName:   prior.FileName,
				Folder:     prior.FileFolder,
				ObjectName: prior.ObjectName,
				Message: fmt.Sprintf("download status for %s was already SUCCESS, file should be in folder %s, not downloading to %s",
					item.Key, prior.FileFolder, folder),
			})
			return result{attempt: a, kind: resultAlready}
		}
	}

	if a.url == "" {
		c.record(ctx, log, item, Outcome{Message: "no download url"})
		return result{attempt: a, kind: resultFailed}
	}

	out := c.fetcher.Fetch(ctx, a.url, folder)
	log = log.WithField("url", a.url)
	switch out.Status {
	case fetch.Success:
		rec := Outcome{Success: true, FileName: out.FileName, Folder: folder, Message: out.Message}
		if c.opts.Mirror != nil {
			objectName, err := c.opts.Mirror.Mirror(ctx, item.Key, folder, out.FileName)
			if err != nil {
				log.WithError(err).Warn("mirror upload failed")
			} else {
				rec.ObjectName = objectName
			}
		}
		c.record(ctx, log, item, rec)
		log.Debug("downloaded")
		return result{attempt: a, kind: resultSuccess}
	case fetch.AlreadyPresent:
		c.record(ctx, log, item, Outcome{Success: true, FileName: out.FileName, Folder: folder, Message: out.Message})
		return result{attempt: a, kind: resultAlready}
	default:
		if !a.final {
			log.WithField("reason", out.Message).Debug("primary url failed, trying backup")
			return result{attempt: a, kind: resultRetry}
		}
		log.WithField("reason", out.Message).Info("download failed")
		c.record(ctx, log, item, Outcome{Message: out.Message})
		return result{attempt: a, kind: resultFailed}
	}
}

// record persists an outcome; errors are logged and never stop the pool.
// The write outlives ctx so attempts finished during shutdown are kept.
func (c *Coordinator) record(ctx context.Context, log *logger.Entry, item *model.CatalogItem, out Outcome) {
	if err := c.recorder.Record(context.WithoutCancel(ctx), item, out); err != nil {
		log.WithError(err).Error("record outcome failed")
	}
}
