// Package fetch downloads a single PDF into a folder and reports a tagged outcome.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Status is the tri-state result of one fetch attempt.
type Status int

const (
	Failure Status = iota
	Success
	AlreadyPresent
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case AlreadyPresent:
		return "already_present"
	default:
		return "failure"
	}
}

// Outcome is what Fetch returns instead of an error.
type Outcome struct {
	Status   Status
	FileName string
	Message  string
}

func failed(msg string) Outcome {
	return Outcome{Status: Failure, Message: msg}
}

const (
	pdfExt         = ".pdf"
	DefaultTimeout = 10 * time.Second
)

var pdfMagic = []byte("%PDF-")

// HTTPStatusError is returned for non-200 HTTP responses.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

var (
	errTooLarge    = errors.New("content too large")
	errReadTimeout = errors.New("read timed out")
)

// Options configures a Fetcher.
type Options struct {
	Timeout          time.Duration
	AllowPrivate     bool
	AllowedHosts     []string
	MaxBytes         int64
	RequireExtension bool
	Limiter          *rate.Limiter
	// Client overrides the default client built from Timeout.
	Client *http.Client
}

// Fetcher performs content-validated downloads. It is safe for concurrent use.
type Fetcher struct {
	opts   Options
	client *http.Client
}

// New builds a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	f := &Fetcher{opts: opts}
	f.client = opts.Client
	if f.client == nil {
		dialer := &net.Dialer{Timeout: opts.Timeout}
		f.client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConnsPerHost:   8,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				_, err := f.validateURL(req.URL.String())
				return err
			},
		}
	}
	return f
}

// FileNameFromURL returns the last path segment of rawURL, or "" if there is none.
func FileNameFromURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	base := strings.TrimSpace(path.Base(parsed.Path))
	if base == "" || base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// HasPDFExt reports whether name ends in .pdf, ignoring case.
func HasPDFExt(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), pdfExt)
}

// Fetch downloads rawURL into folder. It never returns an error: every failure
// is reported as a Failure outcome carrying the error text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, folder string) Outcome {
	name := FileNameFromURL(rawURL)
	if name == "" {
		return failed("file name could not be determined")
	}
	target := filepath.Join(folder, name)
	if HasPDFExt(name) {
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			return Outcome{Status: AlreadyPresent, FileName: name, Message: "file already exists in this folder"}
		}
	} else if f.opts.RequireExtension {
		return failed("not a pdf file name")
	} else {
		name += pdfExt
		target = filepath.Join(folder, name)
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			return Outcome{Status: AlreadyPresent, FileName: name, Message: "file already exists in this folder"}
		}
	}

	parsed, err := f.validateURL(rawURL)
	if err != nil {
		return failed(err.Error())
	}
	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.Wait(ctx); err != nil {
			return failed(err.Error())
		}
	}
	if err := f.download(ctx, parsed.String(), folder, target); err != nil {
		return failed(err.Error())
	}
	return Outcome{Status: Success, FileName: name, Message: "file downloaded successfully"}
}

func (f *Fetcher) download(ctx context.Context, rawURL, folder, target string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body := newIdleReader(resp.Body, f.opts.Timeout, cancel)
	defer body.stop()
	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return errTooLarge
	}

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(body, head)
	if err != nil && body.expired() {
		return errReadTimeout
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if n < len(pdfMagic) || !bytes.Equal(head, pdfMagic) {
		return errors.New("not received as pdf file")
	}

	tmp, err := os.CreateTemp(folder, ".part-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	var content io.Reader = io.MultiReader(bytes.NewReader(head), body)
	if f.opts.MaxBytes > 0 {
		content = io.LimitReader(content, f.opts.MaxBytes+1)
	}
	written, err := io.Copy(tmp, content)
	if err != nil && body.expired() {
		return errReadTimeout
	}
	if err != nil {
		return err
	}
	if f.opts.MaxBytes > 0 && written > f.opts.MaxBytes {
		return errTooLarge
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}
	committed = true
	return nil
}
