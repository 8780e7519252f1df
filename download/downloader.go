// Package download implements the File Downloader (§4.3): a single-URL GET
// with retry, HTTP range-based resume, optional checksum verification, and
// progress reporting. Grounded directly on
// original_source/conans/client/downloaders/file_downloader.py - the
// status-code mapping, resume-via-Content-Range logic, and the
// gzip-tolerant short-read rule all follow that file line for line,
// translated into explicit Go error returns and a context.Context for
// cancellation the way the teacher's vcs_source.go threads a context
// through its own network operations.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"ccpm/errs"
)

// Progress is implemented by callers that want byte-level progress
// reporting, mirroring the progress.Output pattern used for layer downloads
// in moby's builder-next worker.
type Progress interface {
	WriteProgress(url string, downloaded, total int64)
}

type discardProgress struct{}

func (discardProgress) WriteProgress(string, int64, int64) {}

// Options configures a single download.
type Options struct {
	Auth       *Auth
	Headers    map[string]string
	VerifyTLS  bool
	Retry      int
	RetryWait  time.Duration
	Overwrite  bool
	MD5        string
	SHA1       string
	SHA256     string
	Progress   Progress
	HTTPClient *http.Client
}

// Auth is a bearer-token credential; its presence changes how a 403 is
// classified (§4.3 step 3).
type Auth struct {
	Token string
}

// Downloader issues single-URL fetches.
type Downloader struct {
	client *http.Client
}

func New(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

var contentRangeRE = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)`)

// Download fetches url to dest, following the algorithm in §4.3.
func (d *Downloader) Download(ctx context.Context, url, dest string, opts Options) error {
	if opts.Progress == nil {
		opts.Progress = discardProgress{}
	}
	if opts.HTTPClient != nil {
		d = &Downloader{client: opts.HTTPClient}
	}

	if _, err := os.Stat(dest); err == nil && !opts.Overwrite {
		return &errs.RequestError{Subject: dest, Cause: os.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", dest)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retry; attempt++ {
		err := d.downloadFile(ctx, url, dest, opts, false)
		if err == nil {
			return d.verifyChecksum(dest, opts)
		}
		if !isRetriable(err) {
			return err
		}
		lastErr = err
		if attempt < opts.Retry {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryWait):
			}
		}
	}
	os.Remove(dest)
	return lastErr
}

func isRetriable(err error) bool {
	switch err.(type) {
	case *errs.Transport:
		return true
	}
	return false
}

// downloadFile performs one GET, resuming from the current size of dest
// when resume is true. It recurses (once per short read that advertises
// Accept-Ranges) the same way file_downloader.py's _download_file does.
func (d *Downloader) downloadFile(ctx context.Context, url, dest string, opts Options, resume bool) error {
	var rangeStart int64
	headers := make(http.Header)
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	if resume {
		fi, err := os.Stat(dest)
		if err == nil {
			rangeStart = fi.Size()
			headers.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &errs.RequestError{Subject: url, Cause: err}
	}
	req.Header = headers
	if opts.Auth != nil && opts.Auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Auth.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &errs.Transport{Subject: url, Cause: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(url, resp, opts.Auth); err != nil {
		return err
	}

	totalLength, err := totalLength(resp, rangeStart)
	if err != nil {
		return err
	}

	mode := os.O_WRONLY | os.O_CREATE
	if rangeStart > 0 {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}
	f, err := os.OpenFile(dest, mode, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %s for write", dest)
	}

	downloaded := rangeStart
	_, copyErr := io.Copy(f, progressReader{r: resp.Body, url: url, total: totalLength, n: &downloaded, p: opts.Progress})
	closeErr := f.Close()
	if copyErr != nil {
		return &errs.Transport{Subject: url, Cause: copyErr}
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "closing %s", dest)
	}

	gzip := resp.Header.Get("Content-Encoding") == "gzip"
	if downloaded != totalLength && !gzip {
		if totalLength > downloaded && downloaded > rangeStart && resp.Header.Get("Accept-Ranges") == "bytes" {
			return d.downloadFile(ctx, url, dest, opts, true)
		}
		return &errs.Truncated{URL: url, Got: downloaded, Expected: totalLength}
	}
	return nil
}

func classifyStatus(url string, resp *http.Response, auth *Auth) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &errs.NotFound{Subject: url}
	case resp.StatusCode == http.StatusUnauthorized:
		return &errs.AuthRequired{Subject: url}
	case resp.StatusCode == http.StatusForbidden:
		if auth == nil || auth.Token == "" {
			return &errs.AuthRequired{Subject: url}
		}
		return &errs.Forbidden{Subject: url}
	default:
		return &errs.Transport{Subject: url, Cause: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

func totalLength(resp *http.Response, rangeStart int64) (int64, error) {
	if rangeStart > 0 {
		cr := resp.Header.Get("Content-Range")
		m := contentRangeRE.FindStringSubmatch(cr)
		if m == nil {
			return 0, &errs.Transport{Subject: resp.Request.URL.String(), Cause: errors.Errorf("malformed Content-Range %q", cr)}
		}
		start, _ := strconv.ParseInt(m[1], 10, 64)
		total, _ := strconv.ParseInt(m[3], 10, 64)
		if start != rangeStart {
			return 0, &errs.Transport{Subject: resp.Request.URL.String(), Cause: errors.Errorf("resume started at %d, server resumed at %d", rangeStart, start)}
		}
		return total, nil
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return resp.ContentLength, nil
}

func (d *Downloader) verifyChecksum(dest string, opts Options) error {
	check := func(algo string, want string, newHash func() hash.Hash) error {
		if want == "" {
			return nil
		}
		f, err := os.Open(dest)
		if err != nil {
			return err
		}
		defer f.Close()
		h := newHash()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		got := hex.EncodeToString(h.Sum(nil))
		if got != want {
			os.Remove(dest)
			return &errs.ChecksumMismatch{Path: dest, Algo: algo, Expected: want, Actual: got}
		}
		return nil
	}
	if err := check("md5", opts.MD5, md5.New); err != nil {
		return err
	}
	if err := check("sha1", opts.SHA1, sha1.New); err != nil {
		return err
	}
	return check("sha256", opts.SHA256, sha256.New)
}

// DownloadSet fetches every url in parallel, spawning one worker per URL and
// joining all before returning (§4.3 Concurrency); the first worker error is
// returned after every worker has finished.
func (d *Downloader) DownloadSet(ctx context.Context, targets map[string]string, opts Options) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))
	for url, dest := range targets {
		wg.Add(1)
		go func(url, dest string) {
			defer wg.Done()
			errCh <- d.Download(ctx, url, dest, opts)
		}(url, dest)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

type progressReader struct {
	r     io.Reader
	url   string
	total int64
	n     *int64
	p     Progress
}

func (pr progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	*pr.n += int64(n)
	pr.p.WriteProgress(pr.url, *pr.n, pr.total)
	return n, err
}
