package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/metrics"
)

const downloadBufferSize = 32 * 1024

// DownloadState is the lifecycle state of a download.
type DownloadState int

// Download states.
const (
	DownloadRunning DownloadState = iota
	DownloadCompleted
	DownloadFailed
	DownloadCancelled
)

// String returns a string representation of the state.
func (s DownloadState) String() string {
	switch s {
	case DownloadRunning:
		return "running"
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "failed"
	case DownloadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Done reports whether the state is final.
func (s DownloadState) Done() bool {
	return s != DownloadRunning
}

// Progress is a point-in-time view of a download.
type Progress struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`
	Name           string        `json:"name"`
	Path           string        `json:"path"`
	State          DownloadState `json:"-"`
	Received       int64         `json:"received"`
	Total          int64         `json:"total"` // -1 when unknown
	BytesPerSecond int64         `json:"bytes_per_second"`
	Err            error         `json:"-"`
}

// Percent returns completion in [0, 100], or -1 when the size is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Received) * 100 / float64(p.Total)
}

// String formats p for the status line.
func (p Progress) String() string {
	switch p.State {
	case DownloadCompleted:
		return fmt.Sprintf("Downloaded %s", p.Name)
	case DownloadFailed:
		return fmt.Sprintf("Download failed: %s: %v", p.Name, p.Err)
	case DownloadCancelled:
		return fmt.Sprintf("Download cancelled: %s", p.Name)
	}
	if pct := p.Percent(); pct >= 0 {
		return fmt.Sprintf("Downloading %s %.0f%% (%s/s)", p.Name, pct, FormatSpeed(p.BytesPerSecond))
	}
	return fmt.Sprintf("Downloading %s (%s/s)", p.Name, FormatSpeed(p.BytesPerSecond))
}

// FormatSpeed formats a byte rate as KB or MB.
func FormatSpeed(bytesPerSecond int64) string {
	kb := float64(bytesPerSecond) / 1024
	if kb < 1024 {
		return fmt.Sprintf("%.2f KB", kb)
	}
	return fmt.Sprintf("%.2f MB", kb/1024)
}

// Download is one transfer.
type Download struct {
	ID   string
	URL  string
	Name string
	Path string

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    DownloadState
	received int64
	total    int64
	bps      int64
	err      error
}

// Progress returns a snapshot of the download.
func (d *Download) Progress() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Progress{
		ID:             d.ID,
		URL:            d.URL,
		Name:           d.Name,
		Path:           d.Path,
		State:          d.state,
		Received:       d.received,
		Total:          d.total,
		BytesPerSecond: d.bps,
		Err:            d.err,
	}
}

// Wait blocks until the download finishes or ctx is done. It returns the
// download's error, which is nil on success.
func (d *Download) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Downloads runs file downloads in the background.
type Downloads struct {
	dir       string
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	onChange  func(Progress)

	mu     sync.Mutex
	active map[string]*Download
	order  []*Download
	closed bool
	wg     sync.WaitGroup
}

// DownloadOption configures Downloads.
type DownloadOption func(*Downloads)

// WithHTTPClient sets the client used for transfers.
func WithHTTPClient(c *http.Client) DownloadOption {
	return func(d *Downloads) {
		d.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) DownloadOption {
	return func(d *Downloads) {
		d.userAgent = ua
	}
}

// WithDownloadLogger sets the logger.
func WithDownloadLogger(logger *zap.Logger) DownloadOption {
	return func(d *Downloads) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDownloadMetrics records finished downloads.
func WithDownloadMetrics(m *metrics.Metrics) DownloadOption {
	return func(d *Downloads) {
		d.metrics = m
	}
}

// WithProgress is called when a download starts, about once a second while
// it runs, and when it finishes.
func WithProgress(fn func(Progress)) DownloadOption {
	return func(d *Downloads) {
		d.onChange = fn
	}
}

// NewDownloads creates a manager that saves into dir.
func NewDownloads(dir string, opts ...DownloadOption) *Downloads {
	d := &Downloads{
		dir:    dir,
		client: http.DefaultClient,
		logger: zap.NewNop(),
		active: make(map[string]*Download),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dir returns the destination directory.
func (d *Downloads) Dir() string {
	return d.dir
}

// Start begins downloading rawURL into the destination directory.
func (d *Downloads) Start(rawURL string) (*Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDownloadsClosed
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	name := bridge.FileNameFromURL(rawURL)
	path := uniquePath(filepath.Join(d.dir, name), d.taken)

	ctx, cancel := context.WithCancel(context.Background())
	dl := &Download{
		ID:     uuid.NewString(),
		URL:    rawURL,
		Name:   filepath.Base(path),
		Path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
		total:  -1,
	}
	d.active[dl.ID] = dl
	d.order = append(d.order, dl)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, dl)
	}()

	d.logger.Info("download started", zap.String("id", dl.ID), zap.String("url", rawURL), zap.String("path", path))
	return dl, nil
}

// taken reports whether path belongs to a running download. Called with
// d.mu held.
func (d *Downloads) taken(path string) bool {
	for _, dl := range d.active {
		if dl.Path == path {
			return true
		}
	}
	return false
}

// uniquePath appends " (n)" before the extension until path is free.
func uniquePath(path string, taken func(string) bool) string {
	free := func(p string) bool {
		if taken(p) {
			return false
		}
		_, err := os.Stat(p)
		return errors.Is(err, os.ErrNotExist)
	}
	if free(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		p := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if free(p) {
			return p
		}
	}
}

// Cancel stops a running download.
func (d *Downloads) Cancel(id string) error {
	d.mu.Lock()
	dl, ok := d.active[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDownload, id)
	}
	dl.cancel()
	return nil
}

// Get returns the download with id.
func (d *Downloads) Get(id string) (*Download, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dl := range d.order {
		if dl.ID == id {
			return dl, true
		}
	}
	return nil, false
}

// List returns every download in start order.
func (d *Downloads) List() []Progress {
	d.mu.Lock()
	order := append([]*Download(nil), d.order...)
	d.mu.Unlock()

	out := make([]Progress, len(order))
	for i, dl := range order {
		out[i] = dl.Progress()
	}
	return out
}

// Close cancels running downloads and waits for them to stop.
func (d *Downloads) Close() error {
	d.mu.Lock()
	d.closed = true
	for _, dl := range d.active {
		dl.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Downloads) run(ctx context.Context, dl *Download) {
	d.notify(dl)
	err := d.transfer(ctx, dl)

	dl.mu.Lock()
	switch {
	case err == nil:
		dl.state = DownloadCompleted
	case ctx.Err() != nil:
		dl.state = DownloadCancelled
		dl.err = context.Canceled
	default:
		dl.state = DownloadFailed
		dl.err = err
	}
	state, final := dl.state, dl.err
	dl.mu.Unlock()

	d.mu.Lock()
	delete(d.active, dl.ID)
	d.mu.Unlock()
	dl.cancel()

	d.metrics.RecordDownload(final)
	d.logger.Info("download finished",
		zap.String("id", dl.ID),
		zap.String("state", state.String()),
		zap.Error(final),
	)
	close(dl.done)
	d.notify(dl)
}

// transfer streams the response body into a .part file and renames it into
// place on success.
func (d *Downloads) transfer(ctx context.Context, dl *Download) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dl.URL, nil)
	if err != nil {
		return err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: %s", dl.URL, resp.Status)
	}

	if resp.ContentLength > 0 {
		dl.mu.Lock()
		dl.total = resp.ContentLength
		dl.mu.Unlock()
	}

	part := dl.Path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(part)
			return
		}
		err = os.Rename(part, dl.Path)
	}()

	buf := make([]byte, downloadBufferSize)
	last := time.Now()
	var lastReceived int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			dl.mu.Lock()
			dl.received += int64(n)
			received := dl.received
			dl.mu.Unlock()

			if elapsed := time.Since(last); elapsed >= time.Second {
				dl.mu.Lock()
				dl.bps = (received - lastReceived) * int64(time.Second) / int64(elapsed)
				dl.mu.Unlock()
				last, lastReceived = time.Now(), received
				d.notify(dl)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (d *Downloads) notify(dl *Download) {
	if d.onChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("download progress handler panicked", zap.Any("panic", r))
		}
	}()
	d.onChange(dl.Progress())
}
