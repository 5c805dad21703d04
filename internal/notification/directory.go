package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clubpay/pkg/platform/circuit"
	"clubpay/pkg/platform/sentinel"
)

// maxDirectoryBytes caps the recipient list response.
const maxDirectoryBytes = 8 << 20

// Directory returns the current opt-in recipient list.
type Directory interface {
	Recipients(ctx context.Context) ([]string, error)
}

// HTTPDirectory fetches recipients with a bounded timeout behind a circuit
// breaker, so a slow directory fails fast instead of stalling consumers.
type HTTPDirectory struct {
	url     string
	client  *http.Client
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type DirectoryOption func(*HTTPDirectory)

func WithHTTPClient(c *http.Client) DirectoryOption {
	return func(d *HTTPDirectory) { d.client = c }
}

func WithBreaker(b *circuit.Breaker) DirectoryOption {
	return func(d *HTTPDirectory) { d.breaker = b }
}

func WithDirectoryLogger(logger *slog.Logger) DirectoryOption {
	return func(d *HTTPDirectory) { d.logger = logger }
}

func WithDirectoryMetrics(m *Metrics) DirectoryOption {
	return func(d *HTTPDirectory) { d.metrics = m }
}

func NewHTTPDirectory(url string, timeout time.Duration, opts ...DirectoryOption) *HTTPDirectory {
	d := &HTTPDirectory{
		url:     url,
		client:  http.DefaultClient,
		timeout: timeout,
		breaker: circuit.New("directory"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *HTTPDirectory) Recipients(ctx context.Context) ([]string, error) {
	if !d.breaker.Allow() {
		d.metrics.ObserveDirectory("circuit_open", time.Time{})
		return nil, fmt.Errorf("directory: %w", sentinel.ErrCircuitOpen)
	}

	start := time.Now()
	recipients, err := d.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Caller cancellation says nothing about the directory.
			return nil, err
		}
		_, change := d.breaker.RecordFailure()
		if change.Opened {
			d.logger.WarnContext(ctx, "directory circuit opened", "error", err)
			d.metrics.SetDirectoryCircuit(true)
		}
		d.metrics.ObserveDirectory("error", start)
		return nil, err
	}
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.InfoContext(ctx, "directory circuit closed")
		d.metrics.SetDirectoryCircuit(false)
	}
	d.metrics.ObserveDirectory("ok", start)
	return recipients, nil
}

func (d *HTTPDirectory) fetch(ctx context.Context) ([]string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("directory request timed out: %w", sentinel.ErrUnavailable)
		}
		return nil, fmt.Errorf("directory request: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("directory returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	var recipients []string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDirectoryBytes)).Decode(&recipients); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	return recipients, nil
}
