package streaming

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nghyane/query-gateway/internal/json"
	"github.com/nghyane/query-gateway/internal/resilience"
)

// Framing selects how upstream lines are written to the client.
type Framing int

const (
	// FramingSSE writes each line followed by a blank line. A final line
	// without a newline is still delivered.
	FramingSSE Framing = iota
	// FramingLines writes each complete line followed by "\n". A final
	// line without a newline is dropped.
	FramingLines
)

// UpstreamStatusError is a non-2xx answer from the stream service.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("Memory service returned %d", e.StatusCode)
}

// RelayConfig tunes the upstream connection.
type RelayConfig struct {
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	ProxyURL       string
}

// Relay opens upstream streams. The client only bounds the connect phase;
// reads last until the upstream ends or the request context is canceled.
type Relay struct {
	client      *http.Client
	idleTimeout atomic.Int64
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	client, err := resilience.NewStreamingClient(cfg.ProxyURL, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	r := &Relay{client: client}
	r.SetIdleTimeout(cfg.IdleTimeout)
	return r, nil
}

// SetIdleTimeout changes the idle watchdog for streams opened afterwards.
func (r *Relay) SetIdleTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.idleTimeout.Store(int64(d))
}

// Upstream is an open stream. Close must be called.
type Upstream struct {
	reader *StreamReader
}

// Open connects to url. The returned stream is closed when ctx ends.
func (r *Relay) Open(ctx context.Context, url string) (*Upstream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}
	idle := time.Duration(r.idleTimeout.Load())
	return &Upstream{
		reader: NewStreamReader(ctx, resp.Body, idle, "stream "+req.URL.Path),
	}, nil
}

// Close releases the upstream connection.
func (u *Upstream) Close() error {
	return u.reader.Close()
}

// Forward copies non-blank upstream lines to w, flushing after each one.
// It returns the number of lines written. Upstream EOF is a normal end. An
// upstream that goes quiet past the idle timeout ends with ErrIdleTimeout; a
// write error means the client went away.
func (u *Upstream) Forward(w io.Writer, framing Framing) (int, error) {
	return forwardLines(u.reader, w, framing)
}

func forwardLines(src io.Reader, w io.Writer, framing Framing) (int, error) {
	flusher, _ := w.(http.Flusher)
	br := bufio.NewReaderSize(src, 32*1024)
	written := 0
	for {
		line, readErr := br.ReadString('\n')
		complete := strings.HasSuffix(line, "\n")
		if line != "" && (complete || framing == FramingSSE) {
			line = strings.TrimSuffix(line, "\n")
			if framing == FramingSSE {
				line = strings.TrimSuffix(line, "\r")
			}
			if strings.TrimSpace(line) != "" {
				var frame string
				if framing == FramingSSE {
					frame = line + "\n\n"
				} else {
					frame = line + "\n"
				}
				if _, err := io.WriteString(w, frame); err != nil {
					return written, err
				}
				if flusher != nil {
					flusher.Flush()
				}
				written++
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

// ErrorEvent is the synthetic event sent on the raw stream when the upstream
// cannot be read.
func ErrorEvent(message string) string {
	payload, _ := json.Marshal(message)
	return `data: {"error": ` + string(payload) + "}\n\n"
}
