package streaming

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBody serves its data once, then blocks reads until closed.
type blockingBody struct {
	data   *strings.Reader
	gone   chan struct{}
	closed atomic.Bool
}

func newBlockingBody(data string) *blockingBody {
	return &blockingBody{data: strings.NewReader(data), gone: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if b.data.Len() > 0 {
		return b.data.Read(p)
	}
	<-b.gone
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		close(b.gone)
	}
	return nil
}

func TestStreamReader_PassesDataThrough(t *testing.T) {
	data := "data: {\"delta\":\"hi\"}\n"
	sr := NewStreamReader(context.Background(), io.NopCloser(strings.NewReader(data)), 0, "test")
	defer sr.Close()

	got, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
	assert.False(t, sr.Closed())
}

func TestStreamReader_ContextEndReadsAsEOF(t *testing.T) {
	body := newBlockingBody("")
	ctx, cancel := context.WithCancel(context.Background())
	sr := NewStreamReader(ctx, body, 0, "test")
	defer sr.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := sr.Read(make([]byte, 8))
		errc <- err
	}()
	cancel()

	select {
	case err := <-errc:
		assert.Equal(t, io.EOF, err)
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after cancel")
	}
	assert.True(t, body.closed.Load())
	assert.True(t, sr.Closed())
}

func TestStreamReader_CloseIsIdempotent(t *testing.T) {
	sr := NewStreamReader(context.Background(), io.NopCloser(strings.NewReader("test")), 0, "test")

	require.NoError(t, sr.Close())
	require.NoError(t, sr.Close())
	_, err := sr.Read(make([]byte, 10))
	assert.Equal(t, io.EOF, err)
}

func TestStreamReader_IdleCutReportsTimeout(t *testing.T) {
	body := newBlockingBody("data: first\n")
	sr := NewStreamReader(context.Background(), body, 40*time.Millisecond, "test")
	defer sr.Close()

	start := time.Now()
	got, err := io.ReadAll(sr)
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.Equal(t, "data: first\n", string(got))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, body.closed.Load())

	// Close after an idle cut keeps the idle verdict.
	require.NoError(t, sr.Close())
	_, err = sr.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestStreamReader_ActiveBodyIsNotCut(t *testing.T) {
	pr, pw := io.Pipe()
	sr := NewStreamReader(context.Background(), pr, 60*time.Millisecond, "test")
	defer sr.Close()

	go func() {
		for i := 0; i < 6; i++ {
			_, _ = io.WriteString(pw, "x")
			time.Sleep(20 * time.Millisecond)
		}
		_ = pw.Close()
	}()

	got, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxx", string(got))
	assert.False(t, sr.Closed())
}

func TestIdleTick_Clamped(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, idleTick(20*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, idleTick(time.Second))
	assert.Equal(t, 15*time.Second, idleTick(time.Minute))
	assert.Equal(t, 30*time.Second, idleTick(time.Hour))
}
