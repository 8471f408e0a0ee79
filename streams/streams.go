// Package streams provides IOStreams adapters for configmanager Store
// notices. It offers ready-to-use implementations that write to
// stdout/stderr, discard output, capture output in memory buffers (with an
// optional thread-safe variant), or forward messages to structured loggers
// (slog or zerolog).
package streams

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// IOStreams is the minimal contract for user-facing streams used by the
// configmanager Store. Any type with these three methods can be passed to
// configmanager.WithStreams, even if it is defined in a different package.
type IOStreams interface {
	In() io.Reader
	Out() io.Writer
	ErrOut() io.Writer
}

// BasicIOStreams is a simple IOStreams implementation that forwards writes to
// the supplied io.Writer targets. Use DefaultIOStreams, Writers, Discard,
// Slog, or Zerolog to construct values quickly.
type BasicIOStreams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func (s BasicIOStreams) In() io.Reader     { return s.in }
func (s BasicIOStreams) Out() io.Writer    { return s.out }
func (s BasicIOStreams) ErrOut() io.Writer { return s.errOut }

// DefaultIOStreams returns a BasicIOStreams backed by os.Stdin, os.Stdout
// and os.Stderr.
func DefaultIOStreams() BasicIOStreams {
	return BasicIOStreams{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// Writers returns a BasicIOStreams that writes Out to out and ErrOut to err.
// In is set to os.Stdin.
func Writers(out, err io.Writer) BasicIOStreams {
	return BasicIOStreams{in: os.Stdin, out: out, errOut: err}
}

// Discard returns a BasicIOStreams that drops all output.
func Discard() BasicIOStreams {
	return Writers(io.Discard, io.Discard)
}

// BuffersStreams captures output into bytes.Buffers. Use it to accumulate
// notices and inspect them after the Store operation completes. It is NOT
// safe for concurrent writers; see ThreadSafeBuffers for a synchronized
// variant.
type BuffersStreams struct {
	InR    io.Reader
	OutBuf *bytes.Buffer
	ErrBuf *bytes.Buffer
}

// Buffers creates a new BuffersStreams with fresh buffers for Out and ErrOut.
func Buffers() *BuffersStreams {
	return &BuffersStreams{
		InR:    os.Stdin,
		OutBuf: &bytes.Buffer{},
		ErrBuf: &bytes.Buffer{},
	}
}

func (b *BuffersStreams) In() io.Reader     { return b.InR }
func (b *BuffersStreams) Out() io.Writer    { return b.OutBuf }
func (b *BuffersStreams) ErrOut() io.Writer { return b.ErrBuf }

// Strings returns the current contents of the Out and ErrOut buffers.
func (b *BuffersStreams) Strings() (out, err string) {
	return b.OutBuf.String(), b.ErrBuf.String()
}

// Reset clears both Out and ErrOut buffers.
func (b *BuffersStreams) Reset() {
	b.OutBuf.Reset()
	b.ErrBuf.Reset()
}

// tsBuf is a minimal mutex-protected buffer.
type tsBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (t *tsBuf) Write(p []byte) (int, error) { t.mu.Lock(); defer t.mu.Unlock(); return t.b.Write(p) }
func (t *tsBuf) String() string              { t.mu.Lock(); defer t.mu.Unlock(); return t.b.String() }
func (t *tsBuf) Reset()                      { t.mu.Lock(); defer t.mu.Unlock(); t.b.Reset() }

// ThreadSafeBuffersStreams captures output into mutex-protected buffers and
// is safe for concurrent writers.
type ThreadSafeBuffersStreams struct {
	InR    io.Reader
	OutBuf *tsBuf
	ErrBuf *tsBuf
}

// ThreadSafeBuffers creates a new thread-safe buffers stream set.
func ThreadSafeBuffers() *ThreadSafeBuffersStreams {
	return &ThreadSafeBuffersStreams{
		InR:    os.Stdin,
		OutBuf: &tsBuf{},
		ErrBuf: &tsBuf{},
	}
}

func (b *ThreadSafeBuffersStreams) In() io.Reader     { return b.InR }
func (b *ThreadSafeBuffersStreams) Out() io.Writer    { return b.OutBuf }
func (b *ThreadSafeBuffersStreams) ErrOut() io.Writer { return b.ErrBuf }

// Strings returns the current contents of the Out and ErrOut buffers.
func (b *ThreadSafeBuffersStreams) Strings() (string, string) {
	return b.OutBuf.String(), b.ErrBuf.String()
}

// Reset clears both Out and ErrOut buffers.
func (b *ThreadSafeBuffersStreams) Reset() { b.OutBuf.Reset(); b.ErrBuf.Reset() }

// slogWriter adapts slog.Logger to io.Writer. Each Write becomes one log
// record, with a trailing newline trimmed.
type slogWriter struct {
	l     *slog.Logger
	level slog.Level
}

func (w slogWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	w.l.Log(context.Background(), w.level, string(p))
	return n, nil
}

// Slog returns a BasicIOStreams that writes Store notices to a slog.Logger.
// Out messages are logged at the info level, ErrOut messages at the err
// level.
func Slog(l *slog.Logger, info, err slog.Level) BasicIOStreams {
	return BasicIOStreams{
		in:     os.Stdin,
		out:    slogWriter{l: l, level: info},
		errOut: slogWriter{l: l, level: err},
	}
}

// zerologWriter adapts zerolog.Logger to io.Writer. Each Write becomes one
// log event, with a trailing newline trimmed.
type zerologWriter struct {
	l     zerolog.Logger
	level zerolog.Level
}

func (w zerologWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	w.l.WithLevel(w.level).Msg(string(p))
	return n, nil
}

// Zerolog returns a BasicIOStreams that writes Store notices to a
// zerolog.Logger. Out messages are logged at the info level, ErrOut messages
// at the err level.
func Zerolog(l zerolog.Logger, info, err zerolog.Level) BasicIOStreams {
	return BasicIOStreams{
		in:     os.Stdin,
		out:    zerologWriter{l: l, level: info},
		errOut: zerologWriter{l: l, level: err},
	}
}
