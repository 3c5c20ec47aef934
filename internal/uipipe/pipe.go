// Package uipipe carries the control plane between the engine and its
// external UI process: a bidirectional, newline-delimited text protocol,
// push-based for engine→UI updates and pull-based for UI→engine commands.
//
// All frames are CRLF-free and newline-terminated. Floats always format
// with '.' as the decimal point regardless of process locale — Go's
// strconv is locale-independent by construction, which is the invariant
// the wire format needs. Booleans are the literal strings true/false.
package uipipe

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/rackbay/rackbay/internal/errors"
)

// NullValue is the sentinel meaning "no value" in typed parameter lines.
const NullValue = "(null)"

// outBufferSize bounds buffered outbound frames between flushes.
const outBufferSize = 256 * 1024

// Pipe is one end of the control channel. Writes are staged into a byte
// ring under the pipe mutex and pushed out by FlushMessages; reads are
// served by a goroutine feeding the inbound line channel so the idle pump
// never blocks.
type Pipe struct {
	mu  sync.Mutex
	out *ringbuffer.RingBuffer
	w   io.Writer

	lines  chan string
	closed chan struct{}
	once   sync.Once
}

// New wraps a reader/writer pair into a pipe and starts the read pump.
func New(r io.Reader, w io.Writer) *Pipe {
	p := &Pipe{
		out:    ringbuffer.New(outBufferSize),
		w:      w,
		lines:  make(chan string, 256),
		closed: make(chan struct{}),
	}
	go p.readLoop(r)
	return p
}

func (p *Pipe) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.closed:
			return
		}
	}
	p.Close()
}

// Close stops the read pump. Idempotent.
func (p *Pipe) Close() {
	p.once.Do(func() { close(p.closed) })
}

// Closed reports whether the other end went away.
func (p *Pipe) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// ReadLine returns one inbound line without blocking.
func (p *Pipe) ReadLine() (string, bool) {
	select {
	case line := <-p.lines:
		return line, true
	default:
		return "", false
	}
}

// --- outbound framing ---

// Lock serializes a multi-frame write against other writers. Every emit
// sequence is Lock, write*, Flush, Unlock.
func (p *Pipe) Lock()   { p.mu.Lock() }
func (p *Pipe) Unlock() { p.mu.Unlock() }

// WriteMessage stages one newline-terminated frame. The caller holds the
// pipe lock.
func (p *Pipe) WriteMessage(msg string) {
	p.out.WriteString(msg)
	p.out.WriteByte('\n')
}

// WriteAndFixMessage stages a frame, replacing an empty string with the
// null marker and stray newlines with carriage returns so the frame stays
// one line.
func (p *Pipe) WriteAndFixMessage(msg string) {
	if msg == "" {
		p.WriteMessage(NullValue)
		return
	}
	if strings.ContainsRune(msg, '\n') {
		msg = strings.ReplaceAll(msg, "\n", "\r")
	}
	p.WriteMessage(msg)
}

// WriteEmptyMessage stages a bare terminator frame.
func (p *Pipe) WriteEmptyMessage() {
	p.out.WriteByte('\n')
}

// FlushMessages pushes everything staged to the UI process.
func (p *Pipe) FlushMessages() error {
	n := p.out.Length()
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := p.out.Read(buf); err != nil {
		return errors.New(err).
			Component("uipipe").
			Category(errors.CategoryUIPipe).
			Build()
	}
	if _, err := p.w.Write(buf); err != nil {
		return errors.New(err).
			Component("uipipe").
			Category(errors.CategoryUIPipe).
			Build()
	}
	return nil
}

// --- typed frame helpers ---

// FormatFloat renders a float the way every numeric frame does.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// FormatBool renders the literal true/false strings.
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
