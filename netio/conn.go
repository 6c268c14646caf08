// Package netio implements the byte framing layer: a delimiter-framed,
// half-duplex-capable transport that interleaves command frames with
// raw file byte ranges read off disk. It owns exactly one socket per
// Conn — unlike a pool, a hub or peer session holds a single persistent
// connection for its lifetime.
package netio

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dcpeer/dcpeer/internal/logger"
)

// MaxFrameSize is the hard cap on a single inbound command frame (§4.4:
// "any frame larger than a hard cap (>= 64 KiB) is a protocol error").
const MaxFrameSize = 64 * 1024

// Phase identifies which operation an error occurred during.
type Phase int

const (
	PhaseConnect Phase = iota
	PhaseReceive
	PhaseSend
)

func (p Phase) String() string {
	switch p {
	case PhaseConnect:
		return "connect"
	case PhaseReceive:
		return "receive"
	case PhaseSend:
		return "send"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a transport-level failure.
type ErrorKind int

const (
	ErrKindIO ErrorKind = iota
	ErrKindCancelled
)

// outputMode tracks what Conn's writer goroutine is currently doing.
type outputMode int

const (
	outIdle outputMode = iota
	outCommand
	outFile
)

// Conn wraps a single net.Conn with an inbound scan buffer and the
// current output mode (outbound writes go straight to the socket),
// mirroring the teacher's
// pooledConn lifecycle (connect/send/close) without the pooling: a
// hub or peer session owns exactly one Conn for its whole life.
type Conn struct {
	mu        sync.Mutex
	conn      net.Conn
	delimiter byte
	mode      outputMode
	fileLeft  int64

	onCommand func(frame []byte)
	onError   func(phase Phase, kind ErrorKind, err error)

	closed bool
	done   chan struct{}
}

// Options configures a new Conn.
type Options struct {
	// Delimiter is '|' for the legacy protocol, '\n' for the modern one.
	Delimiter byte
	// TLSConfig, if non-nil, upgrades the dial to TLS. Treated as an
	// external black box per the spec.
	TLSConfig *tls.Config
	OnCommand func(frame []byte)
	OnError   func(phase Phase, kind ErrorKind, err error)
}

// Connect resolves remote ("host" or "host:port", defaultPort used when
// no port is given) and dials it, starting the read loop once the dial
// succeeds. Mirrors connection.go's createRealConnection: a
// net.Dialer.DialContext with a deadline, TLS optionally layered on.
func Connect(ctx context.Context, remote string, defaultPort string, timeout time.Duration, opts Options) (*Conn, error) {
	addr := remote
	if _, _, err := net.SplitHostPort(remote); err != nil {
		addr = net.JoinHostPort(remote, defaultPort)
	}

	dialer := &net.Dialer{Timeout: timeout}
	logger.Debug("netio: dialing", "addr", addr)

	var raw net.Conn
	var err error
	if opts.TLSConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: opts.TLSConfig}
		raw, err = td.DialContext(ctx, "tcp", addr)
	} else {
		raw, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		logger.Warn("netio: dial failed", "addr", addr, "error", err)
		return nil, fmt.Errorf("netio: dial %s: %w", addr, err)
	}

	c := &Conn{
		conn:      raw,
		delimiter: opts.Delimiter,
		onCommand: opts.OnCommand,
		onError:   opts.OnError,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Wrap adapts an already-established net.Conn (typically one handed
// back by a listener's Accept, for an incoming C↔C connection) into a
// Conn, starting its read loop immediately.
func Wrap(raw net.Conn, opts Options) *Conn {
	c := &Conn{
		conn:      raw,
		delimiter: opts.Delimiter,
		onCommand: opts.OnCommand,
		onError:   opts.OnError,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop scans the socket for delimiter-terminated frames and hands
// each complete one to onCommand. It runs until the connection is
// closed or a read error occurs.
func (c *Conn) readLoop() {
	r := bufio.NewReaderSize(c.conn, MaxFrameSize)
	var buf []byte

	for {
		b, err := r.ReadByte()
		if err != nil {
			c.reportError(PhaseReceive, err)
			return
		}
		if b == c.delimiter {
			frame := buf
			buf = nil
			if c.onCommand != nil {
				c.onCommand(frame)
			}
			continue
		}
		buf = append(buf, b)
		if len(buf) > MaxFrameSize {
			c.reportError(PhaseReceive, fmt.Errorf("netio: frame exceeds %d bytes", MaxFrameSize))
			return
		}
	}
}

func (c *Conn) reportError(phase Phase, err error) {
	kind := ErrKindIO
	select {
	case <-c.done:
		kind = ErrKindCancelled
	default:
	}
	if c.onError != nil {
		c.onError(phase, kind, err)
	}
}

// Send writes buf to the socket as a command frame, appending the
// delimiter, and returns once the write completes.
func (c *Conn) Send(buf []byte) error {
	c.mu.Lock()
	c.mode = outCommand
	c.mu.Unlock()

	framed := append(append([]byte(nil), buf...), c.delimiter)
	return c.writeAll(framed)
}

// Sendf formats according to format and sends the result as a
// command frame.
func (c *Conn) Sendf(format string, args ...any) error {
	return c.Send([]byte(fmt.Sprintf(format, args...)))
}

// SendRaw writes b to the socket without appending the delimiter.
func (c *Conn) SendRaw(b []byte) error {
	return c.writeAll(b)
}

// Sendfile opens path and streams length bytes starting at offset to
// the peer, switching the output mode to outFile for the duration and
// back to outIdle once done.
func (c *Conn) Sendfile(path string, offset, length int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("netio: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("netio: seek %s: %w", path, err)
	}

	c.mu.Lock()
	c.mode = outFile
	c.fileLeft = length
	c.mu.Unlock()

	_, err = io.CopyN(c.conn, f, length)

	c.mu.Lock()
	c.mode = outIdle
	c.fileLeft = 0
	c.mu.Unlock()

	if err != nil {
		c.reportError(PhaseSend, err)
		return fmt.Errorf("netio: send file %s: %w", path, err)
	}
	return nil
}

func (c *Conn) writeAll(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		c.reportError(PhaseSend, err)
		return fmt.Errorf("netio: write: %w", err)
	}
	c.mu.Lock()
	c.mode = outIdle
	c.mu.Unlock()
	return nil
}

// FileBytesRemaining reports the full length of the range an in-flight
// Sendfile is streaming, 0 outside a file transfer; the value is not
// decremented as bytes are written. Used by slot
// admission to count sessions currently streaming (§4.7).
func (c *Conn) FileBytesRemaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileLeft
}

// Disconnect closes the socket, which ends the read loop. Safe to call
// more than once.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}
