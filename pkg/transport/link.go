// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Write while the link is down
var ErrNotConnected = errors.New("not connected")

// DialFunc opens a new connection and describes it
type DialFunc func() (Conn, string, error)

// StateFunc is told whenever the link goes up or down
type StateFunc func(connected bool, info string)

// Link turns a blocking Conn into the non-blocking Available / Read / Write
// stream the driver polls. A background goroutine reads into a buffer and
// redials with exponential backoff when the connection drops.
type Link struct {
	dial       DialFunc
	clock      clockwork.Clock
	log        zerolog.Logger
	onState    StateFunc
	minBackoff time.Duration
	maxBackoff time.Duration
	readSize   int

	mu   sync.Mutex
	conn Conn
	info string
	buf  []byte

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithClock replaces the clock used for backoff
func WithClock(c clockwork.Clock) LinkOption {
	return func(l *Link) {
		l.clock = c
	}
}

// WithLinkLogger sets the logger
func WithLinkLogger(log zerolog.Logger) LinkOption {
	return func(l *Link) {
		l.log = log
	}
}

// WithBackoff sets the first and the largest reconnect delay
func WithBackoff(minDelay, maxDelay time.Duration) LinkOption {
	return func(l *Link) {
		l.minBackoff = minDelay
		l.maxBackoff = maxDelay
	}
}

// WithStateFunc registers a connection state callback. It runs on the
// link's reader goroutine.
func WithStateFunc(f StateFunc) LinkOption {
	return func(l *Link) {
		l.onState = f
	}
}

// NewLink wraps an open connection. dial is used to reconnect; a nil dial
// ends the link on the first read error.
func NewLink(conn Conn, info string, dial DialFunc, opts ...LinkOption) *Link {
	l := &Link{
		dial:       dial,
		clock:      clockwork.NewRealClock(),
		log:        zerolog.Nop(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		readSize:   256,
		conn:       conn,
		info:       info,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the reader goroutine
func (l *Link) Start() {
	l.wg.Add(1)
	go l.readerLoop()
}

// Close stops the reader and closes the connection
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		if l.conn != nil {
			err = l.conn.Close()
			l.conn = nil
		}
		l.mu.Unlock()
		l.wg.Wait()
	})
	return err
}

// Done is closed once the link has stopped for good
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Connected reports whether a connection is currently open
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Info describes the current connection
func (l *Link) Info() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Available returns the number of buffered bytes
func (l *Link) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Read copies buffered bytes into p without blocking
func (l *Link) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	if len(l.buf) == 0 {
		l.buf = nil
	}
	return n, nil
}

// Write sends p on the current connection
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

func (l *Link) stopping() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Link) readerLoop() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		conn, info := l.conn, l.info
		l.mu.Unlock()

		if conn != nil {
			l.notify(true, info)
			err := l.readFrom(conn)
			if l.stopping() {
				return
			}
			l.log.Warn().Err(err).Msgf("connection lost: %s", info)

			l.mu.Lock()
			if l.conn == conn {
				l.conn = nil
			}
			l.mu.Unlock()
			conn.Close()
			l.notify(false, info)
		}

		if !l.reconnect() {
			return
		}
	}
}

// readFrom reads until the connection fails
func (l *Link) readFrom(conn Conn) error {
	buf := make([]byte, l.readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			l.mu.Lock()
			l.buf = append(l.buf, buf[:n]...)
			l.mu.Unlock()
		}
		if err != nil {
			return err
		}
		if l.stopping() {
			return nil
		}
	}
}

// reconnect redials with exponential backoff. It returns false when the
// link is closed or cannot redial.
func (l *Link) reconnect() bool {
	if l.dial == nil {
		l.closeOnce.Do(func() {
			close(l.done)
		})
		return false
	}

	backoff := l.minBackoff
	for {
		select {
		case <-l.done:
			return false
		case <-l.clock.After(backoff):
		}

		conn, info, err := l.dial()
		if err == nil {
			l.mu.Lock()
			if l.stopping() {
				l.mu.Unlock()
				conn.Close()
				return false
			}
			l.conn = conn
			l.info = info
			l.mu.Unlock()
			l.log.Info().Msgf("reconnected: %s", info)
			return true
		}

		l.log.Debug().Err(err).Msgf("reconnect failed, retrying in %s", backoff)
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Link) notify(connected bool, info string) {
	if l.onState != nil {
		l.onState(connected, info)
	}
}
