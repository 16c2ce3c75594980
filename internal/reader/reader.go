// Package reader ingests the newline-delimited frame stream from the
// card reader bridge and feeds recognized tokens to the mailbox.
package reader

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync/atomic"
	"time"

	"mealcard/internal/mailbox"
	"mealcard/internal/metrics"
)

// DialFunc opens a connection to the reader bridge. Swapped in tests.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Reader maintains the hardware stream connection. A dropped stream
// pauses publishing until reconnect; lost frames are never replayed.
type Reader struct {
	box       *mailbox.Mailbox
	dial      DialFunc
	backoff   time.Duration
	connected atomic.Bool
}

// New creates a reader that dials addr over TCP.
func New(addr string, box *mailbox.Mailbox) *Reader {
	return &Reader{
		box: box,
		dial: func(ctx context.Context) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		backoff: 2 * time.Second,
	}
}

// NewWithDial creates a reader with a custom dialer. Tests only.
func NewWithDial(dial DialFunc, box *mailbox.Mailbox) *Reader {
	return &Reader{box: box, dial: dial, backoff: 10 * time.Millisecond}
}

// Connected reports whether the hardware stream is currently up.
func (r *Reader) Connected() bool { return r.connected.Load() }

// Run dials, consumes frames, and reconnects after drops until ctx is
// cancelled. It never panics the process on stream failure.
func (r *Reader) Run(ctx context.Context) {
	for {
		conn, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("reader dial failed: %v, retrying in %s", err, r.backoff)
			if !sleep(ctx, r.backoff) {
				return
			}
			continue
		}

		r.connected.Store(true)
		metrics.ReaderConnected.Set(1)
		log.Printf("reader stream connected")
		r.consume(ctx, conn)
		r.connected.Store(false)
		metrics.ReaderConnected.Set(0)

		if ctx.Err() != nil {
			return
		}
		log.Printf("reader stream dropped, reconnecting in %s", r.backoff)
		if !sleep(ctx, r.backoff) {
			return
		}
	}
}

func (r *Reader) consume(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock the scanner when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if r.box.Publish(scanner.Text()) {
			metrics.ScansPublished.Inc()
		} else {
			metrics.MalformedFrames.Inc()
			log.Printf("discarding malformed reader frame: %q", scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("reader stream error: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
