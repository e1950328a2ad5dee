// Package receiver implements the single UDP listening socket that reads
// inbound DNS queries and hands them to the work queue.
//
// Goroutine lifecycle: Run is a blocking receive loop that the caller
// runs on a single goroutine. It checks the context between reads and
// returns once the context is cancelled or the socket is closed; closing
// the socket is what unblocks a pending read. It never spawns a goroutine
// per datagram — the WorkQueue and the worker pool are where fan-out
// happens.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/jroosing/dnsden/internal/workqueue"
)

// maxDatagramSize is the receive buffer size for one inbound query.
const maxDatagramSize = 512

// DefaultPort is the standard DNS service port.
const DefaultPort = 53

// Receiver owns the bound UDP socket and the queue it feeds.
type Receiver struct {
	Logger *slog.Logger
	Queue  *workqueue.WorkQueue

	conn *net.UDPConn
}

// Listen binds the UDP socket with SO_REUSEADDR set through a
// net.ListenConfig control function.
func Listen(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("receiver: resolving %q: %w", addr, err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			if err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return setErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, fmt.Errorf("receiver: binding %q: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}

// New wraps an already-bound UDP socket.
func New(logger *slog.Logger, queue *workqueue.WorkQueue, conn *net.UDPConn) *Receiver {
	return &Receiver{Logger: logger, Queue: queue, conn: conn}
}

// Run reads datagrams until ctx is cancelled or the socket closes. Each
// datagram is copied into its own buffer (the receive buffer is reused
// across iterations) and enqueued; a full queue blocks the receive loop
// exactly as a bounded circular buffer is meant to.
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, peer, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if r.Logger != nil {
				r.Logger.Warn("receiver: recvfrom failed", "error", err)
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		ok := r.Queue.Enqueue(&workqueue.RequestDescriptor{
			ClientAddr:    peer.String(),
			ClientUDPAddr: peer,
			Payload:       payload,
		})
		if !ok {
			return nil
		}
	}
}

// Close closes the underlying socket, unblocking any in-flight ReadFromUDP.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// WriteTo sends a reply to the given client address, matching the
// per-request response path a Worker drives after a cache hit or an
// upstream forward.
func (r *Receiver) WriteTo(payload []byte, clientAddr *net.UDPAddr) error {
	_, err := r.conn.WriteToUDP(payload, clientAddr)
	return err
}
