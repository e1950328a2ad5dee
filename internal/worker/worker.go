// Package worker implements the per-descriptor state machine that turns
// a queued datagram into a reply: cache lookup, blocklist lookup,
// upstream forward, cache insert, and reply.
package worker

import (
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/jroosing/dnsden/internal/dnswire"
	"github.com/jroosing/dnsden/internal/pool"
	"github.com/jroosing/dnsden/internal/resolvercore"
	"github.com/jroosing/dnsden/internal/statswindow"
	"github.com/jroosing/dnsden/internal/workqueue"
)

// upstreamReadBufferSize mirrors the collaborator's fixed 4096-byte
// receive buffer for upstream replies.
const upstreamReadBufferSize = 4096

// upstreamBufPool recycles the fixed-size read buffers forwardUpstream
// uses for one round trip each, avoiding an allocation per query on the
// hot path.
var upstreamBufPool = pool.New(func() []byte {
	return make([]byte, upstreamReadBufferSize)
})

// ReplyWriter is the minimal surface a Worker needs to answer a client;
// Receiver satisfies it.
type ReplyWriter interface {
	WriteTo(payload []byte, addr *net.UDPAddr) error
}

// Dialer opens a fresh UDP connection to an upstream resolver for one
// query. The default implementation opens a brand-new ephemeral socket
// per query, exactly as the collaborator's processDNS does.
type Dialer interface {
	DialUpstream(upstreamIP string) (net.Conn, error)
}

// netDialer is the default Dialer, opening an ephemeral UDP socket to
// port 53 on the given upstream address.
type netDialer struct{}

func (netDialer) DialUpstream(upstreamIP string) (net.Conn, error) {
	return net.Dial("udp", net.JoinHostPort(upstreamIP, "53"))
}

// Worker drains descriptors from a queue and answers them using the
// shared resolver Context.
type Worker struct {
	Queue  *workqueue.WorkQueue
	Core   *resolvercore.Context
	Reply  ReplyWriter
	Dial   Dialer
	Logger *slog.Logger
}

// New constructs a Worker with the default per-query ephemeral-socket
// Dialer.
func New(queue *workqueue.WorkQueue, core *resolvercore.Context, reply ReplyWriter, logger *slog.Logger) *Worker {
	return &Worker{Queue: queue, Core: core, Reply: reply, Dial: netDialer{}, Logger: logger}
}

// Run dequeues descriptors until the queue is closed and drained.
func (w *Worker) Run() {
	for {
		item, ok := w.Queue.Dequeue()
		if !ok {
			return
		}
		w.process(item)
	}
}

func (w *Worker) process(item *workqueue.RequestDescriptor) {
	processStart := time.Now()
	requestID := uuid.NewString()
	w.Core.Counters.IncProcessedQueries()

	query, err := dnswire.ParseQuery(item.Payload)
	if err != nil {
		w.warn(requestID, "dropping unparseable query", "client", item.ClientAddr, "error", err)
		return
	}

	qname := query.QName
	if qname != "" {
		lookupStart := time.Now()
		if ip, hit := w.Core.Cache.GetPositive(qname); hit {
			w.Core.Stats.CacheLookupLatency.Add(time.Since(lookupStart).Seconds())
			w.Core.Counters.IncCacheHits()
			w.reply(requestID, item, query, ip, w.Core.Stats.CachedResponseLatency, processStart)
			return
		}

		if w.Core.AdCacheEnabled() {
			if ip, hit := w.Core.Cache.GetBlock(qname); hit {
				w.Core.Counters.IncBlockedQueries()
				w.reply(requestID, item, query, ip, w.Core.Stats.CachedResponseLatency, processStart)
				return
			}
		}
	}

	w.forwardUpstream(requestID, item, qname, processStart)
}

// reply synthesizes and sends a cached/blocked A-record answer, then
// records the elapsed time in the given window.
func (w *Worker) reply(requestID string, item *workqueue.RequestDescriptor, query *dnswire.Query, ip string, window *statswindow.Window, start time.Time) {
	msg, err := dnswire.BuildAReply(query, ip)
	if err != nil {
		w.warn(requestID, "failed to synthesize reply", "qname", query.QName, "error", err)
		return
	}
	if err := w.Reply.WriteTo(msg, item.ClientUDPAddr); err != nil {
		w.warn(requestID, "failed to write reply", "client", item.ClientAddr, "error", err)
	}
	window.Add(time.Since(start).Seconds())
}

// forwardUpstream sends the original query to the configured upstream
// resolver, caches any A records in the reply keyed on the query's own
// name, and forwards the upstream bytes verbatim to the client. A failure
// to reach, write to or read from the upstream is logged and the query is
// dropped silently — there is no retry and no synthesized SERVFAIL. A
// reply that cannot be parsed is logged and not cached, but is still
// forwarded to the client.
func (w *Worker) forwardUpstream(requestID string, item *workqueue.RequestDescriptor, qname string, processStart time.Time) {
	upstream := w.Core.UpstreamIP()
	conn, err := w.Dial.DialUpstream(upstream)
	if err != nil {
		w.warn(requestID, "failed to reach upstream", "upstream", upstream, "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write(item.Payload); err != nil {
		w.warn(requestID, "failed to forward query to upstream", "upstream", upstream, "error", err)
		return
	}

	buf := upstreamBufPool.Get()
	defer upstreamBufPool.Put(buf)

	n, err := conn.Read(buf)
	if err != nil {
		w.warn(requestID, "failed to receive response from upstream", "upstream", upstream, "error", err)
		return
	}
	reply := buf[:n]

	if qname != "" {
		if answers, err := dnswire.ParseAnswerRecords(reply); err != nil {
			w.warn(requestID, "failed to parse upstream reply", "qname", qname, "error", err)
		} else {
			now := uint32(time.Now().Unix())
			for _, a := range answers {
				if a.IP == "" {
					continue
				}
				w.Core.Cache.AddPositive(qname, a.IP, now+a.TTL)
			}
		}
	}

	if err := w.Reply.WriteTo(reply, item.ClientUDPAddr); err != nil {
		w.warn(requestID, "failed to write upstream reply", "client", item.ClientAddr, "error", err)
	}
	w.Core.Stats.UncachedResponseLatency.Add(time.Since(processStart).Seconds())
}

// warn logs at warn level with request_id as the correlating attribute,
// the one piece of per-query observability the resolver core exposes.
func (w *Worker) warn(requestID, msg string, args ...any) {
	if w.Logger == nil {
		return
	}
	w.Logger.Warn(msg, append([]any{"request_id", requestID}, args...)...)
}
