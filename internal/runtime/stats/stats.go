// Package stats holds the per-bus message counters and their Prometheus view.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters are monotonically increasing and safe for concurrent use. The zero
// value is ready to use.
type Counters struct {
	received        atomic.Uint64
	sent            atomic.Uint64
	sendFailed      atomic.Uint64
	noCorrelationID atomic.Uint64
	noSubscribers   atomic.Uint64
	unmatched       atomic.Uint64
	handlerFailures atomic.Uint64
	repliesSent     atomic.Uint64
	replyFailures   atomic.Uint64
	expired         atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Received              uint64 `json:"received"`
	Sent                  uint64 `json:"sent"`
	SendFailed            uint64 `json:"send_failed"`
	NoCorrelationIDErrors uint64 `json:"no_correlation_id_errors"`
	NoSubscriberErrors    uint64 `json:"no_subscriber_errors"`
	UnmatchedReplies      uint64 `json:"unmatched_replies"`
	HandlerFailures       uint64 `json:"handler_failures"`
	RepliesSent           uint64 `json:"replies_sent"`
	ReplyFailures         uint64 `json:"reply_failures"`
	ExpiredRequests       uint64 `json:"expired_requests"`
	Pending               int    `json:"pending"`
}

func (c *Counters) IncReceived()        { c.received.Add(1) }
func (c *Counters) IncSent()            { c.sent.Add(1) }
func (c *Counters) IncSendFailed()      { c.sendFailed.Add(1) }
func (c *Counters) IncNoCorrelationID() { c.noCorrelationID.Add(1) }
func (c *Counters) IncNoSubscribers()   { c.noSubscribers.Add(1) }
func (c *Counters) IncUnmatched()       { c.unmatched.Add(1) }
func (c *Counters) IncHandlerFailures() { c.handlerFailures.Add(1) }
func (c *Counters) IncRepliesSent()     { c.repliesSent.Add(1) }
func (c *Counters) IncReplyFailures()   { c.replyFailures.Add(1) }
func (c *Counters) IncExpired()         { c.expired.Add(1) }

// Snapshot copies the counters. pending is the current correlation table size.
func (c *Counters) Snapshot(pending int) Snapshot {
	return Snapshot{
		Received:              c.received.Load(),
		Sent:                  c.sent.Load(),
		SendFailed:            c.sendFailed.Load(),
		NoCorrelationIDErrors: c.noCorrelationID.Load(),
		NoSubscriberErrors:    c.noSubscribers.Load(),
		UnmatchedReplies:      c.unmatched.Load(),
		HandlerFailures:       c.handlerFailures.Load(),
		RepliesSent:           c.repliesSent.Load(),
		ReplyFailures:         c.replyFailures.Load(),
		ExpiredRequests:       c.expired.Load(),
		Pending:               pending,
	}
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) uint64
}

// Collector exposes Counters to Prometheus without duplicating their state.
type Collector struct {
	snapshot func() Snapshot
	counters []counterDesc
	pending  *prometheus.Desc
}

// NewCollector builds a collector reading from snapshot. Every metric carries
// the service name as a constant label.
func NewCollector(namespace, service string, snapshot func() Snapshot) *Collector {
	labels := prometheus.Labels{"service": service}
	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "messages", name), help, nil, labels)
	}

	return &Collector{
		snapshot: snapshot,
		counters: []counterDesc{
			{newDesc("received_total", "Envelopes delivered to the inbound router."), func(s Snapshot) uint64 { return s.Received }},
			{newDesc("sent_total", "Requests accepted by the transport."), func(s Snapshot) uint64 { return s.Sent }},
			{newDesc("send_failed_total", "Requests the transport refused."), func(s Snapshot) uint64 { return s.SendFailed }},
			{newDesc("no_correlation_id_total", "Replies received without a correlation id."), func(s Snapshot) uint64 { return s.NoCorrelationIDErrors }},
			{newDesc("no_subscribers_total", "Requests answered with a no-subscribers error."), func(s Snapshot) uint64 { return s.NoSubscriberErrors }},
			{newDesc("unmatched_replies_total", "Replies whose correlation id was not pending."), func(s Snapshot) uint64 { return s.UnmatchedReplies }},
			{newDesc("handler_failures_total", "Subscriber invocations that failed or panicked."), func(s Snapshot) uint64 { return s.HandlerFailures }},
			{newDesc("replies_sent_total", "Replies accepted by the transport."), func(s Snapshot) uint64 { return s.RepliesSent }},
			{newDesc("reply_failures_total", "Replies the transport refused."), func(s Snapshot) uint64 { return s.ReplyFailures }},
			{newDesc("expired_requests_total", "Pending requests resolved by their timeout."), func(s Snapshot) uint64 { return s.ExpiredRequests }},
		},
		pending: prometheus.NewDesc(prometheus.BuildFQName(namespace, "requests", "pending"), "Requests waiting for a reply.", nil, labels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, counter := range c.counters {
		ch <- counter.desc
	}
	ch <- c.pending
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()
	for _, counter := range c.counters {
		ch <- prometheus.MustNewConstMetric(counter.desc, prometheus.CounterValue, float64(counter.value(snap)))
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(snap.Pending))
}
