package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/replybus/internal/runtime/config"
	"github.com/drblury/replybus/internal/runtime/envelope"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	transportpkg "github.com/drblury/replybus/internal/runtime/transport"
	pubsub "github.com/drblury/replybus/transport"
)

// fakeTransport records outbound envelopes and lets tests inject inbound ones
// through Bus.OnEnvelope.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []envelope.Envelope
	replies  []envelope.Envelope
	sendErr  error
	replyErr error
	handler  transportpkg.EnvelopeHandler
	closed   int

	sentCh  chan envelope.Envelope
	running chan struct{}
	runOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sentCh:  make(chan envelope.Envelope, 64),
		running: make(chan struct{}),
	}
}

func (f *fakeTransport) SendEnvelope(_ context.Context, env envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, env)
	f.sentCh <- env
	return nil
}

func (f *fakeTransport) SendReply(_ context.Context, original, reply envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	reply.To = original.From
	reply.CorrelationID = original.ID
	f.replies = append(f.replies, reply)
	return nil
}

func (f *fakeTransport) OnEnvelope(handler transportpkg.EnvelopeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeTransport) Run(ctx context.Context) error {
	f.runOnce.Do(func() { close(f.running) })
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) Running() chan struct{} {
	return f.running
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) Sent() []envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]envelope.Envelope(nil), f.sent...)
}

func (f *fakeTransport) Replies() []envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]envelope.Envelope(nil), f.replies...)
}

// nextSent waits for the next envelope handed to SendEnvelope.
func (f *fakeTransport) nextSent(t *testing.T) envelope.Envelope {
	t.Helper()
	select {
	case env := <-f.sentCh:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("nothing was sent")
		return envelope.Envelope{}
	}
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{ServiceName: "orders", InstanceID: "i1"}
}

func newTestBus(t *testing.T, conf *configpkg.Config, deps Dependencies) (*Bus, *fakeTransport) {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}
	fake := newFakeTransport()
	if deps.Transport == nil {
		deps.Transport = fake
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.NewRegistry()
	}
	b, err := TryNewBus(context.Background(), conf, loggingpkg.NewNopLogger(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, fake
}

// channelFactory gives every bus its own in-memory pub/sub, so tests do not
// share the process-wide channel transport.
func channelFactory() transportpkg.Factory {
	return transportpkg.FactoryFunc(func(_ context.Context, _ *configpkg.Config, logger watermill.LoggerAdapter) (pubsub.Transport, error) {
		ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return pubsub.Transport{Publisher: ps, Subscriber: ps}, nil
	})
}

// request builds an inbound request envelope addressed to the orders service.
func request(typ string, body []byte) envelope.Envelope {
	return envelope.NewRequest("c1@web", "orders", typ, body)
}

type loggedEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]loggedEntry
	base    loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]loggedEntry{}}
}

func (r *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range r.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.entries = append(*r.entries, loggedEntry{level: level, msg: msg, err: err, fields: merged})
}

func (r *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	base := loggingpkg.LogFields{}
	for k, v := range r.base {
		base[k] = v
	}
	for k, v := range fields {
		base[k] = v
	}
	return &recordingLogger{mu: r.mu, entries: r.entries, base: base}
}

func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.record("debug", msg, nil, fields)
}

func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.record("info", msg, nil, fields)
}

func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.record("error", msg, err, fields)
}

func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.record("trace", msg, nil, fields)
}

func (r *recordingLogger) find(msg string) (loggedEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range *r.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return loggedEntry{}, false
}
