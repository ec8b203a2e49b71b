package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tipjar/broker/internal/events"
	"github.com/tipjar/broker/internal/models"
	"github.com/tipjar/broker/internal/repositories"
	"go.uber.org/zap"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   string          `json:"ack"`
}

// fakeSender records every frame written to one connection.
type fakeSender struct {
	mu     sync.Mutex
	frames []frame
	closed bool
}

func (s *fakeSender) Send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *fakeSender) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSender) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (s *fakeSender) all(event string) []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []frame
	for _, f := range s.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// last decodes the data of the most recent frame named event into dst.
func (s *fakeSender) last(t *testing.T, event string, dst any) frame {
	t.Helper()
	frames := s.all(event)
	require.NotEmpty(t, frames, "no %q frame received", event)
	f := frames[len(frames)-1]
	if dst != nil {
		require.NoError(t, json.Unmarshal(f.Data, dst))
	}
	return f
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

type testEnv struct {
	store       *repositories.MemoryStreamerRepo
	bindings    *Bindings
	directory   *Directory
	broker      *Broker
	router      *Router
	signer      *CorrelationSigner
	coordinator *Coordinator
	dispatcher  *Dispatcher
	publisher   *recordingPublisher
}

func newTestEnv(t *testing.T, notifyOnFailure bool) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := repositories.NewMemoryStreamerRepo()
	bindings := NewBindings()
	directory := NewDirectory(store, bindings, log)
	broker := NewBroker(directory, bindings, log)
	router := NewRouter(bindings, log)
	signer := NewCorrelationSigner("test-secret", time.Minute)
	publisher := &recordingPublisher{}
	coordinator := NewCoordinator(directory, broker, router, signer, publisher, HandshakeOptions{
		TTL:             time.Minute,
		MaxPending:      100,
		NotifyOnFailure: notifyOnFailure,
	}, log)

	return &testEnv{
		store:       store,
		bindings:    bindings,
		directory:   directory,
		broker:      broker,
		router:      router,
		signer:      signer,
		coordinator: coordinator,
		dispatcher:  NewDispatcher(directory, broker, coordinator, router, 16, log),
		publisher:   publisher,
	}
}

func (e *testEnv) connect(channel Channel) (string, *fakeSender) {
	handle := uuid.New().String()
	sender := &fakeSender{}
	e.router.Register(handle, channel, sender)
	return handle, sender
}

func (e *testEnv) send(t *testing.T, channel Channel, handle, event string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	e.dispatcher.Handle(context.Background(), Inbound{Channel: channel, Handle: handle, Event: event, Data: raw})
}

func (e *testEnv) disconnect(t *testing.T, channel Channel, handle string) {
	t.Helper()
	e.dispatcher.Handle(context.Background(), Inbound{Channel: channel, Handle: handle, Event: EventDisconnect})
}

func (e *testEnv) createStreamer(t *testing.T, id, userName, displayName string) *models.StreamerProfile {
	t.Helper()
	p, err := e.directory.Create(context.Background(), &models.StreamerProfile{
		ID:          id,
		UserName:    userName,
		DisplayName: displayName,
	})
	require.NoError(t, err)
	return p
}

// onlineStreamer registers id and logs it in over a fresh streamer connection.
func (e *testEnv) onlineStreamer(t *testing.T, id, userName string) (string, *fakeSender) {
	t.Helper()
	e.createStreamer(t, id, userName, userName)
	handle, sender := e.connect(ChannelStreamer)
	_, err := e.broker.Login(context.Background(), id, handle)
	require.NoError(t, err)
	return handle, sender
}
