package services

import (
	"encoding/json"
	"sync"

	"github.com/tipjar/broker/internal/metrics"
	"github.com/tipjar/broker/internal/models"
	"go.uber.org/zap"
)

type Channel string

const (
	ChannelStreamer  Channel = "streamer"
	ChannelDonator   Channel = "donator"
	ChannelAnimation Channel = "animation"
)

// Sender is the write side of one connection. Send must not block; it
// reports false when the frame could not be queued.
type Sender interface {
	Send(data []byte) bool
}

// Envelope is the JSON frame exchanged on every channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ack   string `json:"ack,omitempty"`
}

type route struct {
	channel Channel
	sender  Sender
}

// Router delivers events to connection handles. Delivery to an unknown or
// closed handle is a silent no-op.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]route
	watchers map[string]map[string]struct{} // normalized userName -> animation handles
	watching map[string]string              // animation handle -> normalized userName
	bindings *Bindings
	log      *zap.Logger
}

func NewRouter(bindings *Bindings, log *zap.Logger) *Router {
	return &Router{
		routes:   make(map[string]route),
		watchers: make(map[string]map[string]struct{}),
		watching: make(map[string]string),
		bindings: bindings,
		log:      log,
	}
}

func (r *Router) Register(handle string, channel Channel, sender Sender) {
	r.mu.Lock()
	r.routes[handle] = route{channel: channel, sender: sender}
	r.mu.Unlock()
	metrics.ConnectionsActive.WithLabelValues(string(channel)).Inc()
}

func (r *Router) Unregister(handle string) {
	r.mu.Lock()
	rt, ok := r.routes[handle]
	delete(r.routes, handle)
	r.unwatchLocked(handle)
	r.mu.Unlock()
	if ok {
		metrics.ConnectionsActive.WithLabelValues(string(rt.channel)).Dec()
	}
}

// Len is the number of registered connections.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func (r *Router) ChannelOf(handle string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[handle]
	return rt.channel, ok
}

// Send delivers one event to exactly one connection.
func (r *Router) Send(handle, event string, data any) bool {
	return r.Reply(handle, "", event, data)
}

// Reply is Send carrying the ack id of the inbound frame it answers.
func (r *Router) Reply(handle, ack, event string, data any) bool {
	frame, ok := r.encode(event, ack, data)
	if !ok {
		return false
	}
	r.mu.RLock()
	rt, found := r.routes[handle]
	r.mu.RUnlock()

	if !found || !rt.sender.Send(frame) {
		metrics.DeliveriesDropped.WithLabelValues(event).Inc()
		r.log.Debug("delivery dropped", zap.String("conn", handle), zap.String("event", event))
		return false
	}
	return true
}

// BroadcastStreamers delivers one event to every bound streamer connection
// and returns how many accepted it.
func (r *Router) BroadcastStreamers(event string, data any) int {
	frame, ok := r.encode(event, "", data)
	if !ok {
		return 0
	}
	delivered := 0
	for _, handle := range r.bindings.Handles() {
		r.mu.RLock()
		rt, found := r.routes[handle]
		r.mu.RUnlock()
		if found && rt.channel == ChannelStreamer && rt.sender.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// Watch subscribes an animation connection to settings pushes for userName.
func (r *Router) Watch(handle, userName string) {
	key := models.NormalizeUserName(userName)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unwatchLocked(handle)
	set, ok := r.watchers[key]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[key] = set
	}
	set[handle] = struct{}{}
	r.watching[handle] = key
}

// SendWatchers delivers to every animation connection watching userName.
func (r *Router) SendWatchers(userName, event string, data any) int {
	key := models.NormalizeUserName(userName)
	r.mu.RLock()
	handles := make([]string, 0, len(r.watchers[key]))
	for h := range r.watchers[key] {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, h := range handles {
		if r.Send(h, event, data) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) unwatchLocked(handle string) {
	key, ok := r.watching[handle]
	if !ok {
		return
	}
	delete(r.watching, handle)
	if set := r.watchers[key]; set != nil {
		delete(set, handle)
		if len(set) == 0 {
			delete(r.watchers, key)
		}
	}
}

func (r *Router) encode(event, ack string, data any) ([]byte, bool) {
	frame, err := json.Marshal(outbound{Event: event, Data: data, Ack: ack})
	if err != nil {
		r.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}
