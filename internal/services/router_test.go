package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouter_SendToUnknownHandleIsNoop(t *testing.T) {
	r := NewRouter(NewBindings(), zap.NewNop())

	assert.False(t, r.Send("nobody", "anything", map[string]int{"n": 1}))
}

func TestRouter_SendOnlyReachesTarget(t *testing.T) {
	r := NewRouter(NewBindings(), zap.NewNop())
	a, b := &fakeSender{}, &fakeSender{}
	r.Register("a", ChannelDonator, a)
	r.Register("b", ChannelDonator, b)

	require.True(t, r.Reply("a", "42", "ping", "hello"))

	f := a.last(t, "ping", nil)
	assert.Equal(t, "42", f.Ack)
	assert.JSONEq(t, `"hello"`, string(f.Data))
	assert.Equal(t, 0, b.count("ping"))

	ch, ok := r.ChannelOf("a")
	assert.True(t, ok)
	assert.Equal(t, ChannelDonator, ch)
}

func TestRouter_SendToClosedSender(t *testing.T) {
	r := NewRouter(NewBindings(), zap.NewNop())
	s := &fakeSender{}
	r.Register("a", ChannelStreamer, s)
	s.close()

	assert.False(t, r.Send("a", "ping", nil))
}

func TestRouter_UnregisterStopsDelivery(t *testing.T) {
	r := NewRouter(NewBindings(), zap.NewNop())
	s := &fakeSender{}
	r.Register("a", ChannelDonator, s)
	r.Unregister("a")
	r.Unregister("a")

	assert.False(t, r.Send("a", "ping", nil))
	_, ok := r.ChannelOf("a")
	assert.False(t, ok)
}

func TestRouter_BroadcastStreamers(t *testing.T) {
	bindings := NewBindings()
	r := NewRouter(bindings, zap.NewNop())

	live, stale, donator := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("s1", ChannelStreamer, live)
	r.Register("s2", ChannelStreamer, stale)
	r.Register("d1", ChannelDonator, donator)
	bindings.Bind("id-1", "s1")

	assert.Equal(t, 1, r.BroadcastStreamers(EventAnimationBroadcast, map[string]bool{"showGoal": true}))
	assert.Equal(t, 1, live.count(EventAnimationBroadcast))
	assert.Equal(t, 0, stale.count(EventAnimationBroadcast), "unbound streamer connections are skipped")
	assert.Equal(t, 0, donator.count(EventAnimationBroadcast))
}

func TestRouter_Watchers(t *testing.T) {
	r := NewRouter(NewBindings(), zap.NewNop())
	w1, w2 := &fakeSender{}, &fakeSender{}
	r.Register("w1", ChannelAnimation, w1)
	r.Register("w2", ChannelAnimation, w2)

	r.Watch("w1", "Alex")
	r.Watch("w2", "alex")
	assert.Equal(t, 2, r.SendWatchers("ALEX", EventGetAnimationConfig, map[string]int{"goal": 1}))

	r.Watch("w2", "bob")
	assert.Equal(t, 1, r.SendWatchers("alex", EventGetAnimationConfig, nil))
	assert.Equal(t, 1, r.SendWatchers("bob", EventGetAnimationConfig, nil))

	r.Unregister("w1")
	assert.Equal(t, 0, r.SendWatchers("alex", EventGetAnimationConfig, nil))
	assert.Equal(t, 2, w1.count(EventGetAnimationConfig))
	assert.Equal(t, 2, w2.count(EventGetAnimationConfig))
}
