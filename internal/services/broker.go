package services

import (
	"context"
	"fmt"

	"github.com/tipjar/broker/internal/metrics"
	"github.com/tipjar/broker/internal/models"
	"go.uber.org/zap"
)

// Broker owns the online/offline state of streamer identities and their
// binding to a live connection.
type Broker struct {
	directory *Directory
	bindings  *Bindings
	log       *zap.Logger
}

func NewBroker(directory *Directory, bindings *Bindings, log *zap.Logger) *Broker {
	return &Broker{directory: directory, bindings: bindings, log: log}
}

func (b *Broker) State(id string) models.SessionState {
	if _, ok := b.bindings.Handle(id); ok {
		return models.SessionOnline
	}
	return models.SessionOffline
}

// Login binds handle to id, replacing any earlier binding, and marks the
// streamer online. The result names the superseded connection of id and the
// identity handle was previously bound to, if any. Neither is told; that is
// up to the caller.
func (b *Broker) Login(ctx context.Context, id, handle string) (BindResult, error) {
	from := b.State(id)
	next, ok := models.NextSessionState(from, models.SessionEventLogin)
	if !ok {
		return BindResult{}, fmt.Errorf("login %s from state %s", id, from)
	}

	if err := b.directory.SetOnlineStatus(ctx, id, true); err != nil {
		return BindResult{}, err
	}

	res := b.bindings.Bind(id, handle)
	if res.DetachedIdentity != "" {
		if err := b.directory.SetOnlineStatus(ctx, res.DetachedIdentity, false); err != nil {
			b.log.Error("detached streamer left online in store",
				zap.String("streamer_id", res.DetachedIdentity), zap.String("conn", handle), zap.Error(err))
		}
	}
	metrics.StreamersOnline.Set(float64(b.bindings.Len()))

	b.log.Info("streamer logged in",
		zap.String("streamer_id", id),
		zap.String("conn", handle),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("superseded_conn", res.SupersededHandle),
		zap.String("detached_streamer_id", res.DetachedIdentity),
	)
	return res, nil
}

// Disconnect releases whatever identity handle is bound to. Unbound handles
// are ignored. The connection is gone either way, so a failed store write
// leaves the binding released and is logged for repair.
func (b *Broker) Disconnect(ctx context.Context, handle string) error {
	id, ok := b.bindings.UnbindHandle(handle)
	if !ok {
		return nil
	}
	if err := b.goOffline(ctx, id, handle); err != nil {
		b.log.Error("disconnected streamer left online in store",
			zap.String("streamer_id", id), zap.String("conn", handle), zap.Error(err))
		return err
	}
	return nil
}

// Logout releases id only if it is still bound to handle. The connection
// stays open, so a failed store write restores the binding.
func (b *Broker) Logout(ctx context.Context, id, handle string) error {
	if !b.bindings.UnbindIdentity(id, handle) {
		return nil
	}
	if err := b.goOffline(ctx, id, handle); err != nil {
		b.bindings.Bind(id, handle)
		metrics.StreamersOnline.Set(float64(b.bindings.Len()))
		b.log.Warn("logout failed, binding restored",
			zap.String("streamer_id", id), zap.String("conn", handle), zap.Error(err))
		return err
	}
	return nil
}

func (b *Broker) goOffline(ctx context.Context, id, handle string) error {
	metrics.StreamersOnline.Set(float64(b.bindings.Len()))
	next, _ := models.NextSessionState(models.SessionOnline, models.SessionEventDisconnect)
	if err := b.directory.SetOnlineStatus(ctx, id, false); err != nil {
		return err
	}
	b.log.Info("streamer went offline",
		zap.String("streamer_id", id),
		zap.String("conn", handle),
		zap.String("to", string(next)),
	)
	return nil
}

// ResolveConnection returns the live connection for id, read from the
// binding table at call time.
func (b *Broker) ResolveConnection(id string) (string, error) {
	h, ok := b.bindings.Handle(id)
	if !ok {
		return "", fmt.Errorf("resolve %s: %w", id, models.ErrNotOnline)
	}
	return h, nil
}

// IdentityOf returns the identity handle is bound to.
func (b *Broker) IdentityOf(handle string) (string, bool) {
	return b.bindings.Identity(handle)
}
