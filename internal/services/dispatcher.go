package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tipjar/broker/internal/metrics"
	"github.com/tipjar/broker/internal/models"
	"go.uber.org/zap"
)

// Dispatcher is the single consumer of inbound events. Run drains the queue
// one message at a time; Handle processes one message synchronously.
type Dispatcher struct {
	queue       chan Inbound
	directory   *Directory
	broker      *Broker
	coordinator *Coordinator
	router      *Router
	validate    *validator.Validate
	log         *zap.Logger

	stopped  chan struct{}
	stopOnce sync.Once
}

var errDispatcherStopped = errors.New("dispatcher stopped")

func NewDispatcher(
	directory *Directory,
	broker *Broker,
	coordinator *Coordinator,
	router *Router,
	queueSize int,
	log *zap.Logger,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		queue:       make(chan Inbound, queueSize),
		directory:   directory,
		broker:      broker,
		coordinator: coordinator,
		router:      router,
		validate:    validator.New(),
		log:         log,
		stopped:     make(chan struct{}),
	}
}

// Submit enqueues msg, blocking while the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, msg Inbound) error {
	select {
	case d.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitDisconnect enqueues the close of a connection. It waits for room
// in the queue for as long as the dispatcher runs, so the disconnect still
// lands after every frame the connection submitted before it.
func (d *Dispatcher) SubmitDisconnect(channel Channel, handle string) error {
	msg := Inbound{Channel: channel, Handle: handle, Event: EventDisconnect}
	select {
	case d.queue <- msg:
		return nil
	case <-d.stopped:
		return errDispatcherStopped
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stopOnce.Do(func() { close(d.stopped) })
	d.log.Info("dispatcher started", zap.Int("queue_size", cap(d.queue)))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case msg := <-d.queue:
			d.Handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) Handle(ctx context.Context, msg Inbound) {
	metrics.EventsDispatched.WithLabelValues(string(msg.Channel), msg.Event).Inc()

	var err error
	switch msg.Channel {
	case ChannelStreamer:
		err = d.handleStreamer(ctx, msg)
	case ChannelDonator:
		err = d.handleDonator(ctx, msg)
	case ChannelAnimation:
		err = d.handleAnimation(ctx, msg)
	default:
		err = fmt.Errorf("unknown channel %q", msg.Channel)
	}

	if err != nil {
		d.log.Warn("event handling failed",
			zap.String("channel", string(msg.Channel)),
			zap.String("event", msg.Event),
			zap.String("conn", msg.Handle),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) handleStreamer(ctx context.Context, msg Inbound) error {
	switch msg.Event {
	case EventLogin:
		return d.onLogin(ctx, msg)
	case EventUpdateConfig:
		return d.onUpdateConfig(ctx, msg)
	case EventUpdateOnlineStatus:
		return d.onUpdateOnlineStatus(ctx, msg)
	case EventSubaddressReady:
		var req SubaddressReadyRequest
		if err := d.decode(msg, &req); err != nil {
			return err
		}
		return d.coordinator.SubaddressReady(ctx, msg.Handle, req.RequestID, req.Address)
	case EventPaymentReceived:
		var req PaymentReceivedRequest
		if err := d.decode(msg, &req); err != nil {
			return err
		}
		return d.coordinator.PaymentReceived(ctx, msg.Handle, req.RequestID, req.Amount)
	case EventDisconnect:
		d.coordinator.StreamerGone(msg.Handle)
		err := d.broker.Disconnect(ctx, msg.Handle)
		d.router.Unregister(msg.Handle)
		return err
	default:
		return d.unknown(msg)
	}
}

func (d *Dispatcher) handleDonator(ctx context.Context, msg Inbound) error {
	switch msg.Event {
	case EventGetStreamer:
		var userName string
		if err := d.decodeName(msg, &userName); err != nil {
			return err
		}
		p, err := d.directory.FindByUserName(ctx, userName)
		if errors.Is(err, models.ErrNotFound) {
			d.router.Reply(msg.Handle, msg.Ack, EventRecieveStreamer, streamerNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		d.router.Reply(msg.Handle, msg.Ack, EventRecieveStreamer, p.Public())
		return nil
	case EventGetSubaddress:
		var req SubaddressRequest
		if err := d.decode(msg, &req); err != nil {
			d.coordinator.InvalidRequest(msg.Handle, err)
			return nil
		}
		_, err := d.coordinator.RequestSubaddress(ctx, msg.Handle, req)
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrNotOnline) {
			d.log.Info("subaddress request not forwarded", zap.String("user_name", req.UserName), zap.Error(err))
			return nil
		}
		return err
	case EventGetOnlineStreamers:
		list := make([]models.PublicProfile, 0)
		for p, err := range d.directory.ListOnline(ctx) {
			if err != nil {
				return err
			}
			list = append(list, p)
		}
		d.router.Reply(msg.Handle, msg.Ack, EventEmitOnlineStreamers, list)
		return nil
	case EventDisconnect:
		d.router.Unregister(msg.Handle)
		return nil
	default:
		return d.unknown(msg)
	}
}

func (d *Dispatcher) handleAnimation(ctx context.Context, msg Inbound) error {
	switch msg.Event {
	case EventGetAnimationConfig:
		var userName string
		if err := d.decodeName(msg, &userName); err != nil {
			return err
		}
		d.router.Watch(msg.Handle, userName)
		p, err := d.directory.FindByUserName(ctx, userName)
		if errors.Is(err, models.ErrNotFound) {
			d.router.Reply(msg.Handle, msg.Ack, EventGetAnimationConfig, map[string]any{})
			return nil
		}
		if err != nil {
			return err
		}
		d.router.Reply(msg.Handle, msg.Ack, EventGetAnimationConfig, p.AnimationSettings)
		return nil
	case EventDisconnect:
		d.router.Unregister(msg.Handle)
		return nil
	default:
		return d.unknown(msg)
	}
}

// onLogin binds the connection to an existing streamer, registering it
// first when the id is unknown and a userName is supplied.
func (d *Dispatcher) onLogin(ctx context.Context, msg Inbound) error {
	var req LoginRequest
	if err := d.decode(msg, &req); err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, models.Failure(err.Error(), CodeInvalidPayload))
		return err
	}
	id := req.StreamerID()

	message := "streamer logged in"
	_, err := d.directory.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		if strings.TrimSpace(req.UserName) == "" {
			d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, models.Failure("streamer not found", CodeNotFound))
			return nil
		}
		if _, err := d.directory.Create(ctx, newProfile(id, req)); err != nil {
			d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, failureFor(err))
			return err
		}
		message = "new_user_created"
	} else if err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, failureFor(err))
		return err
	}

	if err := d.login(ctx, id, msg.Handle); err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, failureFor(err))
		return err
	}

	profile, err := d.directory.FindByID(ctx, id)
	if err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, failureFor(err))
		return err
	}
	d.router.Reply(msg.Handle, msg.Ack, EventLoginResult, models.Success(message, profile))
	return nil
}

func (d *Dispatcher) login(ctx context.Context, id, handle string) error {
	res, err := d.broker.Login(ctx, id, handle)
	if err != nil {
		return err
	}
	if res.DetachedIdentity != "" {
		d.coordinator.IdentityGone(res.DetachedIdentity)
	}
	if res.SupersededHandle != "" {
		d.coordinator.StreamerGone(res.SupersededHandle)
		d.router.Send(res.SupersededHandle, EventSessionSuperseded, map[string]string{"id": id})
	}
	return nil
}

func (d *Dispatcher) onUpdateConfig(ctx context.Context, msg Inbound) error {
	var req UpdateConfigRequest
	if err := d.decode(msg, &req); err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventUpdateConfigResult, models.Failure(err.Error(), CodeInvalidPayload))
		return err
	}
	if id, ok := d.broker.IdentityOf(msg.Handle); !ok || id != req.ID {
		d.router.Reply(msg.Handle, msg.Ack, EventUpdateConfigResult, models.Failure("connection is not logged in as this streamer", CodeNotLoggedIn))
		return nil
	}

	profile := req.Profile()
	updated, err := d.directory.Update(ctx, &profile)
	if err != nil {
		d.router.Reply(msg.Handle, msg.Ack, EventUpdateConfigResult, failureFor(err))
		return err
	}

	d.router.Reply(msg.Handle, msg.Ack, EventUpdateConfigResult, models.Success("config updated", updated))
	d.router.SendWatchers(updated.UserName, EventGetAnimationConfig, updated.AnimationSettings)
	return nil
}

func (d *Dispatcher) onUpdateOnlineStatus(ctx context.Context, msg Inbound) error {
	var req OnlineStatusRequest
	if err := d.decode(msg, &req); err != nil {
		return err
	}
	if req.Online {
		return d.login(ctx, req.ID, msg.Handle)
	}
	if id, ok := d.broker.IdentityOf(msg.Handle); ok && id == req.ID {
		d.coordinator.StreamerGone(msg.Handle)
	}
	return d.broker.Logout(ctx, req.ID, msg.Handle)
}

func (d *Dispatcher) unknown(msg Inbound) error {
	d.router.Reply(msg.Handle, msg.Ack, EventError, map[string]string{"message": "unknown event " + msg.Event})
	return fmt.Errorf("unknown %s event %q", msg.Channel, msg.Event)
}

func (d *Dispatcher) decode(msg Inbound, dst any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%s: empty payload", msg.Event)
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", msg.Event, err)
	}
	if err := d.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", msg.Event, err)
	}
	return nil
}

// decodeName accepts either a bare JSON string or {"userName": "..."}.
func (d *Dispatcher) decodeName(msg Inbound, dst *string) error {
	if err := json.Unmarshal(msg.Data, dst); err == nil && strings.TrimSpace(*dst) != "" {
		return nil
	}
	var wrapped struct {
		UserName string `json:"userName" validate:"required"`
	}
	if err := d.decode(msg, &wrapped); err != nil {
		return err
	}
	*dst = wrapped.UserName
	return nil
}

func newProfile(id string, req LoginRequest) *models.StreamerProfile {
	p := &models.StreamerProfile{
		ID:                   id,
		UserName:             strings.TrimSpace(req.UserName),
		DisplayName:          req.DisplayName,
		ProfilePicture:       req.ProfilePicture,
		WalletSyncCheckpoint: req.WalletSyncCheckpoint,
	}
	if p.DisplayName == "" {
		p.DisplayName = p.UserName
	}
	if req.Stream != nil {
		p.Stream = *req.Stream
	}
	if req.AnimationSettings != nil {
		p.AnimationSettings = *req.AnimationSettings
	}
	return p
}

func failureFor(err error) models.Result {
	switch {
	case errors.Is(err, models.ErrDuplicateUserName):
		return models.Failure("username_taken", CodeDuplicateUserName)
	case errors.Is(err, models.ErrNotFound):
		return models.Failure("streamer not found", CodeNotFound)
	case errors.Is(err, models.ErrStoreConflict):
		return models.Failure("profile changed concurrently, reload and retry", CodeStoreConflict)
	case errors.Is(err, models.ErrIdentityExists):
		return models.Failure("streamer already registered", CodeDuplicateUserName)
	default:
		return models.Failure("internal error", CodeInternal)
	}
}
