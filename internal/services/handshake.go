package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tipjar/broker/internal/events"
	"github.com/tipjar/broker/internal/metrics"
	"github.com/tipjar/broker/internal/models"
	"go.uber.org/zap"
)

// Outbound handshake events
const (
	EventCreateSubaddress   = "createSubaddress"
	EventSubaddressAssigned = "subaddressAssigned"
	EventSubaddressFailed   = "subaddressFailed"
	EventPaymentConfirmed   = "paymentConfirmed"
)

// Failure reasons reported to donators under the notify policy.
const (
	ReasonNotFound       = "not_found"
	ReasonNotOnline      = "not_online"
	ReasonInvalidPayload = "invalid_payload"
)

var (
	errUnknownRequest = errors.New("unknown or expired request")
	errWrongResponder = errors.New("response from a connection the request was not sent to")
	errWrongState     = errors.New("request not in the expected state")
)

type SubaddressRequest struct {
	UserName         string `json:"userName" validate:"required,max=64"`
	DonorDisplayName string `json:"donorDisplayName" validate:"max=64"`
	AmountHint       string `json:"amountHint" validate:"max=32"`
}

type CreateSubaddressPayload struct {
	RequestID        string `json:"requestId"`
	DonorDisplayName string `json:"donorDisplayName"`
	AmountHint       string `json:"amountHint"`
}

type SubaddressAssignedPayload struct {
	RequestID string `json:"requestId"`
	Address   string `json:"address"`
}

type PaymentConfirmedPayload struct {
	RequestID string `json:"requestId"`
	Amount    string `json:"amount"`
}

type SubaddressFailedPayload struct {
	UserName  string `json:"userName,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Reason    string `json:"reason"`
}

type HandshakeOptions struct {
	TTL        time.Duration
	MaxPending int
	// NotifyOnFailure sends subaddressFailed to the donator instead of
	// dropping the request silently.
	NotifyOnFailure bool
}

// Coordinator correlates donator subaddress requests with streamer
// responses.
type Coordinator struct {
	directory *Directory
	broker    *Broker
	router    *Router
	signer    *CorrelationSigner
	publisher events.Publisher
	opts      HandshakeOptions
	log       *zap.Logger

	mu      sync.Mutex // serializes state changes on pending entries
	pending *expirable.LRU[string, *models.HandshakeRequest]
}

func NewCoordinator(
	directory *Directory,
	broker *Broker,
	router *Router,
	signer *CorrelationSigner,
	publisher events.Publisher,
	opts HandshakeOptions,
	log *zap.Logger,
) *Coordinator {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 10000
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	return &Coordinator{
		directory: directory,
		broker:    broker,
		router:    router,
		signer:    signer,
		publisher: publisher,
		opts:      opts,
		log:       log,
		pending:   expirable.NewLRU[string, *models.HandshakeRequest](opts.MaxPending, nil, opts.TTL),
	}
}

// Pending returns the number of live handshake entries.
func (c *Coordinator) Pending() int {
	return c.pending.Len()
}

// RequestSubaddress resolves the target streamer and forwards a
// createSubaddress to its live connection.
func (c *Coordinator) RequestSubaddress(ctx context.Context, donatorHandle string, req SubaddressRequest) (string, error) {
	profile, err := c.directory.FindByUserName(ctx, req.UserName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.fail(donatorHandle, SubaddressFailedPayload{UserName: req.UserName, Reason: ReasonNotFound}, metrics.OutcomeNotFound)
		}
		return "", err
	}

	requestID, err := c.signer.Issue(donatorHandle, profile.ID)
	if err != nil {
		return "", err
	}

	// Liveness is read here, after the store round trip, never earlier.
	streamerHandle, err := c.broker.ResolveConnection(profile.ID)
	if err != nil {
		c.fail(donatorHandle, SubaddressFailedPayload{UserName: req.UserName, Reason: ReasonNotOnline}, metrics.OutcomeNotOnline)
		return "", err
	}

	entry := &models.HandshakeRequest{
		RequestID:        requestID,
		DonatorHandle:    donatorHandle,
		StreamerID:       profile.ID,
		StreamerHandle:   streamerHandle,
		DonorDisplayName: req.DonorDisplayName,
		AmountHint:       req.AmountHint,
		State:            models.HandshakePending,
	}
	c.pending.Add(requestID, entry)

	delivered := c.router.Send(streamerHandle, EventCreateSubaddress, CreateSubaddressPayload{
		RequestID:        requestID,
		DonorDisplayName: req.DonorDisplayName,
		AmountHint:       req.AmountHint,
	})
	if !delivered {
		c.pending.Remove(requestID)
		c.fail(donatorHandle, SubaddressFailedPayload{UserName: req.UserName, Reason: ReasonNotOnline}, metrics.OutcomeNotOnline)
		return "", fmt.Errorf("forward to %s: %w", profile.ID, models.ErrNotOnline)
	}

	metrics.Handshakes.WithLabelValues(metrics.OutcomeForwarded).Inc()
	metrics.HandshakesPending.Set(float64(c.pending.Len()))
	c.log.Info("subaddress requested",
		zap.String("streamer_id", profile.ID),
		zap.String("donator_conn", donatorHandle),
		zap.String("streamer_conn", streamerHandle),
	)
	return requestID, nil
}

// SubaddressReady routes a streamer's address back to the donator embedded
// in requestID.
func (c *Coordinator) SubaddressReady(ctx context.Context, streamerHandle, requestID, address string) error {
	claims, err := c.signer.Parse(requestID)
	if err != nil {
		return c.reject(err, requestID)
	}
	if id, ok := c.broker.IdentityOf(streamerHandle); !ok || id != claims.StreamerID {
		return c.reject(errWrongResponder, requestID)
	}

	c.mu.Lock()
	entry, ok := c.pending.Get(requestID)
	switch {
	case !ok:
		err = errUnknownRequest
	case entry.StreamerHandle != streamerHandle || entry.DonatorHandle != claims.DonatorHandle:
		err = errWrongResponder
	case !models.IsValidHandshakeTransition(entry.State, models.HandshakeAssigned):
		err = errWrongState
	default:
		entry.State = models.HandshakeAssigned
	}
	c.mu.Unlock()
	if err != nil {
		return c.reject(err, requestID)
	}

	metrics.Handshakes.WithLabelValues(metrics.OutcomeAssigned).Inc()
	if !c.router.Send(claims.DonatorHandle, EventSubaddressAssigned, SubaddressAssignedPayload{
		RequestID: requestID,
		Address:   address,
	}) {
		c.log.Info("donator gone before subaddress arrived",
			zap.String("streamer_id", claims.StreamerID),
			zap.String("donator_conn", claims.DonatorHandle),
		)
	}
	return nil
}

// PaymentReceived routes a payment notice to the donator embedded in
// requestID and retires the request.
func (c *Coordinator) PaymentReceived(ctx context.Context, streamerHandle, requestID, amount string) error {
	claims, err := c.signer.Parse(requestID)
	if err != nil {
		return c.reject(err, requestID)
	}
	if id, ok := c.broker.IdentityOf(streamerHandle); !ok || id != claims.StreamerID {
		return c.reject(errWrongResponder, requestID)
	}

	c.mu.Lock()
	entry, ok := c.pending.Get(requestID)
	switch {
	case !ok:
		err = errUnknownRequest
	case !models.IsValidHandshakeTransition(entry.State, models.HandshakeConfirmed):
		err = errWrongState
	default:
		entry.State = models.HandshakeConfirmed
		c.pending.Remove(requestID)
	}
	c.mu.Unlock()
	if err != nil {
		return c.reject(err, requestID)
	}

	metrics.Handshakes.WithLabelValues(metrics.OutcomeConfirmed).Inc()
	metrics.HandshakesPending.Set(float64(c.pending.Len()))
	c.router.Send(claims.DonatorHandle, EventPaymentConfirmed, PaymentConfirmedPayload{
		RequestID: requestID,
		Amount:    amount,
	})

	if err := c.publisher.Publish(ctx, events.StreamDonation, events.Event{
		Type: events.EventPaymentConfirmed,
		Payload: map[string]any{
			"streamer_id":        claims.StreamerID,
			"amount":             amount,
			"donor_display_name": entry.DonorDisplayName,
			"request_nonce":      claims.ID,
		},
	}); err != nil {
		c.log.Warn("failed to publish payment event", zap.Error(err))
	}

	c.log.Info("payment confirmed",
		zap.String("streamer_id", claims.StreamerID),
		zap.String("donator_conn", claims.DonatorHandle),
		zap.String("amount", amount),
	)
	return nil
}

// StreamerGone is called when a streamer connection closes or logs out.
// Under the notify policy every donator still waiting on that connection
// is told; otherwise the entries are left to expire.
func (c *Coordinator) StreamerGone(streamerHandle string) int {
	return c.retire(func(entry *models.HandshakeRequest) bool {
		return entry.StreamerHandle == streamerHandle
	})
}

// IdentityGone is called when a connection switches away from streamerID.
// The connection stays open, so entries are matched by identity.
func (c *Coordinator) IdentityGone(streamerID string) int {
	return c.retire(func(entry *models.HandshakeRequest) bool {
		return entry.StreamerID == streamerID
	})
}

// InvalidRequest reports a getSubaddress the broker could not decode.
func (c *Coordinator) InvalidRequest(donatorHandle string, err error) {
	c.log.Info("invalid subaddress request", zap.String("donator_conn", donatorHandle), zap.Error(err))
	c.fail(donatorHandle, SubaddressFailedPayload{Reason: ReasonInvalidPayload}, metrics.OutcomeRejected)
}

func (c *Coordinator) retire(match func(*models.HandshakeRequest) bool) int {
	if !c.opts.NotifyOnFailure {
		return 0
	}

	var waiting []*models.HandshakeRequest
	c.mu.Lock()
	for _, entry := range c.pending.Values() {
		if entry.State == models.HandshakePending && match(entry) {
			c.pending.Remove(entry.RequestID)
			waiting = append(waiting, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range waiting {
		c.fail(entry.DonatorHandle, SubaddressFailedPayload{RequestID: entry.RequestID, Reason: ReasonNotOnline}, metrics.OutcomeNotOnline)
	}
	metrics.HandshakesPending.Set(float64(c.pending.Len()))
	return len(waiting)
}

func (c *Coordinator) fail(donatorHandle string, payload SubaddressFailedPayload, outcome string) {
	metrics.Handshakes.WithLabelValues(outcome).Inc()
	if !c.opts.NotifyOnFailure {
		c.log.Info("subaddress request dropped",
			zap.String("donator_conn", donatorHandle),
			zap.String("user_name", payload.UserName),
			zap.String("reason", payload.Reason),
		)
		return
	}
	c.router.Send(donatorHandle, EventSubaddressFailed, payload)
}

func (c *Coordinator) reject(err error, requestID string) error {
	metrics.Handshakes.WithLabelValues(metrics.OutcomeRejected).Inc()
	c.log.Warn("handshake response rejected", zap.Error(err), zap.Int("request_id_len", len(requestID)))
	if errors.Is(err, models.ErrInvalidRequestID) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidRequestID, err)
}
