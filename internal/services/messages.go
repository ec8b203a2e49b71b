package services

import (
	"encoding/json"

	"github.com/tipjar/broker/internal/models"
)

// Inbound events
const (
	EventLogin              = "login"
	EventUpdateConfig       = "updateConfig"
	EventUpdateOnlineStatus = "updateOnlineStatus"
	EventSubaddressReady    = "subaddressReady"
	EventPaymentReceived    = "paymentReceived"
	EventGetStreamer        = "getStreamer"
	EventGetSubaddress      = "getSubaddress"
	EventGetOnlineStreamers = "getOnlineStreamers"
	EventGetAnimationConfig = "getAnimationConfig"
	EventDisconnect         = "disconnect"
)

// Outbound events
const (
	EventLoginResult         = "loginResult"
	EventUpdateConfigResult  = "updateConfigResult"
	EventSessionSuperseded   = "sessionSuperseded"
	EventRecieveStreamer     = "recieveStreamer"
	EventEmitOnlineStreamers = "emitOnlineStreamers"
	EventAnimationBroadcast  = "animationSettingsBroadcast"
	EventError               = "error"
)

// Result error codes
const (
	CodeNotFound          = "not_found"
	CodeDuplicateUserName = "duplicate_user_name"
	CodeStoreConflict     = "store_conflict"
	CodeNotLoggedIn       = "not_logged_in"
	CodeInvalidPayload    = "invalid_payload"
	CodeInternal          = "internal"
)

// Inbound is one decoded frame from a connection, or a synthetic
// disconnect.
type Inbound struct {
	Channel Channel
	Handle  string
	Event   string
	Data    json.RawMessage
	Ack     string
}

type LoginRequest struct {
	ID                   string                    `json:"id" validate:"required_without=IdentityKey,max=128"`
	IdentityKey          string                    `json:"identityKey" validate:"required_without=ID"`
	UserName             string                    `json:"userName" validate:"omitempty,max=64"`
	DisplayName          string                    `json:"displayName" validate:"max=128"`
	ProfilePicture       string                    `json:"profilePicture"`
	Stream               *models.StreamInfo        `json:"stream"`
	AnimationSettings    *models.AnimationSettings `json:"animationSettings"`
	WalletSyncCheckpoint string                    `json:"walletSyncCheckpoint"`
}

// StreamerID is the explicit id, or the one derived from the identity key.
func (r LoginRequest) StreamerID() string {
	if r.ID != "" {
		return r.ID
	}
	return models.DeriveStreamerID(r.IdentityKey)
}

type UpdateConfigRequest struct {
	models.StreamerProfile
	ID       string `json:"id" validate:"required"`
	UserName string `json:"userName" validate:"required,max=64"`
}

// Profile is the embedded profile with the validated id and userName.
func (r UpdateConfigRequest) Profile() models.StreamerProfile {
	p := r.StreamerProfile
	p.ID = r.ID
	p.UserName = r.UserName
	return p
}

type OnlineStatusRequest struct {
	ID     string `json:"id" validate:"required"`
	Online bool   `json:"online"`
}

type SubaddressReadyRequest struct {
	RequestID string `json:"requestId" validate:"required"`
	Address   string `json:"address" validate:"required"`
}

type PaymentReceivedRequest struct {
	RequestID string `json:"requestId" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type notFoundPayload struct {
	Status string `json:"status"`
}

var streamerNotFound = notFoundPayload{Status: CodeNotFound}
