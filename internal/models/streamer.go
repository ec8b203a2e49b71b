package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type StreamInfo struct {
	URL         string `json:"url"`
	Platform    string `json:"platform"`
	Language    string `json:"language"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type AnimationSettings struct {
	Goal          float64 `json:"goal"`
	GoalProgress  float64 `json:"goalProgress"`
	SecondPrice   float64 `json:"secondPrice"`
	CharPrice     float64 `json:"charPrice"`
	CharLimit     int     `json:"charLimit"`
	MinAmount     float64 `json:"minAmount"`
	GifsMinAmount float64 `json:"gifsMinAmount"`
	GoalReached   bool    `json:"goalReached"`
	ShowGoal      bool    `json:"showGoal"`
}

type StreamerProfile struct {
	ID                   string            `json:"id"`
	UserName             string            `json:"userName"`
	DisplayName          string            `json:"displayName"`
	ProfilePicture       string            `json:"profilePicture"`
	Stream               StreamInfo        `json:"stream"`
	AnimationSettings    AnimationSettings `json:"animationSettings"`
	IsOnline             bool              `json:"isOnline"`
	CreationDate         time.Time         `json:"creationDate"`
	WalletSyncCheckpoint string            `json:"walletSyncCheckpoint,omitempty"` // opaque, wallet-owned
	Revision             int64             `json:"revision"`
}

// PublicGoal is the part of AnimationSettings visible to donators.
type PublicGoal struct {
	ShowGoal     bool    `json:"showGoal"`
	Goal         float64 `json:"goal"`
	GoalProgress float64 `json:"goalProgress"`
}

// PublicProfile is the donator-safe projection of a StreamerProfile.
type PublicProfile struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"displayName"`
	UserName          string     `json:"userName"`
	IsOnline          bool       `json:"isOnline"`
	ProfilePicture    string     `json:"profilePicture"`
	Stream            StreamInfo `json:"stream"`
	AnimationSettings PublicGoal `json:"animationSettings"`
}

func (p *StreamerProfile) Public() PublicProfile {
	return PublicProfile{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		UserName:       p.UserName,
		IsOnline:       p.IsOnline,
		ProfilePicture: p.ProfilePicture,
		Stream:         p.Stream,
		AnimationSettings: PublicGoal{
			ShowGoal:     p.AnimationSettings.ShowGoal,
			Goal:         p.AnimationSettings.Goal,
			GoalProgress: p.AnimationSettings.GoalProgress,
		},
	}
}

// NormalizeUserName is the comparison form of a username.
func NormalizeUserName(userName string) string {
	return strings.ToLower(strings.TrimSpace(userName))
}

// DeriveStreamerID turns a registration secret into the stable streamer id.
func DeriveStreamerID(identityKey string) string {
	sum := sha256.Sum256([]byte(identityKey))
	return hex.EncodeToString(sum[:])
}
