package models

// Handshake request states
const (
	HandshakePending   = "pending"
	HandshakeAssigned  = "assigned"
	HandshakeConfirmed = "confirmed"
)

var ValidHandshakeTransitions = map[string][]string{
	HandshakePending:   {HandshakeAssigned},
	HandshakeAssigned:  {HandshakeConfirmed},
	HandshakeConfirmed: {},
}

func IsValidHandshakeTransition(from, to string) bool {
	for _, s := range ValidHandshakeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// HandshakeRequest is an in-flight subaddress request. Never persisted.
type HandshakeRequest struct {
	RequestID        string
	DonatorHandle    string
	StreamerID       string
	StreamerHandle   string
	DonorDisplayName string
	AmountHint       string
	State            string
}
