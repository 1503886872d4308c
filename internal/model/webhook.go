package model

// EventType is the tag of a wallet custodian webhook event
type EventType string

const (
	EventWalletLinked   EventType = "wallet_linked"
	EventWalletUnlinked EventType = "wallet_unlinked"
	EventBalanceUpdate  EventType = "balance_update"
)

// RequiresAddress reports whether walletAddress is mandatory for the event type
func (t EventType) RequiresAddress() bool {
	return t != EventWalletUnlinked
}

// WebhookEvent represents the body of POST /api/webhooks/joey
type WebhookEvent struct {
	Type          EventType      `json:"type"`
	UserID        string         `json:"userId"`
	WalletAddress string         `json:"walletAddress,omitempty"`
	Chain         string         `json:"chain,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Balances      map[string]any `json:"balances,omitempty"`
}

// StatusResponse is the success body shared by the POST endpoints
type StatusResponse struct {
	Status string `json:"status"`
}
