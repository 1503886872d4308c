package model

// BalanceSyncRequest represents request for POST /api/wallet/sync-balance
type BalanceSyncRequest struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress,omitempty"`
	WalletType    string `json:"walletType,omitempty" enums:"joey,custodial"`
}

// BalanceSnapshot is the balance read from the ledger node
type BalanceSnapshot struct {
	XRPDrops string  `json:"xrpDrops"`
	XRP      float64 `json:"xrp"`
}

// AsMap returns the snapshot in the shape stored under lastKnownBalances
func (b BalanceSnapshot) AsMap() map[string]any {
	return map[string]any{
		"xrpDrops": b.XRPDrops,
		"xrp":      b.XRP,
	}
}

// BalanceSyncResponse represents response for POST /api/wallet/sync-balance
type BalanceSyncResponse struct {
	Status   string          `json:"status"`
	Balances BalanceSnapshot `json:"balances"`
}
