package preferences

import (
	"time"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// Merge computes the next preferences document for a webhook event. It never mutates
// current, performs no I/O and uses now for every timestamp it writes.
// Unknown event types leave the document unchanged apart from the empty-wallets cleanup.
func Merge(current Preferences, event model.WebhookEvent, now time.Time) Preferences {
	next := current.clone()
	now = now.UTC()

	switch event.Type {
	case model.EventWalletLinked:
		next.setWallet(ProviderJoey, linkRecord(next.Wallets[ProviderJoey], event, now))

	case model.EventWalletUnlinked:
		next.deleteWallet(ProviderJoey)

	case model.EventBalanceUpdate:
		next.setWallet(ProviderJoey, balanceRecord(next.Wallets[ProviderJoey], event, now))
	}

	return cleanup(next)
}

// ApplyBalanceSnapshot writes a freshly queried balance into wallets[key], keeping every
// other field of the existing record.
func ApplyBalanceSnapshot(current Preferences, key, address string, balances map[string]any, now time.Time) Preferences {
	next := current.clone()
	now = now.UTC()

	rec := next.Wallets[key]
	rec.Address = address
	rec.LastKnownBalances = balances
	rec.LastBalanceSyncedAt = &now
	next.setWallet(key, rec)

	return cleanup(next)
}

func linkRecord(existing WalletRecord, event model.WebhookEvent, now time.Time) WalletRecord {
	rec := existing
	rec.Address = event.WalletAddress

	switch {
	case event.Chain != "":
		rec.Chain = event.Chain
	case existing.Chain != "":
		rec.Chain = existing.Chain
	default:
		rec.Chain = DefaultChain
	}

	rec.ConnectedAt = &now
	rec.Metadata = shallowMerge(existing.Metadata, event.Metadata)

	verified := true
	rec.Verified = &verified
	rec.Verification = &Verification{Method: VerificationMethodJoey, At: now}
	return rec
}

func balanceRecord(existing WalletRecord, event model.WebhookEvent, now time.Time) WalletRecord {
	rec := existing
	if rec.Address == "" {
		rec.Address = event.WalletAddress
	}
	if event.Balances != nil {
		rec.LastKnownBalances = event.Balances
	}
	rec.LastBalanceSyncedAt = &now
	return rec
}

// shallowMerge returns a new map of base overlaid with patch
func shallowMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// cleanup drops the wallets map when no entry is left so it is never persisted as {}
func cleanup(p Preferences) Preferences {
	if len(p.Wallets) == 0 {
		p.Wallets = nil
	}
	return p
}
