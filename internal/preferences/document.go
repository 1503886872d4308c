// Package preferences models the user preferences document and the wallet merge rules
// applied to it.
package preferences

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

const (
	ProviderJoey      = "joey"
	ProviderCustodial = "custodial"

	DefaultChain           = "xrpl:mainnet"
	VerificationMethodJoey = "joey-webhook"

	walletsKey = "wallets"
)

var errNullRecord = errors.New("wallet record is null")

// Verification records how and when a wallet link was verified
type Verification struct {
	Method string    `json:"method"`
	At     time.Time `json:"at"`
}

// WalletRecord is one entry of the wallets map. Fields this service does not know
// about are kept verbatim and written back untouched.
type WalletRecord struct {
	Address             string
	Chain               string
	ConnectedAt         *time.Time
	Verified            *bool
	Verification        *Verification
	Metadata            map[string]any
	LastKnownBalances   map[string]any
	LastBalanceSyncedAt *time.Time

	extra map[string]json.RawMessage
}

// known record keys, in no particular order
const (
	keyAddress             = "address"
	keyChain               = "chain"
	keyConnectedAt         = "connectedAt"
	keyVerified            = "verified"
	keyVerification        = "verification"
	keyMetadata            = "metadata"
	keyLastKnownBalances   = "lastKnownBalances"
	keyLastBalanceSyncedAt = "lastBalanceSyncedAt"
)

// UnmarshalJSON decodes a record. A known key whose value has an unexpected shape is
// kept as an unknown field so that it survives a write-back.
func (r *WalletRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errNullRecord
	}

	out := WalletRecord{extra: make(map[string]json.RawMessage)}
	for key, raw := range fields {
		ok := true
		switch key {
		case keyAddress:
			ok = json.Unmarshal(raw, &out.Address) == nil
		case keyChain:
			ok = json.Unmarshal(raw, &out.Chain) == nil
		case keyConnectedAt:
			out.ConnectedAt, ok = decodeTime(raw)
		case keyVerified:
			var v bool
			if ok = json.Unmarshal(raw, &v) == nil && !isNull(raw); ok {
				out.Verified = &v
			}
		case keyVerification:
			var v Verification
			if ok = json.Unmarshal(raw, &v) == nil && !isNull(raw); ok {
				out.Verification = &v
			}
		case keyMetadata:
			ok = json.Unmarshal(raw, &out.Metadata) == nil
		case keyLastKnownBalances:
			ok = json.Unmarshal(raw, &out.LastKnownBalances) == nil
		case keyLastBalanceSyncedAt:
			out.LastBalanceSyncedAt, ok = decodeTime(raw)
		default:
			ok = false
		}
		if !ok {
			out.extra[key] = raw
		}
	}

	*r = out
	return nil
}

// MarshalJSON writes the record with unknown fields first and known fields over them.
func (r WalletRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.extra)+8)
	for k, v := range r.extra {
		out[k] = v
	}
	if r.Address != "" {
		out[keyAddress] = r.Address
	}
	if r.Chain != "" {
		out[keyChain] = r.Chain
	}
	if r.ConnectedAt != nil {
		out[keyConnectedAt] = r.ConnectedAt.UTC()
	}
	if r.Verified != nil {
		out[keyVerified] = *r.Verified
	}
	if r.Verification != nil {
		out[keyVerification] = r.Verification
	}
	if r.Metadata != nil {
		out[keyMetadata] = r.Metadata
	}
	if r.LastKnownBalances != nil {
		out[keyLastKnownBalances] = r.LastKnownBalances
	}
	if r.LastBalanceSyncedAt != nil {
		out[keyLastBalanceSyncedAt] = r.LastBalanceSyncedAt.UTC()
	}
	return json.Marshal(out)
}

// Extra returns the raw value of a field the record does not model
func (r WalletRecord) Extra(key string) (json.RawMessage, bool) {
	v, ok := r.extra[key]
	return v, ok
}

func (r WalletRecord) clone() WalletRecord {
	c := r
	if r.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			c.extra[k] = v
		}
	}
	return c
}

// Preferences is the user preferences document: a typed wallets map plus every other
// top-level key kept as raw JSON.
type Preferences struct {
	Wallets map[string]WalletRecord

	rest map[string]json.RawMessage
	// wallet entries that are not objects, written back as found unless replaced
	rawWallets map[string]json.RawMessage
}

// Parse turns a stored preferences value into a document. Empty, null or unparseable
// input yields an empty document. A wallets value that is not an object is discarded.
func Parse(raw []byte) Preferences {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Preferences{}
	}

	p := Preferences{rest: fields}
	walletsRaw, ok := fields[walletsKey]
	if !ok {
		return p
	}
	delete(fields, walletsKey)

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(walletsRaw, &entries); err != nil || len(entries) == 0 {
		return p
	}

	p.Wallets = make(map[string]WalletRecord, len(entries))
	for key, entry := range entries {
		var rec WalletRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			if p.rawWallets == nil {
				p.rawWallets = make(map[string]json.RawMessage)
			}
			p.rawWallets[key] = entry
			continue
		}
		p.Wallets[key] = rec
	}
	if len(p.Wallets) == 0 {
		p.Wallets = nil
	}
	return p
}

// Field returns the raw value of a top-level key other than wallets
func (p Preferences) Field(key string) (json.RawMessage, bool) {
	v, ok := p.rest[key]
	return v, ok
}

// Wallet returns the record stored under a provider key
func (p Preferences) Wallet(key string) (WalletRecord, bool) {
	rec, ok := p.Wallets[key]
	return rec, ok
}

// MarshalJSON writes the document. An empty wallets map is omitted entirely.
func (p Preferences) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.rest)+1)
	for k, v := range p.rest {
		out[k] = v
	}
	if len(p.Wallets)+len(p.rawWallets) > 0 {
		wallets := make(map[string]any, len(p.Wallets)+len(p.rawWallets))
		for k, v := range p.rawWallets {
			wallets[k] = v
		}
		for k, v := range p.Wallets {
			wallets[k] = v
		}
		out[walletsKey] = wallets
	}
	return json.Marshal(out)
}

func (p *Preferences) setWallet(key string, rec WalletRecord) {
	delete(p.rawWallets, key)
	p.Wallets[key] = rec
}

func (p *Preferences) deleteWallet(key string) {
	delete(p.rawWallets, key)
	delete(p.Wallets, key)
}

// Serialize returns the document as the JSON text persisted to the store
func (p Preferences) Serialize() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p Preferences) clone() Preferences {
	c := Preferences{}
	if p.rest != nil {
		c.rest = make(map[string]json.RawMessage, len(p.rest))
		for k, v := range p.rest {
			c.rest[k] = v
		}
	}
	if p.rawWallets != nil {
		c.rawWallets = make(map[string]json.RawMessage, len(p.rawWallets))
		for k, v := range p.rawWallets {
			c.rawWallets[k] = v
		}
	}
	c.Wallets = make(map[string]WalletRecord, len(p.Wallets)+1)
	for k, v := range p.Wallets {
		c.Wallets[k] = v.clone()
	}
	return c
}

func decodeTime(raw json.RawMessage) (*time.Time, bool) {
	if isNull(raw) {
		return nil, false
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false
	}
	return &t, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
