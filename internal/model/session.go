package model

import (
	"bytes"
	"encoding/json"
)

// Account is a ledger account surfaced from a wallet-connection session
type Account struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

// Namespace is one entry of a session's namespaces map.
// Only accounts is interpreted; the rest is carried for the session client.
type Namespace struct {
	Chains   []string `json:"chains,omitempty"`
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods,omitempty"`
	Events   []string `json:"events,omitempty"`
}

// UnmarshalJSON decodes a namespace leniently: non-string account entries are skipped
// and a missing or malformed accounts list decodes as empty.
func (n *Namespace) UnmarshalJSON(data []byte) error {
	var raw struct {
		Chains   []string          `json:"chains"`
		Accounts []json.RawMessage `json:"accounts"`
		Methods  []string          `json:"methods"`
		Events   []string          `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// retry with accounts only so a bad chains/methods list does not lose accounts
		var accountsOnly struct {
			Accounts []json.RawMessage `json:"accounts"`
		}
		if json.Unmarshal(data, &accountsOnly) != nil {
			*n = Namespace{}
			return nil
		}
		raw.Accounts = accountsOnly.Accounts
	}

	out := Namespace{Chains: raw.Chains, Methods: raw.Methods, Events: raw.Events}
	for _, a := range raw.Accounts {
		a = bytes.TrimSpace(a)
		if len(a) == 0 || a[0] != '"' {
			continue
		}
		var s string
		if json.Unmarshal(a, &s) == nil {
			out.Accounts = append(out.Accounts, s)
		}
	}
	*n = out
	return nil
}

// Session is an established wallet-connection pairing
type Session struct {
	Topic      string               `json:"topic"`
	Namespaces map[string]Namespace `json:"namespaces"`
}

// SessionMetadata identifies this application to the wallet
type SessionMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}
