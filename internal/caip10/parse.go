// Package caip10 extracts ledger accounts from CAIP-10 identifiers
// (namespace:chainReference:address) carried in session namespaces.
package caip10

import (
	"sort"
	"strings"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// NamespaceXRPL is the only CAIP-2 namespace this service accepts
const NamespaceXRPL = "xrpl"

// ParseAccount parses one CAIP-10 identifier. It reports false for anything that is not
// exactly three segments in the xrpl namespace with a non-empty address.
func ParseAccount(id string) (model.Account, bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return model.Account{}, false
	}
	namespace, ref, address := parts[0], parts[1], parts[2]
	if namespace != NamespaceXRPL || address == "" {
		return model.Account{}, false
	}
	return model.Account{Address: address, Chain: NamespaceXRPL + ":" + ref}, true
}

// ParseAccounts collects xrpl accounts from every namespace entry, skipping malformed
// identifiers. The result is de-duplicated by (address, chain) in first-seen order;
// namespace keys are visited in sorted order.
func ParseAccounts(namespaces map[string]model.Namespace) []model.Account {
	keys := make([]string, 0, len(namespaces))
	for k := range namespaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[model.Account]struct{})
	accounts := make([]model.Account, 0)
	for _, k := range keys {
		for _, id := range namespaces[k].Accounts {
			acc, ok := ParseAccount(id)
			if !ok {
				continue
			}
			if _, dup := seen[acc]; dup {
				continue
			}
			seen[acc] = struct{}{}
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

// SelectAccount returns the account on the preferred chain, or the first account when
// none matches. It reports false when accounts is empty.
func SelectAccount(accounts []model.Account, chain string) (model.Account, bool) {
	if len(accounts) == 0 {
		return model.Account{}, false
	}
	for _, acc := range accounts {
		if acc.Chain == chain {
			return acc, true
		}
	}
	return accounts[0], true
}
