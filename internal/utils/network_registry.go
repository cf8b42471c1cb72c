package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedNetwork network id is not in the registry
var ErrUnsupportedNetwork = errors.New("unsupported network")

// NetworkInfo Network information
type NetworkInfo struct {
	NetworkID   int64    `json:"networkId"`
	Name        string   `json:"name"` // canonical name, used as sourceChain/destinationChain
	DisplayName string   `json:"displayName"`
	Symbol      string   `json:"symbol"`
	IsTestnet   bool     `json:"isTestnet"`
	Aliases     []string `json:"aliases,omitempty"`
}

// DefaultNetworks built-in network table
func DefaultNetworks() []NetworkInfo {
	return []NetworkInfo{
		{NetworkID: 1, Name: "ethereum", DisplayName: "Ethereum Mainnet", Symbol: "ETH", Aliases: []string{"eth", "mainnet"}},
		{NetworkID: 11155111, Name: "sepolia", DisplayName: "Sepolia Testnet", Symbol: "ETH", IsTestnet: true},
		{NetworkID: 137, Name: "polygon", DisplayName: "Polygon PoS", Symbol: "POL", Aliases: []string{"matic"}},
	}
}

// NetworkRegistry static network id -> canonical name table
type NetworkRegistry struct {
	byID   map[int64]*NetworkInfo
	byName map[string]*NetworkInfo
}

// NewNetworkRegistry builds a registry, rejecting duplicate ids or names.
func NewNetworkRegistry(networks []NetworkInfo) (*NetworkRegistry, error) {
	r := &NetworkRegistry{
		byID:   make(map[int64]*NetworkInfo, len(networks)),
		byName: make(map[string]*NetworkInfo, len(networks)),
	}
	for i := range networks {
		info := networks[i]
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.NetworkID <= 0 || info.Name == "" {
			return nil, fmt.Errorf("invalid network entry: id=%d name=%q", info.NetworkID, info.Name)
		}
		if _, dup := r.byID[info.NetworkID]; dup {
			return nil, fmt.Errorf("duplicate network id %d", info.NetworkID)
		}
		if _, dup := r.byName[info.Name]; dup {
			return nil, fmt.Errorf("duplicate network name %q", info.Name)
		}
		r.byID[info.NetworkID] = &info
		r.byName[info.Name] = &info
		for _, alias := range info.Aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias != "" {
				if _, taken := r.byName[alias]; !taken {
					r.byName[alias] = &info
				}
			}
		}
	}
	return r, nil
}

// ResolveNetworkName maps a network id to its canonical name.
func (r *NetworkRegistry) ResolveNetworkName(networkID int64) (string, error) {
	info, ok := r.byID[networkID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedNetwork, networkID)
	}
	return info.Name, nil
}

// IsSupported reports whether the id is registered
func (r *NetworkRegistry) IsSupported(networkID int64) bool {
	_, ok := r.byID[networkID]
	return ok
}

// Get returns the entry for id
func (r *NetworkRegistry) Get(networkID int64) (NetworkInfo, bool) {
	info, ok := r.byID[networkID]
	if !ok {
		return NetworkInfo{}, false
	}
	return *info, true
}

// NetworkIDFromChainName best-effort reverse lookup used for legacy records
// that carry only a chain name. Exact names and aliases win; otherwise the
// first registered name contained in the input is used (e.g. "eth-sepolia").
func (r *NetworkRegistry) NetworkIDFromChainName(chainName string) (int64, bool) {
	name := strings.ToLower(strings.TrimSpace(chainName))
	if name == "" {
		return 0, false
	}
	if info, ok := r.byName[name]; ok {
		return info.NetworkID, true
	}

	// Longest match first so "sepolia" beats "eth" in "eth-sepolia"
	candidates := make([]string, 0, len(r.byName))
	for key := range r.byName {
		candidates = append(candidates, key)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	for _, key := range candidates {
		if strings.Contains(name, key) {
			return r.byName[key].NetworkID, true
		}
	}
	return 0, false
}

// All returns every registered network ordered by id
func (r *NetworkRegistry) All() []NetworkInfo {
	out := make([]NetworkInfo, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetworkID < out[j].NetworkID })
	return out
}
