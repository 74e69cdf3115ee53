// Package tokens provides the token registry used to resolve display metadata.
package tokens

import (
	"strconv"
	"strings"
	"sync"

	"github.com/dwdwow/morpho-go/constants"
)

// Peg is the reference asset a token tracks
type Peg string

const (
	PegNone Peg = ""
	PegUSD  Peg = "USD"
	PegETH  Peg = "ETH"
	PegBTC  Peg = "BTC"
)

// Token is registry metadata for one deployment of a token
type Token struct {
	Address  string
	ChainID  int64
	Symbol   string
	Decimals int
	Peg      Peg
}

// Finder resolves token metadata; unknown tokens return ok=false
type Finder interface {
	FindToken(address string, chainID int64) (Token, bool)
}

// Registry is an in-memory token and oracle whitelist, safe for concurrent use
type Registry struct {
	mu      sync.RWMutex
	tokens  map[string]Token
	oracles map[int64]map[string]bool
}

// NewRegistry creates a registry holding the given tokens
func NewRegistry(tokens ...Token) *Registry {
	r := &Registry{
		tokens:  make(map[string]Token, len(tokens)),
		oracles: make(map[int64]map[string]bool),
	}
	for _, t := range tokens {
		r.Add(t)
	}
	return r
}

// Default returns a registry seeded with the major assets of supported chains
func Default() *Registry {
	return NewRegistry(defaultTokens...)
}

func key(address string, chainID int64) string {
	return strings.ToLower(address) + "@" + strconv.FormatInt(chainID, 10)
}

// Add registers or replaces a token
func (r *Registry) Add(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[key(t.Address, t.ChainID)] = t
}

// FindToken looks up a token by address (case-insensitive) and chain
func (r *Registry) FindToken(address string, chainID int64) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[key(address, chainID)]
	return t, ok
}

// AddOracle whitelists an oracle on a chain
func (r *Registry) AddOracle(address string, chainID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.oracles[chainID] == nil {
		r.oracles[chainID] = make(map[string]bool)
	}
	r.oracles[chainID][strings.ToLower(address)] = true
}

// IsWhitelistedOracle reports whether an oracle is known on a chain.
// known is false when no whitelist has been loaded for that chain.
func (r *Registry) IsWhitelistedOracle(address string, chainID int64) (whitelisted, known bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.oracles[chainID]
	if !ok {
		return false, false
	}
	return set[strings.ToLower(address)], true
}

var (
	mainnet = int64(constants.ChainMainnet)
	base    = int64(constants.ChainBase)
)

var defaultTokens = []Token{
	{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", ChainID: mainnet, Symbol: "USDC", Decimals: 6, Peg: PegUSD},
	{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", ChainID: mainnet, Symbol: "USDT", Decimals: 6, Peg: PegUSD},
	{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", ChainID: mainnet, Symbol: "DAI", Decimals: 18, Peg: PegUSD},
	{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", ChainID: mainnet, Symbol: "WETH", Decimals: 18, Peg: PegETH},
	{Address: "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0", ChainID: mainnet, Symbol: "wstETH", Decimals: 18},
	{Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", ChainID: mainnet, Symbol: "WBTC", Decimals: 8, Peg: PegBTC},
	{Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", ChainID: mainnet, Symbol: "cbBTC", Decimals: 8, Peg: PegBTC},
	{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", ChainID: base, Symbol: "USDC", Decimals: 6, Peg: PegUSD},
	{Address: "0x4200000000000000000000000000000000000006", ChainID: base, Symbol: "WETH", Decimals: 18, Peg: PegETH},
	{Address: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf", ChainID: base, Symbol: "cbBTC", Decimals: 8, Peg: PegBTC},
	{Address: "0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22", ChainID: base, Symbol: "cbETH", Decimals: 18},
}
