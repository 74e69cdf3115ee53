// Package constants provides configuration constants for the Morpho data layer.
package constants

import (
	"math/big"
	"time"
)

// ChainID identifies an EVM network
type ChainID int64

const (
	ChainMainnet  ChainID = 1
	ChainPolygon  ChainID = 137
	ChainUnichain ChainID = 130
	ChainHyperEVM ChainID = 999
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
)

const (
	// MorphoAPIURL is the URL for the hosted Morpho GraphQL API
	MorphoAPIURL = "https://api.morpho.org/graphql"

	// SubgraphGatewayURL is the Graph gateway template: api key, subgraph id
	SubgraphGatewayURL = "https://gateway.thegraph.com/api/%s/subgraphs/id/%s"

	// DefaultTimeout is the default HTTP request timeout in seconds
	DefaultTimeout = 30

	// DefaultMaxRetries is the number of attempts made by the API fetcher on NOT_FOUND
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is multiplied by the attempt number between retries
	DefaultRetryBackoff = 500 * time.Millisecond

	// SubgraphFetchCeiling is the hard result-count ceiling of a subgraph query
	SubgraphFetchCeiling = 1000

	// APIPageSize is the page size used when walking the API market list
	APIPageSize = 1000

	// PositionsCacheTTL is how long a subgraph positions snapshot stays fresh
	PositionsCacheTTL = 120 * time.Second

	// PriceCacheTTL is how long a major-asset USD price stays fresh
	PriceCacheTTL = 60 * time.Second

	// PriceAPIURL is the public price endpoint used for pegged-asset estimation
	PriceAPIURL = "https://api.coingecko.com/api/v3/simple/price"

	// WADDecimals is the fixed-point precision of relative caps and LLTV (1e18 = 100%)
	WADDecimals = 18

	// PercentDecimals converts a percent string to WAD (1% = 1e16)
	PercentDecimals = 16
)

// SubgraphIDs maps a chain to its Morpho Blue subgraph deployment
var SubgraphIDs = map[ChainID]string{
	ChainMainnet:  "8Lz789DP5VKLXumTMTgygjU2xtuzx8AhbaacgN5PYCAs",
	ChainBase:     "71ZTy1veF9twER9CLMnPWeLQ7GZcwKsjmygejrgKirqs",
	ChainPolygon:  "EhFokmwryNs7qbvostceRqVdjc3petuD13mmdUiMBw8Y",
	ChainArbitrum: "XsJn88DNCHJ1kgTqYeTgHMQSK4LuG1LR75339QVeQ26",
}

// APIChains lists the chains indexed by the hosted API
var APIChains = map[ChainID]bool{
	ChainMainnet:  true,
	ChainBase:     true,
	ChainPolygon:  true,
	ChainUnichain: true,
	ChainArbitrum: true,
	ChainHyperEVM: true,
}

var (
	// MaxUint128 is the absolute-cap sentinel meaning "no limit"
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	// WAD is 1e18, i.e. 100% for relative caps
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(WADDecimals), nil)
)
