package types

// VaultAdapter is an adapter attached to a Vault V2
type VaultAdapter struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Assets  string `json:"assets"`
}

// VaultDetails is the configuration and state of a Vault V2
type VaultDetails struct {
	Address     string         `json:"address"`
	ChainID     int64          `json:"chainId"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Asset       Asset          `json:"asset"`
	Owner       string         `json:"owner"`
	Curator     string         `json:"curator"`
	Allocators  []string       `json:"allocators"`
	Adapters    []VaultAdapter `json:"adapters"`
	Caps        []VaultV2Cap   `json:"caps"`
	TotalAssets string         `json:"totalAssets"`
	TotalSupply string         `json:"totalSupply"`
}

// VaultAllocation is the amount a vault has placed in one market
type VaultAllocation struct {
	Market          Market `json:"market"`
	AllocatedAssets string `json:"allocatedAssets"`
	SupplyCap       string `json:"supplyCap"`
}
