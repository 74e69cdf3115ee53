package types

// VaultV2Cap is one allocation limit of a Vault V2.
// RelativeCap is WAD scaled (1e18 = 100%). AbsoluteCap is in asset units and
// MaxUint128 means no limit. Old values are only set on mutations.
type VaultV2Cap struct {
	CapID          string  `json:"capId"`
	IDParams       string  `json:"idParams"`
	RelativeCap    string  `json:"relativeCap"`
	AbsoluteCap    string  `json:"absoluteCap"`
	OldRelativeCap *string `json:"oldRelativeCap,omitempty"`
	OldAbsoluteCap *string `json:"oldAbsoluteCap,omitempty"`
	Allocation     string  `json:"allocation,omitempty"`
}
