package types

// WarningType names a condition attached to a domain object instead of failing
type WarningType string

const (
	WarningUnrecognizedLoanAsset       WarningType = "unrecognized_loan_asset"
	WarningUnrecognizedCollateralAsset WarningType = "unrecognized_collateral_asset"
	WarningUnrecognizedOracle          WarningType = "unrecognized_oracle"
	WarningMissingUSDPrice             WarningType = "missing_usd_price"
	WarningPriceIsEstimated            WarningType = "price_is_estimated"
	WarningBadDebtRealized             WarningType = "bad_debt_realized"
)

// WarningLevel is the severity shown to users
type WarningLevel string

const (
	LevelInfo    WarningLevel = "info"
	LevelWarning WarningLevel = "warning"
	LevelAlert   WarningLevel = "alert"
)

// WarningCategory groups warnings by what they refer to
type WarningCategory string

const (
	CategoryAsset   WarningCategory = "asset"
	CategoryOracle  WarningCategory = "oracle"
	CategoryDebt    WarningCategory = "debt"
	CategoryGeneral WarningCategory = "general"
)

// Warning is a non-fatal condition detected while normalizing data
type Warning struct {
	Type     WarningType     `json:"type"`
	Level    WarningLevel    `json:"level"`
	Category WarningCategory `json:"category"`
}

var warningDefs = map[WarningType]Warning{
	WarningUnrecognizedLoanAsset:       {WarningUnrecognizedLoanAsset, LevelAlert, CategoryAsset},
	WarningUnrecognizedCollateralAsset: {WarningUnrecognizedCollateralAsset, LevelAlert, CategoryAsset},
	WarningUnrecognizedOracle:          {WarningUnrecognizedOracle, LevelAlert, CategoryOracle},
	WarningMissingUSDPrice:             {WarningMissingUSDPrice, LevelWarning, CategoryGeneral},
	WarningPriceIsEstimated:            {WarningPriceIsEstimated, LevelInfo, CategoryGeneral},
	WarningBadDebtRealized:             {WarningBadDebtRealized, LevelWarning, CategoryDebt},
}

// NewWarning returns the canonical warning for a type
func NewWarning(t WarningType) Warning {
	if w, ok := warningDefs[t]; ok {
		return w
	}
	return Warning{Type: t, Level: LevelWarning, Category: CategoryGeneral}
}
