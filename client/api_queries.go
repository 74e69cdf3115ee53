package client

const apiAssetFields = `address symbol decimals priceUsd`

const apiMarketFields = `
  uniqueKey
  lltv
  oracleAddress
  irmAddress
  morphoBlue { chain { id } }
  loanAsset { ` + apiAssetFields + ` }
  collateralAsset { ` + apiAssetFields + ` }
  state {
    supplyAssets
    borrowAssets
    supplyShares
    borrowShares
    collateralAssets
    liquidityAssets
    supplyAssetsUsd
    borrowAssetsUsd
    collateralAssetsUsd
    liquidityAssetsUsd
    utilization
    supplyApy
    borrowApy
    fee
    timestamp
  }
  realizedBadDebt { underlying usd }
  warnings { type level }
`

const apiMarketQuery = `
query MarketByUniqueKey($uniqueKey: String!, $chainId: Int) {
  marketByUniqueKey(uniqueKey: $uniqueKey, chainId: $chainId) {` + apiMarketFields + `}
}`

const apiMarketsQuery = `
query Markets($first: Int, $skip: Int, $where: MarketFilters) {
  markets(first: $first, skip: $skip, where: $where) {
    items {` + apiMarketFields + `}
    pageInfo { countTotal count limit skip }
  }
}`

const apiTransactionsQuery = `
query MarketTransactions($first: Int, $skip: Int, $where: TransactionFilters) {
  transactions(first: $first, skip: $skip, orderBy: Timestamp, orderDirection: Desc, where: $where) {
    items {
      hash
      timestamp
      type
      user { address }
      data {
        ... on MarketTransferTransactionData { assets shares }
        ... on MarketLiquidationTransactionData {
          liquidator
          repaidAssets
          seizedAssets
          badDebtAssets
        }
      }
    }
    pageInfo { countTotal count }
  }
}`

const apiPositionsQuery = `
query MarketPositions($first: Int, $skip: Int, $orderBy: MarketPositionOrderBy, $where: MarketPositionFilters) {
  marketPositions(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: Desc, where: $where) {
    items {
      user { address }
      market { uniqueKey }
      state {
        supplyShares
        supplyAssets
        borrowShares
        borrowAssets
        collateral
      }
    }
    pageInfo { countTotal count }
  }
}`

const apiHistoricalQuery = `
query MarketHistory($uniqueKey: String!, $chainId: Int, $options: TimeseriesOptions) {
  marketByUniqueKey(uniqueKey: $uniqueKey, chainId: $chainId) {
    historicalState {
      supplyApy(options: $options) { x y }
      borrowApy(options: $options) { x y }
      supplyAssetsUsd(options: $options) { x y }
      borrowAssetsUsd(options: $options) { x y }
      utilization(options: $options) { x y }
    }
  }
}`

const apiVaultQuery = `
query VaultV2($address: String!, $chainId: Int) {
  vaultV2ByAddress(address: $address, chainId: $chainId) {
    address
    name
    symbol
    chain { id }
    asset { ` + apiAssetFields + ` }
    owner { address }
    curator { address }
    allocators { allocator { address } }
    adapters { items { address type assets } }
    caps {
      items {
        id
        idData
        relativeCap
        absoluteCap
        allocation
      }
    }
    totalAssets
    totalSupply
  }
}`
