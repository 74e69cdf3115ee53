package client

const sgTokenFields = `id symbol decimals lastPriceUSD`

const sgMarketFields = `
  id
  lltv
  irm
  fee
  lastUpdate
  oracle { oracleAddress }
  inputToken { ` + sgTokenFields + ` }
  borrowedToken { ` + sgTokenFields + ` }
  totalSupply
  totalBorrow
  totalSupplyShares
  totalBorrowShares
  totalCollateral
  rates { rate side }
  badDebtRealizations(first: 1000) { badDebt }
`

const sgMarketQuery = `
query Market($id: ID!) {
  market(id: $id) {` + sgMarketFields + `}
}`

const sgMarketsQuery = `
query Markets($first: Int!, $lastId: ID!) {
  markets(first: $first, orderBy: id, orderDirection: asc, where: { id_gt: $lastId }) {` + sgMarketFields + `}
}`

const sgEventFields = `hash timestamp amount account { id }`

const sgSuppliesQuery = `
query Supplies($market: String!, $first: Int!, $minAssets: BigInt!) {
  deposits(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market, amount_gte: $minAssets }) { ` + sgEventFields + ` }
  withdraws(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market, amount_gte: $minAssets }) { ` + sgEventFields + ` }
}`

const sgBorrowsQuery = `
query Borrows($market: String!, $first: Int!, $minAssets: BigInt!) {
  borrows(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market, amount_gte: $minAssets }) { ` + sgEventFields + ` }
  repays(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market, amount_gte: $minAssets }) { ` + sgEventFields + ` }
}`

const sgLiquidationsQuery = `
query Liquidations($market: String!, $first: Int!) {
  liquidates(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market }) {
    id
    hash
    timestamp
    liquidator { id }
    account { id }
    amount
    repaid
  }
  badDebtRealizations(first: $first, orderBy: timestamp, orderDirection: desc, where: { market: $market }) {
    id
    timestamp
    badDebt
    liquidation { id hash }
  }
}`

const sgPositionsQuery = `
query Positions($market: String!, $side: PositionSide!, $first: Int!, $minShares: BigInt!) {
  positions(first: $first, orderBy: shares, orderDirection: desc, where: { market: $market, side: $side, shares_gte: $minShares }) {
    account { id }
    shares
    balance
  }
}`

const sgCollateralQuery = `
query Collateral($market: String!, $accounts: [String!]!) {
  positions(first: 1000, where: { market: $market, side: COLLATERAL, account_in: $accounts }) {
    account { id }
    balance
  }
}`

const sgDailySnapshotsQuery = `
query DailySnapshots($market: String!, $from: BigInt!, $to: BigInt!) {
  snapshots: marketDailySnapshots(first: 1000, orderBy: timestamp, orderDirection: asc, where: { market: $market, timestamp_gte: $from, timestamp_lte: $to }) {
    timestamp
    rates { rate side }
    totalDepositBalanceUSD
    totalBorrowBalanceUSD
  }
}`

const sgHourlySnapshotsQuery = `
query HourlySnapshots($market: String!, $from: BigInt!, $to: BigInt!) {
  snapshots: marketHourlySnapshots(first: 1000, orderBy: timestamp, orderDirection: asc, where: { market: $market, timestamp_gte: $from, timestamp_lte: $to }) {
    timestamp
    rates { rate side }
    totalDepositBalanceUSD
    totalBorrowBalanceUSD
  }
}`
