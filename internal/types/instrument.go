package types

import "github.com/shopspring/decimal"

// Instrument is the immutable contract spec for a tradable symbol, fetched
// once via the Exchange Adapter and cached for the life of the process.
type Instrument struct {
	Symbol         string
	ContractSize   decimal.Decimal // base units represented by one contract
	PricePrecision int32
	SizePrecision  int32
	MinSize        int64 // minimum contract count accepted by the exchange
}
