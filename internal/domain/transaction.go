package domain

import "time"

// TradeKind is the direction of a trade from the actor's point of view.
type TradeKind string

const (
	TradeBuy  TradeKind = "BUY"
	TradeSell TradeKind = "SELL"
)

// TransactionState tracks the settlement lifecycle of a trade. A transaction
// is created OPTIMISTIC, then either replaced by the gateway's CONFIRMED
// record or rolled back and discarded.
type TransactionState string

const (
	TxOptimistic TransactionState = "OPTIMISTIC"
	TxConfirmed  TransactionState = "CONFIRMED"
	TxRolledBack TransactionState = "ROLLED_BACK"
)

// Transaction records a single buy or sell against the market ledger.
// PricePerUnit is the price shown to the actor at validation time; the
// gateway settles at exactly this price or rejects.
type Transaction struct {
	ID           string           `json:"id"`
	ItemID       string           `json:"itemId"`
	Kind         TradeKind        `json:"kind"`
	Quantity     int              `json:"quantity"`
	PricePerUnit float64          `json:"pricePerUnit"`
	TotalPrice   float64          `json:"totalPrice"`
	ActorID      string           `json:"actorId"`
	Timestamp    time.Time        `json:"timestamp"`
	State        TransactionState `json:"state"`
}

// TradeIntent is the settlement request handed to the persistence gateway.
type TradeIntent struct {
	TransactionID string
	ItemID        string
	Quantity      int
	Kind          TradeKind
	ActorID       string
	PricePerUnit  float64
}
