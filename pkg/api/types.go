package api

// Request and response types for REST endpoints and WebSocket messages.
// Amounts travel as decimal strings so that full uint256 precision survives
// JSON.

// ==============================
// REST Response Types
// ==============================

// ConfigInfo is the immutable construction-time configuration.
type ConfigInfo struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent uint64 `json:"feePercent"`
	BaseAsset  string `json:"baseAsset"` // sentinel address for the native unit
}

// BalanceInfo is one ledger entry.
type BalanceInfo struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// OrderInfo is an order plus its derived status.
type OrderInfo struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	AskAsset    string `json:"askAsset"`
	AskAmount   string `json:"askAmount"`
	OfferAsset  string `json:"offerAsset"`
	OfferAmount string `json:"offerAmount"`
	CreatedAt   int64  `json:"createdAt"` // unix milliseconds
	Status      string `json:"status"`    // "open", "filled", "cancelled"
}

// TradeInfo is one settled trade.
type TradeInfo struct {
	OrderID     uint64 `json:"orderId"`
	Maker       string `json:"maker"`
	Taker       string `json:"taker"`
	AskAsset    string `json:"askAsset"`
	AskAmount   string `json:"askAmount"`
	OfferAsset  string `json:"offerAsset"`
	OfferAmount string `json:"offerAmount"`
	Fee         string `json:"fee"`
	Timestamp   int64  `json:"timestamp"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// FundsRequest is the payload for deposits and withdrawals.
// Token is empty for base-unit operations.
type FundsRequest struct {
	Address   string `json:"address"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount"`
	Signature string `json:"signature,omitempty"`
}

// MakeOrderRequest is the payload for POST /api/v1/orders.
type MakeOrderRequest struct {
	Address     string `json:"address"`
	AskAsset    string `json:"askAsset"`
	AskAmount   string `json:"askAmount"`
	OfferAsset  string `json:"offerAsset"`
	OfferAmount string `json:"offerAmount"`
	Signature   string `json:"signature,omitempty"`
}

// OrderActionRequest is the payload for cancel and fill.
type OrderActionRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to subscribe to channels:
// "deposits", "withdrawals", "orders", "trades".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent wraps one engine event for broadcast.
type WSEvent struct {
	Type string `json:"type"` // "deposit", "withdraw", "order", "cancel", "trade"
	Data any    `json:"data"`
}

// DepositUpdate mirrors exchange.DepositEvent / WithdrawEvent.
type FundsUpdate struct {
	Asset      string `json:"asset"`
	User       string `json:"user"`
	Amount     string `json:"amount"`
	NewBalance string `json:"newBalance"`
}
