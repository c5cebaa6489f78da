package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/custodex/custodex/pkg/exchange"
)

// Server exposes the exchange over REST and WebSocket. It authenticates
// callers (signature recovery or dev trust) and translates between wire
// types and engine types; all exchange semantics live in the engine.
type Server struct {
	ex      *exchange.Exchange
	router  *mux.Router
	hub     *Hub
	devAuth bool
	log     *zap.SugaredLogger
}

func NewServer(ex *exchange.Exchange, devAuth bool, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ex:      ex,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		devAuth: devAuth,
		log:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public reads
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/balances", s.handleListBalances).Methods("GET")
	api.HandleFunc("/balances/{asset}/{account}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// Funds movement
	api.HandleFunc("/deposits/base", s.handleDepositBase).Methods("POST")
	api.HandleFunc("/withdrawals/base", s.handleWithdrawBase).Methods("POST")
	api.HandleFunc("/deposits/token", s.handleDepositToken).Methods("POST")
	api.HandleFunc("/withdrawals/token", s.handleWithdrawToken).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/fill", s.handleFillOrder).Methods("POST")

	// WebSocket + health
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub, bridges engine events onto WebSocket channels, and
// serves HTTP on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.bridgeEvents()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_starting", "addr", addr, "dev_auth", s.devAuth)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// bridgeEvents forwards engine events to subscribed WebSocket clients.
func (s *Server) bridgeEvents() {
	events, cancel := s.ex.Events().Subscribe()
	defer cancel()

	for ev := range events {
		switch ev := ev.(type) {
		case exchange.DepositEvent:
			s.hub.BroadcastToChannel("deposits", WSEvent{Type: "deposit", Data: FundsUpdate{
				Asset: ev.Asset.Hex(), User: ev.User.Hex(),
				Amount: ev.Amount.Dec(), NewBalance: ev.NewBalance.Dec(),
			}})
		case exchange.WithdrawEvent:
			s.hub.BroadcastToChannel("withdrawals", WSEvent{Type: "withdraw", Data: FundsUpdate{
				Asset: ev.Asset.Hex(), User: ev.User.Hex(),
				Amount: ev.Amount.Dec(), NewBalance: ev.NewBalance.Dec(),
			}})
		case exchange.OrderEvent:
			s.hub.BroadcastToChannel("orders", WSEvent{Type: "order", Data: s.orderInfo(ev.Order)})
		case exchange.CancelEvent:
			s.hub.BroadcastToChannel("orders", WSEvent{Type: "cancel", Data: s.orderInfo(ev.Order)})
		case exchange.TradeEvent:
			s.hub.BroadcastToChannel("trades", WSEvent{Type: "trade", Data: TradeInfo{
				OrderID: ev.OrderID, Maker: ev.Maker.Hex(), Taker: ev.Taker.Hex(),
				AskAsset: ev.AskAsset.Hex(), AskAmount: ev.AskAmount.Dec(),
				OfferAsset: ev.OfferAsset.Hex(), OfferAmount: ev.OfferAmount.Dec(),
				Fee: ev.Fee.Dec(), Timestamp: ev.Timestamp,
			}})
		}
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ConfigInfo{
		FeeAccount: s.ex.FeeAccount().Hex(),
		FeePercent: s.ex.FeePercent(),
		BaseAsset:  exchange.BaseAsset.Hex(),
	})
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	entries := s.ex.Balances()
	out := make([]BalanceInfo, len(entries))
	for i, ent := range entries {
		out[i] = BalanceInfo{
			Asset:   ent.Key.Asset.Hex(),
			Account: ent.Key.Account.Hex(),
			Amount:  ent.Amount.Dec(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	asset, err := parseAsset(vars["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	if !common.IsHexAddress(vars["account"]) {
		respondError(w, http.StatusBadRequest, "invalid account", "")
		return
	}
	account := common.HexToAddress(vars["account"])

	respondJSON(w, BalanceInfo{
		Asset:   asset.Hex(),
		Account: account.Hex(),
		Amount:  s.ex.BalanceOf(asset, account).Dec(),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.ex.Orders()
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = s.orderInfo(*o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	o, err := s.ex.GetOrder(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "order not found", err.Error())
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := s.ex.RecentTrades(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade history unavailable", err.Error())
		return
	}
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = TradeInfo{
			OrderID: t.OrderID, Maker: t.Maker.Hex(), Taker: t.Taker.Hex(),
			AskAsset: t.AskAsset.Hex(), AskAmount: t.AskAmount.Dec(),
			OfferAsset: t.OfferAsset.Hex(), OfferAmount: t.OfferAmount.Dec(),
			Fee: t.Fee.Dec(), Timestamp: t.Timestamp,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleDepositBase(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, amount, ok := s.fundsRequest(w, &req, "deposit-base", req.Amount)
	if !ok {
		return
	}

	newBal, err := s.ex.DepositBase(caller, amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Asset: exchange.BaseAsset.Hex(), Account: caller.Hex(), Amount: newBal.Dec()})
}

func (s *Server) handleWithdrawBase(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, amount, ok := s.fundsRequest(w, &req, "withdraw-base", req.Amount)
	if !ok {
		return
	}

	newBal, err := s.ex.WithdrawBase(caller, amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Asset: exchange.BaseAsset.Hex(), Account: caller.Hex(), Amount: newBal.Dec()})
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, token, amount, ok := s.tokenRequest(w, &req, "deposit-token")
	if !ok {
		return
	}

	newBal, err := s.ex.DepositToken(caller, token, amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Asset: token.Hex(), Account: caller.Hex(), Amount: newBal.Dec()})
}

func (s *Server) handleWithdrawToken(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, token, amount, ok := s.tokenRequest(w, &req, "withdraw-token")
	if !ok {
		return
	}

	newBal, err := s.ex.WithdrawToken(caller, token, amount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Asset: token.Hex(), Account: caller.Hex(), Amount: newBal.Dec()})
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	msg := AuthMessage("make-order", req.AskAsset, req.AskAmount, req.OfferAsset, req.OfferAmount)
	caller, err := s.authenticate(req.Address, req.Signature, msg)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed", err.Error())
		return
	}

	askAsset, err := parseAsset(req.AskAsset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ask asset", err.Error())
		return
	}
	offerAsset, err := parseAsset(req.OfferAsset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid offer asset", err.Error())
		return
	}
	askAmount, err := parseAmount(req.AskAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ask amount", err.Error())
		return
	}
	offerAmount, err := parseAmount(req.OfferAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid offer amount", err.Error())
		return
	}

	o, err := s.ex.MakeOrder(caller, askAsset, askAmount, offerAsset, offerAmount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)

	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := s.authenticate(req.Address, req.Signature,
		AuthMessage("cancel-order", strconv.FormatUint(id, 10)))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed", err.Error())
		return
	}

	if err := s.ex.CancelOrder(caller, id); err != nil {
		s.respondEngineError(w, err)
		return
	}
	o, _ := s.ex.GetOrder(id)
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)

	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := s.authenticate(req.Address, req.Signature,
		AuthMessage("fill-order", strconv.FormatUint(id, 10)))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed", err.Error())
		return
	}

	trade, err := s.ex.FillOrder(caller, id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, TradeInfo{
		OrderID: trade.OrderID, Maker: trade.Maker.Hex(), Taker: trade.Taker.Hex(),
		AskAsset: trade.AskAsset.Hex(), AskAmount: trade.AskAmount.Dec(),
		OfferAsset: trade.OfferAsset.Hex(), OfferAmount: trade.OfferAmount.Dec(),
		Fee: trade.Fee.Dec(), Timestamp: trade.Timestamp,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

// fundsRequest authenticates a base-unit funds request and parses its amount.
func (s *Server) fundsRequest(w http.ResponseWriter, req *FundsRequest, op, amountStr string) (common.Address, *uint256.Int, bool) {
	caller, err := s.authenticate(req.Address, req.Signature, AuthMessage(op, amountStr))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed", err.Error())
		return common.Address{}, nil, false
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return common.Address{}, nil, false
	}
	return caller, amount, true
}

// tokenRequest authenticates a token funds request and parses token + amount.
func (s *Server) tokenRequest(w http.ResponseWriter, req *FundsRequest, op string) (common.Address, common.Address, *uint256.Int, bool) {
	caller, err := s.authenticate(req.Address, req.Signature, AuthMessage(op, req.Token, req.Amount))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication failed", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	if !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid token address", "")
		return common.Address{}, common.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	return caller, common.HexToAddress(req.Token), amount, true
}

func (s *Server) orderInfo(o exchange.Order) OrderInfo {
	status := "open"
	if s.ex.IsFilled(o.ID) {
		status = "filled"
	} else if s.ex.IsCancelled(o.ID) {
		status = "cancelled"
	}
	return OrderInfo{
		ID:          o.ID,
		Owner:       o.Owner.Hex(),
		AskAsset:    o.AskAsset.Hex(),
		AskAmount:   o.AskAmount.Dec(),
		OfferAsset:  o.OfferAsset.Hex(),
		OfferAmount: o.OfferAmount.Dec(),
		CreatedAt:   o.CreatedAt,
		Status:      status,
	}
}

// respondEngineError maps engine error kinds to HTTP statuses.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrOrderTerminal):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInvalidAsset):
		status = http.StatusBadRequest
	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, "operation rejected", err.Error())
}

// parseAsset accepts a hex address or the literal "base" for the native unit.
func parseAsset(s string) (common.Address, error) {
	if s == "base" {
		return exchange.BaseAsset, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount parses a non-empty decimal uint256.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	return uint256.FromDecimal(s)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}
