package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ngndex/native/amm"
)

func parseAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

// parseAmount accepts a decimal string in wei. Empty strings return nil so
// optional minimums default open.
func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errExpectedPayload
	}
	return json.Unmarshal(req.Params[0], out)
}

var errExpectedPayload = jsonError("expected a single params object")

type jsonError string

func (e jsonError) Error() string { return string(e) }

func (s *Server) handleCreatePair(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Caller     string `json:"caller"`
		StockToken string `json:"stockToken"`
		InitialNGN string `json:"initialNGN"`
		InitialStk string `json:"initialStock"`
		FeeRateBps uint64 `json:"feeRateBps"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, ok := parseAddress(payload.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", nil)
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	initialNGN, ok := parseAmount(payload.InitialNGN)
	if !ok || initialNGN == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid initialNGN", nil)
		return
	}
	initialStock, ok := parseAmount(payload.InitialStk)
	if !ok || initialStock == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid initialStock", nil)
		return
	}
	pairID, err := s.engine.CreatePair(caller, stock, initialNGN, initialStock, payload.FeeRateBps)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"pairId": pairID})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Caller      string `json:"caller"`
		StockToken  string `json:"stockToken"`
		NGNAmount   string `json:"ngnAmount"`
		StockAmount string `json:"stockAmount"`
		MinShares   string `json:"minShares"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, ok := parseAddress(payload.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", nil)
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	ngnAmount, ok := parseAmount(payload.NGNAmount)
	if !ok || ngnAmount == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ngnAmount", nil)
		return
	}
	stockAmount, ok := parseAmount(payload.StockAmount)
	if !ok || stockAmount == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stockAmount", nil)
		return
	}
	minShares, ok := parseAmount(payload.MinShares)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minShares", nil)
		return
	}
	shares, err := s.engine.AddLiquidity(caller, stock, ngnAmount, stockAmount, minShares)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"sharesMinted": shares.String()})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Caller      string `json:"caller"`
		StockToken  string `json:"stockToken"`
		Shares      string `json:"shares"`
		MinNGNOut   string `json:"minNGNOut"`
		MinStockOut string `json:"minStockOut"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, ok := parseAddress(payload.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", nil)
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	shares, ok := parseAmount(payload.Shares)
	if !ok || shares == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid shares", nil)
		return
	}
	minNGNOut, ok := parseAmount(payload.MinNGNOut)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minNGNOut", nil)
		return
	}
	minStockOut, ok := parseAmount(payload.MinStockOut)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minStockOut", nil)
		return
	}
	ngnOut, stockOut, err := s.engine.RemoveLiquidity(caller, stock, shares, minNGNOut, minStockOut)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"ngnOut":   ngnOut.String(),
		"stockOut": stockOut.String(),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest, direction amm.Direction) {
	var payload struct {
		StockToken string `json:"stockToken"`
		AmountIn   string `json:"amountIn"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	amountIn, ok := parseAmount(payload.AmountIn)
	if !ok || amountIn == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountIn", nil)
		return
	}
	var quote *amm.Quote
	var err error
	if direction == amm.DirectionNGNToStock {
		quote, err = s.engine.QuoteNGNToStock(stock, amountIn)
	} else {
		quote, err = s.engine.QuoteStockToNGN(stock, amountIn)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"amountOut":      quote.AmountOut.String(),
		"fee":            quote.Fee.String(),
		"priceImpactBps": quote.PriceImpactBps,
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request, req *RPCRequest, direction amm.Direction) {
	var payload struct {
		Caller       string `json:"caller"`
		StockToken   string `json:"stockToken"`
		AmountIn     string `json:"amountIn"`
		MinAmountOut string `json:"minAmountOut"`
		Deadline     int64  `json:"deadline"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, ok := parseAddress(payload.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", nil)
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	amountIn, ok := parseAmount(payload.AmountIn)
	if !ok || amountIn == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountIn", nil)
		return
	}
	minAmountOut, ok := parseAmount(payload.MinAmountOut)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minAmountOut", nil)
		return
	}
	amountOut, err := s.engine.Swap(r.Context(), caller, stock, direction, amountIn, minAmountOut, payload.Deadline)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"amountOut": amountOut.String()})
}

func (s *Server) handleGetCurrentPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stock, rpcErr := stockTokenParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	price, err := s.engine.CurrentPrice(stock)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"price": price.String()})
}

func (s *Server) handleGetTradingPair(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stock, rpcErr := stockTokenParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	pair, err := s.engine.Pair(stock)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPair(pair))
}

func (s *Server) handleGetAllStockTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	tokens := s.engine.AllStockTokens()
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, token.Hex())
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"pairCount":      stats.PairCount,
		"totalVolumeNGN": stats.TotalVolumeNGN.String(),
		"feesCollected":  stats.TotalFeesNGN.String(),
		"totalLiquidity": stats.TotalLiquidity.String(),
	})
}

func (s *Server) handleGetPriceHistory(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stock, rpcErr := stockTokenParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	points, err := s.engine.PriceHistory(stock)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(points))
	for _, point := range points {
		out = append(out, map[string]interface{}{
			"price":     point.Price.String(),
			"timestamp": point.Timestamp,
		})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleExportPriceHistory(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		StockToken string `json:"stockToken"`
		StartTs    int64  `json:"startTs"`
		EndTs      int64  `json:"endTs"`
	}
	if err := singleParam(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	stock, ok := parseAddress(payload.StockToken)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid stock token address", nil)
		return
	}
	csvBase64, rows, err := s.engine.ExportPriceHistoryCSV(stock, payload.StartTs, payload.EndTs)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"csvBase64": csvBase64,
		"rows":      rows,
	})
}

func stockTokenParam(req *RPCRequest) (stock common.Address, rpcErr *RPCError) {
	if len(req.Params) != 1 {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: "expected stockToken"}
	}
	var raw string
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		var wrapper struct {
			StockToken string `json:"stockToken"`
		}
		if err := json.Unmarshal(req.Params[0], &wrapper); err != nil {
			return common.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid stockToken"}
		}
		raw = wrapper.StockToken
	}
	parsed, ok := parseAddress(raw)
	if !ok {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid stockToken"}
	}
	return parsed, nil
}

func formatPair(pair *amm.TradingPair) map[string]interface{} {
	return map[string]interface{}{
		"pairId":              pair.PairID,
		"stockToken":          pair.StockToken.Hex(),
		"ngnReserve":          pair.NGNReserve.String(),
		"stockReserve":        pair.StockReserve.String(),
		"totalLiquidity":      pair.TotalLiquidity.String(),
		"feeRateBps":          pair.FeeRateBps,
		"priceImpactLimitBps": pair.PriceImpactLimitBps,
		"isActive":            pair.Active,
		"createdAt":           pair.CreatedAt,
		"lastUpdateTime":      pair.LastUpdateTime,
	}
}
