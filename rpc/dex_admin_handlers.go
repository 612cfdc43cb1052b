package rpc

import (
	"net/http"
)

// handleAdmin dispatches the bearer-gated pair management methods. The caller
// address inside the payload must additionally hold the engine's admin
// capability; the bearer token only opens the transport.
func (s *Server) handleAdmin(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		Caller     string `json:"caller"`
		StockToken string `json:"stockToken"`
		FeeRateBps uint64 `json:"feeRateBps"`
		LimitBps   uint64 `json:"priceImpactLimitBps"`
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

	var err error
	switch req.Method {
	case "dex_pausePair":
		err = s.engine.SetPairPaused(caller, stock, true)
	case "dex_resumePair":
		err = s.engine.SetPairPaused(caller, stock, false)
	case "dex_setFeeRate":
		err = s.engine.SetFeeRate(caller, stock, payload.FeeRateBps)
	case "dex_setPriceImpactLimit":
		err = s.engine.SetPriceImpactLimit(caller, stock, payload.LimitBps)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"ok": true})
}
