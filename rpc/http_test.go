package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ngndex/native/amm"
	"ngndex/token"
)

const (
	rpcNGN      = "0x00000000000000000000000000000000000000A1"
	rpcStock    = "0x00000000000000000000000000000000000000B1"
	rpcTreasury = "0x00000000000000000000000000000000000000C1"
	rpcAlice    = "0x00000000000000000000000000000000000000D1"
	rpcBob      = "0x00000000000000000000000000000000000000D2"
	rpcAdmin    = "0x00000000000000000000000000000000000000E1"

	testAuthToken = "test-admin-token"
)

func scaled(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func newTestServer(t *testing.T) (*Server, *amm.Engine) {
	t.Helper()
	bank := token.NewBank()
	treasury := common.HexToAddress(rpcTreasury)
	for _, account := range []string{rpcAlice, rpcBob} {
		addr := common.HexToAddress(account)
		for _, asset := range []string{rpcNGN, rpcStock} {
			assetAddr := common.HexToAddress(asset)
			if err := bank.Mint(assetAddr, addr, scaled(1_000_000)); err != nil {
				t.Fatalf("mint: %v", err)
			}
			if err := bank.Approve(assetAddr, addr, treasury, scaled(1_000_000)); err != nil {
				t.Fatalf("approve: %v", err)
			}
		}
	}
	engine := amm.NewEngine(common.HexToAddress(rpcNGN), treasury, bank)
	engine.SetAdmin(common.HexToAddress(rpcAdmin), true)
	return NewServer(engine, testAuthToken, RateLimit{RequestsPerSecond: 100, Burst: 100}), engine
}

func createTestPair(t *testing.T, engine *amm.Engine) {
	t.Helper()
	if _, err := engine.CreatePair(common.HexToAddress(rpcAlice), common.HexToAddress(rpcStock), scaled(100_000), scaled(1000), 30); err != nil {
		t.Fatalf("create pair: %v", err)
	}
}

func call(t *testing.T, server *Server, body string, headers map[string]string) (*httptest.ResponseRecorder, *RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	resp := &RPCResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return recorder, resp
}

func rpcBody(method string, params interface{}) string {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func resultMap(t *testing.T, resp *RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	return result
}

func TestCreatePairRPC(t *testing.T) {
	server, _ := newTestServer(t)
	recorder, resp := call(t, server, rpcBody("dex_createPair", map[string]interface{}{
		"caller":       rpcAlice,
		"stockToken":   rpcStock,
		"initialNGN":   scaled(100_000).String(),
		"initialStock": scaled(1000).String(),
		"feeRateBps":   30,
	}), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d: %s", recorder.Code, recorder.Body.String())
	}
	result := resultMap(t, resp)
	if result["pairId"] == "" {
		t.Fatal("expected a pair id")
	}

	recorder, resp = call(t, server, rpcBody("dex_createPair", map[string]interface{}{
		"caller":       rpcAlice,
		"stockToken":   rpcStock,
		"initialNGN":   "1",
		"initialStock": "1",
		"feeRateBps":   30,
	}), nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate pair, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeDuplicatePair {
		t.Fatalf("expected duplicate-pair code, got %+v", resp.Error)
	}
}

func TestQuoteRPC(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)

	_, resp := call(t, server, rpcBody("dex_quoteNGNToStock", map[string]interface{}{
		"stockToken": rpcStock,
		"amountIn":   scaled(1000).String(),
	}), nil)
	result := resultMap(t, resp)
	if result["amountOut"] != "9871580343970612988" {
		t.Fatalf("amountOut %v", result["amountOut"])
	}
	if result["fee"] != scaled(3).String() {
		t.Fatalf("fee %v", result["fee"])
	}
	if result["priceImpactBps"] != float64(98) {
		t.Fatalf("priceImpactBps %v", result["priceImpactBps"])
	}
}

func TestSwapRPC(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)
	deadline := time.Now().Add(time.Minute).Unix()

	_, resp := call(t, server, rpcBody("dex_swapNGNForStock", map[string]interface{}{
		"caller":     rpcBob,
		"stockToken": rpcStock,
		"amountIn":   scaled(1000).String(),
		"deadline":   deadline,
	}), nil)
	result := resultMap(t, resp)
	if result["amountOut"] != "9871580343970612988" {
		t.Fatalf("amountOut %v", result["amountOut"])
	}
}

func TestSwapRPCExpired(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)

	recorder, resp := call(t, server, rpcBody("dex_swapNGNForStock", map[string]interface{}{
		"caller":     rpcBob,
		"stockToken": rpcStock,
		"amountIn":   scaled(1000).String(),
		"deadline":   time.Now().Add(-time.Minute).Unix(),
	}), nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params code, got %+v", resp.Error)
	}
}

func TestLiquidityRPC(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)

	_, resp := call(t, server, rpcBody("dex_addLiquidity", map[string]interface{}{
		"caller":      rpcBob,
		"stockToken":  rpcStock,
		"ngnAmount":   scaled(10_000).String(),
		"stockAmount": scaled(100).String(),
	}), nil)
	result := resultMap(t, resp)
	if result["sharesMinted"] != scaled(1000).String() {
		t.Fatalf("sharesMinted %v", result["sharesMinted"])
	}

	_, resp = call(t, server, rpcBody("dex_removeLiquidity", map[string]interface{}{
		"caller":     rpcBob,
		"stockToken": rpcStock,
		"shares":     scaled(1000).String(),
	}), nil)
	result = resultMap(t, resp)
	if result["ngnOut"] != scaled(10_000).String() || result["stockOut"] != scaled(100).String() {
		t.Fatalf("round trip returned %v / %v", result["ngnOut"], result["stockOut"])
	}
}

func TestReadMethodsRPC(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)
	deadline := time.Now().Add(time.Minute).Unix()
	call(t, server, rpcBody("dex_swapNGNForStock", map[string]interface{}{
		"caller":     rpcBob,
		"stockToken": rpcStock,
		"amountIn":   scaled(1000).String(),
		"deadline":   deadline,
	}), nil)

	_, resp := call(t, server, rpcBody("dex_getTradingPair", rpcStock), nil)
	pair := resultMap(t, resp)
	if pair["stockToken"] != common.HexToAddress(rpcStock).Hex() {
		t.Fatalf("stockToken %v", pair["stockToken"])
	}
	if pair["isActive"] != true {
		t.Fatal("pair must report active")
	}

	_, resp = call(t, server, rpcBody("dex_getCurrentPrice", rpcStock), nil)
	price := resultMap(t, resp)
	if price["price"] == "" {
		t.Fatal("expected a price")
	}

	_, resp = call(t, server, rpcBody("dex_getAllStockTokens", nil), nil)
	tokens, ok := resp.Result.([]interface{})
	if !ok || len(tokens) != 1 {
		t.Fatalf("expected one stock token, got %v", resp.Result)
	}

	_, resp = call(t, server, rpcBody("dex_getStats", nil), nil)
	stats := resultMap(t, resp)
	if stats["pairCount"] != float64(1) {
		t.Fatalf("pairCount %v", stats["pairCount"])
	}
	if stats["totalVolumeNGN"] != scaled(1000).String() {
		t.Fatalf("totalVolumeNGN %v", stats["totalVolumeNGN"])
	}

	_, resp = call(t, server, rpcBody("dex_getPriceHistory", rpcStock), nil)
	history, ok := resp.Result.([]interface{})
	if !ok || len(history) != 1 {
		t.Fatalf("expected one price point, got %v", resp.Result)
	}

	_, resp = call(t, server, rpcBody("dex_exportPriceHistory", map[string]interface{}{
		"stockToken": rpcStock,
	}), nil)
	export := resultMap(t, resp)
	if export["rows"] != float64(1) {
		t.Fatalf("rows %v", export["rows"])
	}
	if export["csvBase64"] == "" {
		t.Fatal("expected CSV payload")
	}
}

func TestUnknownPairMapsToNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	recorder, resp := call(t, server, rpcBody("dex_getTradingPair", rpcStock), nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	recorder, resp := call(t, server, rpcBody("dex_unknown", nil), nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, resp := call(t, server, "{not json", nil)
	if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %d %+v", recorder.Code, resp.Error)
	}

	recorder, resp = call(t, server, `{"jsonrpc":"1.0","method":"dex_getStats","id":1}`, nil)
	if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected version rejection, got %d %+v", recorder.Code, resp.Error)
	}

	recorder, resp = call(t, server, `{"jsonrpc":"2.0","id":1}`, nil)
	if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected missing-method rejection, got %d %+v", recorder.Code, resp.Error)
	}
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)
	body := rpcBody("dex_pausePair", map[string]interface{}{
		"caller":     rpcAdmin,
		"stockToken": rpcStock,
	})

	recorder, resp := call(t, server, body, nil)
	if recorder.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected 401 without token, got %d %+v", recorder.Code, resp.Error)
	}

	recorder, resp = call(t, server, body, map[string]string{"Authorization": "Bearer wrong"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", recorder.Code)
	}

	_, resp = call(t, server, body, map[string]string{"Authorization": "Bearer " + testAuthToken})
	result := resultMap(t, resp)
	if result["ok"] != true {
		t.Fatalf("pause result %v", result)
	}
	pair, err := engine.Pair(common.HexToAddress(rpcStock))
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if pair.Active {
		t.Fatal("pair must be paused")
	}
}

func TestAdminMethodsRequireEngineCapability(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)

	// Valid bearer token, but the payload caller lacks the admin capability.
	recorder, resp := call(t, server, rpcBody("dex_pausePair", map[string]interface{}{
		"caller":     rpcBob,
		"stockToken": rpcStock,
	}), map[string]string{"Authorization": "Bearer " + testAuthToken})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestAdminSetFeeRateRPC(t *testing.T) {
	server, engine := newTestServer(t)
	createTestPair(t, engine)

	_, resp := call(t, server, rpcBody("dex_setFeeRate", map[string]interface{}{
		"caller":     rpcAdmin,
		"stockToken": rpcStock,
		"feeRateBps": 50,
	}), map[string]string{"Authorization": "Bearer " + testAuthToken})
	result := resultMap(t, resp)
	if result["ok"] != true {
		t.Fatalf("result %v", result)
	}
	pair, _ := engine.Pair(common.HexToAddress(rpcStock))
	if pair.FeeRateBps != 50 {
		t.Fatalf("fee rate %d", pair.FeeRateBps)
	}
}

func TestMutationRateLimit(t *testing.T) {
	server, engine := newTestServer(t)
	server.limit = RateLimit{RequestsPerSecond: 0.001, Burst: 1}
	createTestPair(t, engine)
	deadline := time.Now().Add(time.Minute).Unix()
	swap := func() (*httptest.ResponseRecorder, *RPCResponse) {
		return call(t, server, rpcBody("dex_swapNGNForStock", map[string]interface{}{
			"caller":     rpcBob,
			"stockToken": rpcStock,
			"amountIn":   scaled(1).String(),
			"deadline":   deadline,
		}), nil)
	}

	if recorder, resp := swap(); recorder.Code != http.StatusOK {
		t.Fatalf("first swap rejected: %d %+v", recorder.Code, resp.Error)
	}
	recorder, resp := swap()
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("unexpected error %+v", resp.Error)
	}

	// Reads stay available while mutations are throttled.
	if recorder, _ := call(t, server, rpcBody("dex_getStats", nil), nil); recorder.Code != http.StatusOK {
		t.Fatalf("read throttled: %d", recorder.Code)
	}
}

func TestLimiterTableStaysBounded(t *testing.T) {
	server, _ := newTestServer(t)
	current := time.Unix(1_700_000_000, 0).UTC()
	server.now = func() time.Time { return current }
	requestFrom := func(host string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = host + ":51000"
		return req
	}

	// Far more distinct sources than the table admits.
	for i := 0; i < 3*limiterMaxSources; i++ {
		server.allowMutation(requestFrom(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
	if got := len(server.limiters); got > limiterMaxSources {
		t.Fatalf("limiter table grew to %d entries, cap is %d", got, limiterMaxSources)
	}

	// Once the active sources go idle the next newcomer sweeps them all.
	current = current.Add(limiterIdleAfter + time.Minute)
	server.allowMutation(requestFrom("192.168.0.1"))
	if got := len(server.limiters); got != 1 {
		t.Fatalf("expected idle sources swept down to 1 entry, got %d", got)
	}
	if _, ok := server.limiters["192.168.0.1"]; !ok {
		t.Fatal("newest source must survive the sweep")
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz status %d", recorder.Code)
	}
	if recorder.Body.String() != "ok" {
		t.Fatalf("healthz body %q", recorder.Body.String())
	}
}
