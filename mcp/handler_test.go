package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpay/x402gate"
	"github.com/eventpay/x402gate/pricing"
	"github.com/eventpay/x402gate/types"
)

type grantAll struct {
	settleCalls int
}

func (g *grantAll) Verify(context.Context, *types.PaymentPayload, *types.PaymentRequirements) *types.VerifyResponse {
	return &types.VerifyResponse{IsValid: true, Payer: "0x857b06519E91e3A54538791bDbb0E22373e36b66"}
}

func (g *grantAll) Settle(_ context.Context, p *types.PaymentPayload, _ *types.PaymentRequirements) *types.SettleResponse {
	g.settleCalls++
	return &types.SettleResponse{Success: true, Transaction: "0xdeadbeef", Network: p.Network}
}

// echoTool answers every request with a fixed tools/call result.
type echoTool struct {
	calls int
}

func (e *echoTool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.calls++
	var req jsonrpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result": map[string]any{
			"content": []map[string]any{{"type": "text", "text": "rsvp confirmed"}},
		},
	})
}

func newTestHandler(t *testing.T, f x402gate.Facilitator, inner http.Handler) *Handler {
	t.Helper()

	store := pricing.NewMemoryStore()
	store.Put("TOOL rsvp", "event-1", pricing.Listing{
		Price:             "5.00",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		CapacityRemaining: -1,
	})

	gate, err := x402gate.New(x402gate.Config{
		PayTo:    "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Networks: []string{"base-sepolia"},
	}, x402gate.WithFacilitator(f), x402gate.WithResolver(&pricing.StoreResolver{Store: store}))
	require.NoError(t, err)

	return &Handler{
		inner: inner,
		gate:  gate,
		tools: map[string]ToolConfig{"rsvp": {ScopeArg: "eventId"}},
	}
}

func callBody(t *testing.T, tool string, args map[string]any, meta map[string]any) []byte {
	t.Helper()
	params := map[string]any{"name": tool, "arguments": args}
	if meta != nil {
		params["_meta"] = meta
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  params,
	})
	require.NoError(t, err)
	return body
}

func paymentMeta(t *testing.T) map[string]any {
	t.Helper()
	sig := "0x"
	for i := 0; i < 65; i++ {
		sig += "ab"
	}
	nonce := "0x"
	for i := 0; i < 32; i++ {
		nonce += "cd"
	}
	return map[string]any{
		MetaPayment: types.PaymentPayload{
			X402Version: types.ProtocolVersion,
			Scheme:      types.SchemeExact,
			Network:     "base-sepolia",
			Payload: mustRaw(t, types.ExactEVMPayload{
				Signature: sig,
				Authorization: types.EVMAuthorization{
					From:        "0x857b06519E91e3A54538791bDbb0E22373e36b66",
					To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
					Value:       "5000000",
					ValidAfter:  "0",
					ValidBefore: "1893456000",
					Nonce:       nonce,
				},
			}),
		},
	}
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func do(h http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUnpaidToolCallGets402Error(t *testing.T) {
	inner := &echoTool{}
	h := newTestHandler(t, &grantAll{}, inner)

	rec := do(h, callBody(t, "rsvp", map[string]any{"eventId": "event-1"}, nil))

	var resp struct {
		Error struct {
			Code int `json:"code"`
			Data struct {
				X402Version int                         `json:"x402Version"`
				Accepts     []types.PaymentRequirements `json:"accepts"`
			} `json:"data"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 402, resp.Error.Code)
	require.Len(t, resp.Error.Data.Accepts, 1)
	assert.Equal(t, "5000000", resp.Error.Data.Accepts[0].MaxAmountRequired)
	assert.Zero(t, inner.calls, "tool must not run unpaid")
}

func TestPaidToolCallRunsAndCarriesReceipt(t *testing.T) {
	inner := &echoTool{}
	f := &grantAll{}
	h := newTestHandler(t, f, inner)

	rec := do(h, callBody(t, "rsvp", map[string]any{"eventId": "event-1"}, paymentMeta(t)))

	require.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, f.settleCalls)

	var resp struct {
		Result struct {
			Meta map[string]any `json:"_meta"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	receipt, ok := resp.Result.Meta[MetaPaymentResponse].(map[string]any)
	require.True(t, ok, "result must carry a settlement receipt")
	assert.Equal(t, true, receipt["success"])
	assert.Equal(t, "0xdeadbeef", receipt["transaction"])
}

func TestUnknownEventIsServerError(t *testing.T) {
	inner := &echoTool{}
	h := newTestHandler(t, &grantAll{}, inner)

	rec := do(h, callBody(t, "rsvp", map[string]any{"eventId": "no-such-event"}, nil))

	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, -32603, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "server_misconfigured")
	assert.Zero(t, inner.calls)
}

func TestFreeToolPassesThrough(t *testing.T) {
	inner := &echoTool{}
	h := newTestHandler(t, &grantAll{}, inner)

	rec := do(h, callBody(t, "list_events", nil, nil))

	assert.Equal(t, 1, inner.calls)
	assert.Contains(t, rec.Body.String(), "rsvp confirmed")
}

func TestNonToolCallPassesThrough(t *testing.T) {
	inner := &echoTool{}
	h := newTestHandler(t, &grantAll{}, inner)

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	require.NoError(t, err)
	do(h, body)

	assert.Equal(t, 1, inner.calls)
}
