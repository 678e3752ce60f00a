package mcp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/eventpay/x402gate"
)

// MetaPayment is the _meta key clients put their payment under.
const MetaPayment = "x402/payment"

// MetaPaymentResponse is the _meta key settlement receipts are
// injected under.
const MetaPaymentResponse = "x402/payment-response"

// Handler intercepts tools/call requests for gated tools. Everything
// else passes through to the wrapped MCP handler untouched.
type Handler struct {
	inner http.Handler
	gate  *x402gate.Gate
	tools map[string]ToolConfig
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.inner.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, -32700, "Parse error", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var req jsonrpcRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Method != "tools/call" {
		h.inner.ServeHTTP(w, r)
		return
	}

	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, req.ID, -32602, "Invalid params", nil)
		return
	}
	toolName, _ := params["name"].(string)
	cfg, gated := h.tools[toolName]
	if !gated {
		h.inner.ServeHTTP(w, r)
		return
	}

	resource := "TOOL " + toolName
	scope := scopeFromArguments(params, cfg.ScopeArg)
	header := paymentHeaderFromMeta(params)

	outcome := h.gate.Evaluate(r.Context(), resource, scope, header)
	switch {
	case outcome.Err != nil:
		writeError(w, req.ID, -32603, fmt.Sprintf("server_misconfigured: %v", outcome.Err), nil)
	case !outcome.Granted:
		writeError(w, req.ID, 402, "Payment required", outcome.Challenge)
	default:
		h.forward(w, r, body, outcome)
	}
}

// forward runs the tool and injects the settlement receipt into the
// result's _meta. The payment has already settled; a tool failure
// still reports the receipt so the client can reconcile.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, body []byte, outcome *x402gate.Outcome) {
	recorder := &responseRecorder{
		headerMap:  make(http.Header),
		statusCode: http.StatusOK,
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	h.inner.ServeHTTP(recorder, r)

	if outcome.Settlement == nil {
		// Free tool call, nothing to inject.
		replay(w, recorder, recorder.body.Bytes())
		return
	}

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   json.RawMessage `json:"error,omitempty"`
		ID      any             `json:"id"`
	}
	if err := json.Unmarshal(recorder.body.Bytes(), &resp); err != nil || resp.Result == nil {
		replay(w, recorder, recorder.body.Bytes())
		return
	}

	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		replay(w, recorder, recorder.body.Bytes())
		return
	}
	meta, ok := result["_meta"].(map[string]any)
	if !ok {
		meta = make(map[string]any)
	}
	meta[MetaPaymentResponse] = outcome.Settlement
	result["_meta"] = meta

	modified, err := json.Marshal(result)
	if err != nil {
		replay(w, recorder, recorder.body.Bytes())
		return
	}
	resp.Result = modified

	out, err := json.Marshal(resp)
	if err != nil {
		replay(w, recorder, recorder.body.Bytes())
		return
	}
	replay(w, recorder, out)
}

func replay(w http.ResponseWriter, recorder *responseRecorder, body []byte) {
	for k, v := range recorder.headerMap {
		w.Header()[k] = v
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(recorder.statusCode)
	_, _ = w.Write(body)
}

// paymentHeaderFromMeta re-encodes the _meta payment object into the
// wire header form the gate consumes. A missing or unreadable payment
// yields an empty header and therefore a challenge.
func paymentHeaderFromMeta(params map[string]any) string {
	meta, ok := params["_meta"].(map[string]any)
	if !ok {
		return ""
	}
	payment, ok := meta[MetaPayment]
	if !ok {
		return ""
	}
	raw, err := json.Marshal(payment)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func scopeFromArguments(params map[string]any, scopeArg string) string {
	if scopeArg == "" {
		return ""
	}
	args, ok := params["arguments"].(map[string]any)
	if !ok {
		return ""
	}
	scope, _ := args[scopeArg].(string)
	return scope
}

func writeError(w http.ResponseWriter, id any, code int, message string, data any) {
	errObj := map[string]any{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   errObj,
	})
}

type responseRecorder struct {
	headerMap  http.Header
	body       bytes.Buffer
	statusCode int
}

func (r *responseRecorder) Header() http.Header {
	return r.headerMap
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}
