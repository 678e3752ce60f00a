package x402gate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpay/x402gate/encoding"
	"github.com/eventpay/x402gate/pricing"
	"github.com/eventpay/x402gate/types"
)

const (
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testPayer = "0x857b06519E91e3A54538791bDbb0E22373e36b66"
)

// fakeFacilitator scripts verify/settle outcomes for gate tests.
type fakeFacilitator struct {
	verifyResp  *types.VerifyResponse
	settleResp  *types.SettleResponse
	verifyCalls int
	settleCalls int
}

func (f *fakeFacilitator) Verify(_ context.Context, _ *types.PaymentPayload, _ *types.PaymentRequirements) *types.VerifyResponse {
	f.verifyCalls++
	if f.verifyResp != nil {
		return f.verifyResp
	}
	return &types.VerifyResponse{IsValid: true, Payer: testPayer}
}

func (f *fakeFacilitator) Settle(_ context.Context, p *types.PaymentPayload, _ *types.PaymentRequirements) *types.SettleResponse {
	f.settleCalls++
	if f.settleResp != nil {
		return f.settleResp
	}
	return &types.SettleResponse{
		Success:     true,
		Transaction: "0xdeadbeef",
		Network:     p.Network,
		Payer:       testPayer,
	}
}

func newTestGate(t *testing.T, f Facilitator, opts ...Option) *Gate {
	t.Helper()
	g, err := New(Config{
		PayTo:    testPayTo,
		Networks: []string{"base-sepolia"},
		Price:    "0.05",
	}, append([]Option{WithFacilitator(f)}, opts...)...)
	require.NoError(t, err)
	return g
}

func validHeader(t *testing.T) string {
	t.Helper()
	inner, err := json.Marshal(types.ExactEVMPayload{
		Signature: "0x" + repeatHex(65, "ab"),
		Authorization: types.EVMAuthorization{
			From:        testPayer,
			To:          testPayTo,
			Value:       "50000",
			ValidAfter:  "0",
			ValidBefore: "1893456000",
			Nonce:       "0x" + repeatHex(32, "ab"),
		},
	})
	require.NoError(t, err)
	header, err := encoding.EncodePayment(&types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Network:     "base-sepolia",
		Payload:     inner,
	})
	require.NoError(t, err)
	return header
}

func repeatHex(n int, pair string) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pair
	}
	return out
}

func TestBuildRequirementsConvertsPrice(t *testing.T) {
	g := newTestGate(t, &fakeFacilitator{})

	reqs, err := g.BuildRequirements("GET /reports", &pricing.Quote{Price: "0.05"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	assert.Equal(t, "exact", reqs[0].Scheme)
	assert.Equal(t, "base-sepolia", reqs[0].Network)
	assert.Equal(t, "50000", reqs[0].MaxAmountRequired)
	assert.Equal(t, testPayTo, reqs[0].PayTo)
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", reqs[0].Asset)
	assert.Equal(t, 60, reqs[0].MaxTimeoutSeconds)
}

func TestBuildRequirementsIsDeterministic(t *testing.T) {
	g := newTestGate(t, &fakeFacilitator{})
	quote := &pricing.Quote{Price: "1.25"}

	first, err := g.BuildRequirements("GET /reports", quote)
	require.NoError(t, err)
	second, err := g.BuildRequirements("GET /reports", quote)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildRequirementsQuoteOverrides(t *testing.T) {
	g := newTestGate(t, &fakeFacilitator{})

	reqs, err := g.BuildRequirements("POST /rsvp", &pricing.Quote{
		Price:       "5.00",
		PayTo:       "0x1111111111111111111111111111111111111111",
		Description: "RSVP for launch party",
	})
	require.NoError(t, err)
	assert.Equal(t, "5000000", reqs[0].MaxAmountRequired)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", reqs[0].PayTo)
	assert.Equal(t, "RSVP for launch party", reqs[0].Description)
}

func TestEvaluateNoHeaderIssuesChallenge(t *testing.T) {
	f := &fakeFacilitator{}
	g := newTestGate(t, f)

	outcome := g.Evaluate(context.Background(), "GET /reports", "", "")
	assert.False(t, outcome.Granted)
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, types.ProtocolVersion, outcome.Challenge.X402Version)
	require.Len(t, outcome.Challenge.Accepts, 1)
	assert.Equal(t, "50000", outcome.Challenge.Accepts[0].MaxAmountRequired)
	assert.Zero(t, f.verifyCalls)
}

func TestEvaluateGarbageHeaderIsChallengeNotError(t *testing.T) {
	f := &fakeFacilitator{}
	g := newTestGate(t, f)

	for _, header := range []string{"garbage", "bm90IGpzb24=", "!!!"} {
		outcome := g.Evaluate(context.Background(), "GET /reports", "", header)
		assert.Nil(t, outcome.Err, "header %q must not be a server error", header)
		assert.False(t, outcome.Granted)
		require.NotNil(t, outcome.Challenge)
		assert.NotEmpty(t, outcome.Challenge.Error)
	}
	assert.Zero(t, f.verifyCalls)
	assert.Zero(t, f.settleCalls)
}

func TestEvaluateWrongNetworkRechallenges(t *testing.T) {
	f := &fakeFacilitator{}
	g := newTestGate(t, f)

	inner, _ := json.Marshal(types.ExactSolanaPayload{Transaction: ""})
	header, err := encoding.EncodePayment(&types.PaymentPayload{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Network:     "polygon",
		Payload:     inner,
	})
	require.NoError(t, err)

	outcome := g.Evaluate(context.Background(), "GET /reports", "", header)
	assert.False(t, outcome.Granted)
	assert.Nil(t, outcome.Err)
	require.NotNil(t, outcome.Challenge)
	assert.Zero(t, f.verifyCalls)
}

func TestEvaluateVerifyFailureRechallenges(t *testing.T) {
	f := &fakeFacilitator{
		verifyResp: &types.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"},
	}
	g := newTestGate(t, f)

	outcome := g.Evaluate(context.Background(), "GET /reports", "", validHeader(t))
	assert.False(t, outcome.Granted)
	assert.Nil(t, outcome.Err)
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, "insufficient_funds", outcome.Challenge.Error)
	assert.Equal(t, 1, f.verifyCalls)
	assert.Zero(t, f.settleCalls)
}

func TestEvaluateSettleFailureRechallenges(t *testing.T) {
	f := &fakeFacilitator{
		settleResp: &types.SettleResponse{Success: false, ErrorReason: "authorization_expired"},
	}
	g := newTestGate(t, f)

	outcome := g.Evaluate(context.Background(), "GET /reports", "", validHeader(t))
	assert.False(t, outcome.Granted)
	assert.Nil(t, outcome.Err)
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, 1, f.verifyCalls)
	assert.Equal(t, 1, f.settleCalls)
}

func TestEvaluateHappyPath(t *testing.T) {
	f := &fakeFacilitator{}
	var events []Event
	g := newTestGate(t, f, WithEvents(func(e Event) {
		events = append(events, e)
	}))

	outcome := g.Evaluate(context.Background(), "GET /reports", "", validHeader(t))
	require.Nil(t, outcome.Err)
	assert.True(t, outcome.Granted)
	assert.Equal(t, testPayer, outcome.Payer)
	require.NotNil(t, outcome.Settlement)
	assert.Equal(t, "0xdeadbeef", outcome.Settlement.Transaction)
	assert.NotEmpty(t, outcome.SettlementHeader)

	decoded, err := encoding.DecodeSettlement(outcome.SettlementHeader)
	require.NoError(t, err)
	assert.True(t, decoded.Success)

	require.Len(t, events, 1)
	assert.Equal(t, EventGranted, events[0].Type)
}

func TestEvaluateApprovalDenyBlocksSettlement(t *testing.T) {
	f := &fakeFacilitator{}
	g := newTestGate(t, f, WithApproval(func(_ context.Context, _, _ string, _ *types.PaymentPayload, _ string) error {
		return assert.AnError
	}))

	outcome := g.Evaluate(context.Background(), "GET /reports", "", validHeader(t))
	assert.False(t, outcome.Granted)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, 1, f.verifyCalls)
	assert.Zero(t, f.settleCalls)
}

func TestEvaluateFreeResourcePasses(t *testing.T) {
	f := &fakeFacilitator{}
	g, err := New(Config{
		PayTo:          testPayTo,
		Networks:       []string{"base-sepolia"},
		FacilitatorURL: "http://unused",
	}, WithFacilitator(f), WithResolver(pricing.ResolverFunc(
		func(_ context.Context, resource, _ string) (*pricing.Quote, error) {
			if resource == "GET /paid" {
				return &pricing.Quote{Price: "0.05"}, nil
			}
			return nil, nil
		})))
	require.NoError(t, err)

	outcome := g.Evaluate(context.Background(), "GET /free", "", "")
	assert.True(t, outcome.Granted)
	assert.Nil(t, outcome.Settlement)

	outcome = g.Evaluate(context.Background(), "GET /paid", "", "")
	assert.False(t, outcome.Granted)
}

func TestEvaluateResolverErrorIsServerError(t *testing.T) {
	g := newTestGate(t, &fakeFacilitator{}, WithResolver(pricing.ResolverFunc(
		func(context.Context, string, string) (*pricing.Quote, error) {
			return nil, &types.X402Error{Code: types.ErrServerMisconfigured, Message: "no listing"}
		})))

	outcome := g.Evaluate(context.Background(), "POST /rsvp", "missing-event", "")
	require.Error(t, outcome.Err)
	assert.True(t, types.HasCode(outcome.Err, types.ErrServerMisconfigured))
}

func TestEvaluateEmptyResourceIsServerError(t *testing.T) {
	g := newTestGate(t, &fakeFacilitator{})

	// An empty resource builds requirements with an empty resource
	// field, which struct-tag validation rejects before a challenge
	// can be issued.
	outcome := g.Evaluate(context.Background(), "", "", "")
	require.Error(t, outcome.Err)
	assert.True(t, types.HasCode(outcome.Err, types.ErrServerMisconfigured))
	assert.False(t, outcome.Granted)
	assert.Nil(t, outcome.Challenge)
}

func TestEvaluateScopedPricing(t *testing.T) {
	store := pricing.NewMemoryStore()
	store.Put("POST /rsvp", "event-1", pricing.Listing{Price: "5.00", PayTo: testPayTo, CapacityRemaining: -1})
	store.Put("POST /rsvp", "event-2", pricing.Listing{Price: "12.50", PayTo: testPayer, CapacityRemaining: -1})

	g := newTestGate(t, &fakeFacilitator{}, WithResolver(&pricing.StoreResolver{Store: store}))

	o1 := g.Evaluate(context.Background(), "POST /rsvp", "event-1", "")
	o2 := g.Evaluate(context.Background(), "POST /rsvp", "event-2", "")

	require.NotNil(t, o1.Challenge)
	require.NotNil(t, o2.Challenge)
	assert.Equal(t, "5000000", o1.Challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "12500000", o2.Challenge.Accepts[0].MaxAmountRequired)
	assert.NotEqual(t, o1.Challenge.Accepts[0].PayTo, o2.Challenge.Accepts[0].PayTo)
}

func TestEvaluatePriceChangeVisibleNextRequest(t *testing.T) {
	store := pricing.NewMemoryStore()
	store.Put("GET /reports", "", pricing.Listing{Price: "0.05", PayTo: testPayTo, CapacityRemaining: -1})
	g := newTestGate(t, &fakeFacilitator{}, WithResolver(&pricing.StoreResolver{Store: store}))

	first := g.Evaluate(context.Background(), "GET /reports", "", "")
	require.NotNil(t, first.Challenge)
	assert.Equal(t, "50000", first.Challenge.Accepts[0].MaxAmountRequired)

	store.Put("GET /reports", "", pricing.Listing{Price: "0.10", PayTo: testPayTo, CapacityRemaining: -1})

	second := g.Evaluate(context.Background(), "GET /reports", "", "")
	require.NotNil(t, second.Challenge)
	assert.Equal(t, "100000", second.Challenge.Accepts[0].MaxAmountRequired)
}

func TestEvaluateVerifyFailureReportsPayer(t *testing.T) {
	f := &fakeFacilitator{
		verifyResp: &types.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"},
	}
	g := newTestGate(t, f)

	outcome := g.Evaluate(context.Background(), "GET /reports", "", validHeader(t))
	require.NotNil(t, outcome.Challenge)
	assert.Equal(t, testPayer, outcome.Challenge.Payer)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Networks: []string{"base-sepolia"}, FacilitatorURL: "http://x"})
	assert.True(t, types.HasCode(err, types.ErrServerMisconfigured))

	_, err = New(Config{Price: "0.05", FacilitatorURL: "http://x"})
	assert.True(t, types.HasCode(err, types.ErrServerMisconfigured))

	_, err = New(Config{Price: "0.05", Networks: []string{"near"}, FacilitatorURL: "http://x"})
	assert.True(t, types.HasCode(err, types.ErrUnsupportedNetwork))

	_, err = New(Config{Price: "0.05", Networks: []string{"base-sepolia"}})
	assert.True(t, types.HasCode(err, types.ErrServerMisconfigured))
}
