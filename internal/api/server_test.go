package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/require"

	"aegis-core/internal/auth"
	"aegis-core/internal/compliance"
	"aegis-core/internal/dispatch"
	apperrors "aegis-core/internal/errors"
	"aegis-core/internal/ratelimit"
	"aegis-core/internal/web3"
	"aegis-core/internal/web3/contracts"
)

const testSecret = "test-secret"

var (
	walletAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	targetAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	identityAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	txHash       = common.HexToHash("0xabc123")
)

type fakeSession struct {
	mu       sync.Mutex
	calls    []web3.Call
	balances int
	err      error
}

func (f *fakeSession) SubmitAndConfirm(_ context.Context, call web3.Call) (web3.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return web3.Outcome{Hash: txHash, Status: web3.StatusReverted}, f.err
	}
	return web3.Outcome{Hash: txHash, Status: web3.StatusConfirmed}, nil
}

func (f *fakeSession) Balance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances++
	return big.NewInt(42), nil
}

func (f *fakeSession) Address() common.Address { return common.HexToAddress("0x9999") }
func (f *fakeSession) ChainID() *big.Int        { return big.NewInt(1337) }
func (f *fakeSession) Close()                   {}

type countingEntities struct {
	*compliance.MemoryStore
	writes int
}

func (c *countingEntities) CreateEntity(ctx context.Context, e *compliance.Entity) error {
	c.writes++
	return c.MemoryStore.CreateEntity(ctx, e)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type harness struct {
	handler  http.Handler
	session  *fakeSession
	entities *countingEntities
	users    *auth.MemoryStore
	token    string
}

func newHarness(t *testing.T, opts Options, health HealthChecker) *harness {
	t.Helper()
	users := auth.NewMemoryStore()
	issuer, err := auth.NewIssuer(auth.Config{Secret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	authSvc, err := auth.NewService(users, issuer)
	require.NoError(t, err)
	_, err = authSvc.Register(context.Background(), "alice", "correct")
	require.NoError(t, err)
	token, err := authSvc.Login(context.Background(), "alice", "correct")
	require.NoError(t, err)

	session := &fakeSession{}
	d, err := dispatch.New(session, identityAddr)
	require.NoError(t, err)

	entities := &countingEntities{MemoryStore: compliance.NewMemoryStore()}
	complianceSvc, err := compliance.NewService(entities)
	require.NoError(t, err)

	srv, err := NewServer(opts, authSvc, d, complianceSvc, health)
	require.NoError(t, err)
	return &harness{handler: srv.Handler(), session: session, entities: entities, users: users, token: token.AccessToken}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func signedToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.SubjectKey, "alice"))
	require.NoError(t, tok.Set("role", auth.RoleAdmin))
	require.NoError(t, tok.Set(jwt.ExpirationKey, expiresAt))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func TestProtectedRoutesRejectBadCredentialsWithoutSideEffects(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	routes := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/agent/pay", map[string]string{"walletAddress": walletAddr.Hex(), "targetAddress": targetAddr.Hex(), "amount": "1"}},
		{http.MethodGet, "/api/finance/balance/" + walletAddr.Hex(), nil},
		{http.MethodPost, "/api/finance/fund", map[string]string{"walletAddress": walletAddr.Hex(), "amountEth": "1"}},
		{http.MethodPost, "/api/governance/limit", map[string]string{"rulesContract": walletAddr.Hex(), "agentAddress": targetAddr.Hex(), "limitEth": "1"}},
		{http.MethodPost, "/api/compliance/register", map[string]any{"hashId": "0xabc", "jurisdiction": "DE", "kycLevel": 2}},
		{http.MethodPost, "/api/compliance/mint", map[string]string{"walletAddress": walletAddr.Hex(), "uri": "ipfs://x"}},
		{http.MethodGet, "/api/compliance/entities", nil},
	}
	tokens := map[string]string{
		"missing":  "",
		"garbage":  "not-a-jwt",
		"foreign":  signedToken(t, "other-secret", time.Now().Add(time.Hour)),
		"expired":  signedToken(t, testSecret, time.Now().Add(-time.Minute)),
	}

	for _, route := range routes {
		for name, token := range tokens {
			rec := h.do(t, route.method, route.path, token, route.body)
			require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with %s token", route.method, route.path, name)
			code, _ := errorCode(t, rec)
			require.Equal(t, "UNAUTHORIZED", code)
		}
	}
	require.Empty(t, h.session.calls)
	require.Zero(t, h.session.balances)
	require.Zero(t, h.entities.writes)
}

func TestLoginWithCorrectAndWrongPassword(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Username: "alice", Password: "correct"})
	require.Equal(t, http.StatusOK, rec.Code)
	var token auth.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	require.NotEmpty(t, token.AccessToken)

	before, err := h.users.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Username: "alice", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	code, msg := errorCode(t, rec)
	require.Equal(t, "UNAUTHORIZED", code)
	require.Equal(t, "Invalid credentials", msg)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Username: "mallory", Password: "correct"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	_, msg = errorCode(t, rec)
	require.Equal(t, "Invalid credentials", msg)

	after, err := h.users.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRegisterCreatesAdminAndRejectsDuplicates(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Username: "bob", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "bob", created.Username)
	require.Equal(t, auth.RoleAdmin, created.Role)

	rec = h.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Username: "bob", Password: "pw"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Username: "carol"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayNativeRelaysThroughWallet(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/agent/pay", h.token, payRequest{
		WalletAddress: walletAddr.Hex(),
		TargetAddress: targetAddr.Hex(),
		Amount:        "1.5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp txResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, txHash.Hex(), resp.TxHash)
	require.Equal(t, StatusTransactionSent, resp.Status)

	require.Len(t, h.session.calls, 1)
	call := h.session.calls[0]
	require.Equal(t, walletAddr, call.To)
	require.True(t, call.Value == nil || call.Value.Sign() == 0)
	method, args, err := contracts.Decode(contracts.WalletABI, call.Data)
	require.NoError(t, err)
	require.Equal(t, contracts.MethodExecute, method.Name)
	require.Equal(t, targetAddr, args[0])
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.Zero(t, want.Cmp(args[1].(*big.Int)))
}

func TestPayTokenUsesRawUnits(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	token := tokenAddr.Hex()

	rec := h.do(t, http.MethodPost, "/api/agent/pay", h.token, payRequest{
		WalletAddress: walletAddr.Hex(),
		TargetAddress: targetAddr.Hex(),
		Amount:        "2500",
		TokenAddress:  &token,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, h.session.calls, 1)
	method, args, err := contracts.Decode(contracts.WalletABI, h.session.calls[0].Data)
	require.NoError(t, err)
	require.Equal(t, contracts.MethodExecuteERC20, method.Name)
	require.Equal(t, tokenAddr, args[0])
	require.Equal(t, targetAddr, args[1])
	require.Zero(t, big.NewInt(2500).Cmp(args[2].(*big.Int)))
}

func TestPayValidationFailuresReturn400WithoutChainCalls(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/agent/pay", h.token, payRequest{WalletAddress: "0x123", TargetAddress: targetAddr.Hex(), Amount: "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := errorCode(t, rec)
	require.Equal(t, string(apperrors.CodeInvalidAddress), code)

	rec = h.do(t, http.MethodPost, "/api/agent/pay", h.token, payRequest{WalletAddress: walletAddr.Hex(), TargetAddress: targetAddr.Hex(), Amount: "lots"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ = errorCode(t, rec)
	require.Equal(t, string(apperrors.CodeInvalidAmount), code)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/pay", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+h.token)
	bad := httptest.NewRecorder()
	h.handler.ServeHTTP(bad, req)
	require.Equal(t, http.StatusBadRequest, bad.Code)

	require.Empty(t, h.session.calls)
}

func TestChainFailureMapsToBadGateway(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.session.err = apperrors.Wrap(apperrors.CodeChainFailure, web3.ErrReverted, "transaction reverted")

	rec := h.do(t, http.MethodPost, "/api/finance/fund", h.token, fundRequest{WalletAddress: walletAddr.Hex(), AmountEth: "0.1"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	code, msg := errorCode(t, rec)
	require.Equal(t, "CHAIN_FAILURE", code)
	require.Contains(t, msg, "reverted")

	h.session.err = nil
	rec = h.do(t, http.MethodPost, "/api/finance/fund", h.token, fundRequest{WalletAddress: walletAddr.Hex(), AmountEth: "0.1"})
	require.Equal(t, http.StatusOK, rec.Code, "session must stay usable after a chain failure")
	var resp txResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, StatusFunded, resp.Status)
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.session.err = apperrors.Wrap(apperrors.CodeTimeout, web3.ErrConfirmTimeout, "confirmation wait expired")

	rec := h.do(t, http.MethodPost, "/api/governance/limit", h.token, limitRequest{
		RulesContract: walletAddr.Hex(), AgentAddress: targetAddr.Hex(), LimitEth: "2",
	})
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestSetLimitMintAndBalance(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/governance/limit", h.token, limitRequest{
		RulesContract: walletAddr.Hex(), AgentAddress: targetAddr.Hex(), LimitEth: "2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp txResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, StatusLimitUpdated, resp.Status)

	rec = h.do(t, http.MethodPost, "/api/compliance/mint", h.token, mintRequest{WalletAddress: walletAddr.Hex(), URI: "ipfs://identity"})
	require.Equal(t, http.StatusOK, rec.Code)
	var minted string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &minted))
	require.Equal(t, txHash.Hex(), minted)
	require.Equal(t, identityAddr, h.session.calls[1].To)

	rec = h.do(t, http.MethodGet, "/api/finance/balance/"+walletAddr.Hex(), h.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	require.Equal(t, "42", balance.BalanceWei)
	require.Equal(t, walletAddr.Hex(), balance.Address)
}

func TestComplianceRegisterAndList(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	rec := h.do(t, http.MethodPost, "/api/compliance/register", h.token, map[string]any{"hashId": "0xabc", "jurisdiction": "DE", "kycLevel": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, msg := errorCode(t, rec)
	require.Equal(t, "Invalid KYC Level", msg)
	require.Zero(t, h.entities.writes)

	rec = h.do(t, http.MethodPost, "/api/compliance/register", h.token, map[string]any{"hashId": "0xabc", "jurisdiction": "DE", "kycLevel": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var entity compliance.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entity))
	require.Equal(t, "0xabc", entity.HashID)

	rec = h.do(t, http.MethodPost, "/api/compliance/register", h.token, map[string]any{"hashId": "0xabc", "jurisdiction": "DE", "kycLevel": 2})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/compliance/entities", h.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []compliance.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestHealthReflectsStorage(t *testing.T) {
	h := newHarness(t, Options{}, pingFunc(func(context.Context) error { return nil }))
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "System: Online (DB Connected)", rec.Body.String())

	h = newHarness(t, Options{}, pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec = h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, "System: Degraded (DB Error: connection refused)", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"http://localhost:3000"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/agent/pay", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSVaryOnEveryResponse(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"http://localhost:3000"}}, nil)

	for _, origin := range []string{"http://localhost:3000", "https://evil.example", ""} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, origin)
		require.Contains(t, rec.Header().Values("Vary"), "Origin", origin)
		if origin == "http://localhost:3000" {
			require.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
		} else {
			require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}
}

func TestRateLimitedRequestsGet429(t *testing.T) {
	h := newHarness(t, Options{Limiter: ratelimit.NewMemoryLimiter(1, 1, time.Minute)}, nil)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get(requestIDHeader))

	rec = h.do(t, http.MethodGet, "/health", "", nil)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestStartStopsOnCancel(t *testing.T) {
	users := auth.NewMemoryStore()
	issuer, err := auth.NewIssuer(auth.Config{Secret: testSecret})
	require.NoError(t, err)
	authSvc, err := auth.NewService(users, issuer)
	require.NoError(t, err)
	d, err := dispatch.New(&fakeSession{}, identityAddr)
	require.NoError(t, err)
	complianceSvc, err := compliance.NewService(compliance.NewMemoryStore())
	require.NoError(t, err)

	srv, err := NewServer(Options{Address: "127.0.0.1:0"}, authSvc, d, complianceSvc, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
