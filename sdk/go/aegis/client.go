package aegis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Write calls block until the transaction is confirmed on chain, so it is
// longer than the server's default confirmation timeout.
const DefaultHTTPTimeout = 3 * time.Minute

// Client wraps the HTTP interactions with the Aegis Core REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Credentials are an operator's username and password.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token represents an issued access token.
type Token struct {
	AccessToken string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Account is returned by Register.
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Payment relays a transfer through a smart-contract wallet. Leave
// TokenAddress empty for a native transfer, where Amount is in ether. With a
// token, Amount is in the token's smallest unit.
type Payment struct {
	WalletAddress string  `json:"walletAddress"`
	TargetAddress string  `json:"targetAddress"`
	Amount        string  `json:"amount"`
	TokenAddress  *string `json:"tokenAddress,omitempty"`
}

// Funding sends ether from the server identity to a wallet.
type Funding struct {
	WalletAddress string `json:"walletAddress"`
	AmountEth     string `json:"amountEth"`
}

// SpendingLimit sets an agent's limit on a rules contract.
type SpendingLimit struct {
	RulesContract string `json:"rulesContract"`
	AgentAddress  string `json:"agentAddress"`
	LimitEth      string `json:"limitEth"`
}

// Receipt is the response of every write call except Mint.
type Receipt struct {
	TxHash string `json:"txHash"`
	Status string `json:"status"`
}

// Balance is the native balance of an address.
type Balance struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}

// EntityRegistration describes a legal entity for the compliance registry.
type EntityRegistration struct {
	HashID       string `json:"hashId"`
	Jurisdiction string `json:"jurisdiction"`
	KYCLevel     int16  `json:"kycLevel"`
}

// Entity is a registered legal entity.
type Entity struct {
	ID           int64     `json:"id"`
	HashID       string    `json:"hashId"`
	Jurisdiction string    `json:"jurisdiction"`
	KYCLevel     int16     `json:"kycLevel"`
	OnChainID    *string   `json:"onChainId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("aegis api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("aegis api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Aegis Core API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Login exchanges credentials for an access token and stores it for
// subsequent calls.
func (c *Client) Login(ctx context.Context, creds Credentials) (Token, error) {
	var token Token
	if err := c.post(ctx, "/api/auth/login", creds, &token, false); err != nil {
		return Token{}, err
	}
	c.SetAccessToken(token.AccessToken)
	return token, nil
}

// Register creates an operator account.
func (c *Client) Register(ctx context.Context, creds Credentials) (Account, error) {
	var account Account
	if err := c.post(ctx, "/api/auth/register", creds, &account, false); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Pay relays a native or token transfer.
func (c *Client) Pay(ctx context.Context, p Payment) (Receipt, error) {
	return c.write(ctx, "/api/agent/pay", p)
}

// Fund sends ether to a wallet.
func (c *Client) Fund(ctx context.Context, f Funding) (Receipt, error) {
	return c.write(ctx, "/api/finance/fund", f)
}

// SetLimit updates an agent's spending limit.
func (c *Client) SetLimit(ctx context.Context, l SpendingLimit) (Receipt, error) {
	return c.write(ctx, "/api/governance/limit", l)
}

// Mint issues an identity token to walletAddress and returns the transaction
// hash.
func (c *Client) Mint(ctx context.Context, walletAddress, uri string) (string, error) {
	var hash string
	payload := map[string]string{"walletAddress": walletAddress, "uri": uri}
	if err := c.post(ctx, "/api/compliance/mint", payload, &hash, true); err != nil {
		return "", err
	}
	return hash, nil
}

// Balance fetches the native balance of address.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	var balance Balance
	if err := c.get(ctx, "/api/finance/balance/"+url.PathEscape(address), &balance, true); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// RegisterEntity adds a legal entity to the compliance registry.
func (c *Client) RegisterEntity(ctx context.Context, e EntityRegistration) (Entity, error) {
	var entity Entity
	if err := c.post(ctx, "/api/compliance/register", e, &entity, true); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

// ListEntities returns every registered entity, newest first.
func (c *Client) ListEntities(ctx context.Context) ([]Entity, error) {
	var entities []Entity
	if err := c.get(ctx, "/api/compliance/entities", &entities, true); err != nil {
		return nil, err
	}
	return entities, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) write(ctx context.Context, endpoint string, payload any) (Receipt, error) {
	var receipt Receipt
	if err := c.post(ctx, endpoint, payload, &receipt, true); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		token := c.AccessToken()
		if token == "" {
			return nil, errors.New("aegis: access token is not set")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
