package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"funding-service/internal/config"
)

var ErrGatewayUnavailable = errors.New("gateway unavailable")

// GatewayClient talks to the payment gateway's query API: token login,
// single-transaction lookup, and paginated transaction/settlement listings.
// The access token is cached and refreshed shortly before expiry; requests
// retry a bounded number of times with exponential backoff and surface an
// explicit error rather than hang.
type GatewayClient struct {
	cfg  config.GatewayConfig
	http *http.Client
	log  *zap.SugaredLogger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGatewayClient(cfg config.GatewayConfig, log *zap.SugaredLogger) *GatewayClient {
	return &GatewayClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// GatewayTransaction is the gateway's authoritative view of one deposit.
type GatewayTransaction struct {
	TransactionReference string   `json:"transactionReference"`
	PaymentReference     string   `json:"paymentReference"`
	AmountPaid           float64  `json:"amountPaid"`
	TotalPayable         float64  `json:"totalPayable"`
	PaymentStatus        string   `json:"paymentStatus"`
	PaymentMethod        string   `json:"paymentMethod"`
	CurrencyCode         string   `json:"currencyCode"`
	CompletedOn          string   `json:"completedOn"`
	Customer             Customer `json:"customer"`
}

// GatewaySettlement is one settlement batch as reported by the gateway.
type GatewaySettlement struct {
	SettlementReference   string   `json:"settlementReference"`
	Amount                float64  `json:"amount"`
	SettlementTime        string   `json:"settlementTime"`
	Status                string   `json:"status"`
	TransactionReferences []string `json:"transactionReferences"`
}

type gatewayEnvelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type loginBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type pageBody struct {
	Content []json.RawMessage `json:"content"`
	Last    bool              `json:"last"`
}

// InitTransaction registers a deposit attempt with the gateway and returns
// the checkout URL plus the gateway-assigned transaction reference.
func (c *GatewayClient) InitTransaction(ctx context.Context, paymentRef string, amount float64, currency, customerName, customerEmail string) (checkoutUrl, transactionRef string, err error) {
	payload := map[string]interface{}{
		"amount":             amount,
		"customerName":       customerName,
		"customerEmail":      customerEmail,
		"paymentReference":   paymentRef,
		"paymentDescription": "wallet funding",
		"currencyCode":       currency,
		"contractCode":       c.cfg.ContractCode,
		"paymentMethods":     []string{"CARD", "ACCOUNT_TRANSFER"},
	}

	var body struct {
		CheckoutUrl          string `json:"checkoutUrl"`
		TransactionReference string `json:"transactionReference"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/merchant/transactions/init-transaction", payload, &body); err != nil {
		return "", "", err
	}
	return body.CheckoutUrl, body.TransactionReference, nil
}

// QueryTransaction fetches the authoritative state of one transaction by
// payment reference.
func (c *GatewayClient) QueryTransaction(ctx context.Context, paymentRef string) (*GatewayTransaction, error) {
	var tx GatewayTransaction
	path := fmt.Sprintf("/api/v2/transactions/query?paymentReference=%s", paymentRef)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListTransactions pulls one page of transactions in the date window.
// Returns the page and whether more pages remain.
func (c *GatewayClient) ListTransactions(ctx context.Context, from, to time.Time, page, size int) ([]GatewayTransaction, bool, error) {
	path := fmt.Sprintf("/api/v1/transactions/search?from=%d&to=%d&page=%d&size=%d",
		from.UnixMilli(), to.UnixMilli(), page, size)

	var pb pageBody
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &pb); err != nil {
		return nil, false, err
	}

	out := make([]GatewayTransaction, 0, len(pb.Content))
	for _, raw := range pb.Content {
		var tx GatewayTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			c.log.Warnw("skipping undecodable gateway transaction", "error", err)
			continue
		}
		out = append(out, tx)
	}
	return out, !pb.Last, nil
}

// ListSettlements pulls one page of settlement batches in the date window.
func (c *GatewayClient) ListSettlements(ctx context.Context, from, to time.Time, page, size int) ([]GatewaySettlement, bool, error) {
	path := fmt.Sprintf("/api/v1/settlements?from=%d&to=%d&page=%d&size=%d",
		from.UnixMilli(), to.UnixMilli(), page, size)

	var pb pageBody
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &pb); err != nil {
		return nil, false, err
	}

	out := make([]GatewaySettlement, 0, len(pb.Content))
	for _, raw := range pb.Content {
		var st GatewaySettlement
		if err := json.Unmarshal(raw, &st); err != nil {
			c.log.Warnw("skipping undecodable gateway settlement", "error", err)
			continue
		}
		out = append(out, st)
	}
	return out, !pb.Last, nil
}

// token returns a valid access token, logging in when the cached one is
// missing or within a minute of expiry.
func (c *GatewayClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	key := base64.StdEncoding.EncodeToString([]byte(c.cfg.ApiKey + ":" + c.cfg.SecretKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseUrl+"/api/v1/auth/login", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return "", err
	}
	if !env.RequestSuccessful {
		return "", fmt.Errorf("gateway login rejected: %s", env.ResponseMessage)
	}

	var body loginBody
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}

	c.accessToken = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *GatewayClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// doJSON performs an authenticated request with bounded retry. A 401
// invalidates the cached token before the next attempt; transport errors
// and 5xx responses back off exponentially.
func (c *GatewayClient) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		status, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case status == http.StatusUnauthorized:
			c.invalidateToken()
		case status >= 400 && status < 500:
			// Client errors other than auth do not become valid on retry.
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (c *GatewayClient) attempt(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseUrl+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if !env.RequestSuccessful {
		return resp.StatusCode, fmt.Errorf("gateway request failed: %s", env.ResponseMessage)
	}
	if out != nil {
		if err := json.Unmarshal(env.ResponseBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func decodeEnvelope(r io.Reader) (*gatewayEnvelope, error) {
	var env gatewayEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode gateway envelope: %w", err)
	}
	return &env, nil
}
