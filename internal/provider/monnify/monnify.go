// internal/provider/monnify/monnify.go
package monnify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"funding-service/config"
	"funding-service/internal/cache"
	"funding-service/internal/domain"
	"funding-service/internal/metrics"
	"funding-service/internal/provider"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	loginPath = "/api/v1/auth/login"
	initPath  = "/api/v1/merchant/transactions/init-transaction"
	queryPath = "/api/v2/merchant/transactions/query"

	// tokenSkew is subtracted from expiresIn so a cached token is dropped
	// before the gateway stops accepting it.
	tokenSkew = 60 * time.Second

	maxResponseBytes = 1 << 20
)

type MonnifyProvider struct {
	config     config.MonnifyConfig
	baseURL    string
	httpClient *http.Client
	tokens     cache.TokenStore
	login      singleflight.Group
	logger     *zap.Logger
}

var _ provider.Gateway = (*MonnifyProvider)(nil)

func NewMonnifyProvider(cfg config.MonnifyConfig, tokens cache.TokenStore, logger *zap.Logger) *MonnifyProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = cache.NewMemoryTokenStore()
	}

	return &MonnifyProvider{
		config:     cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// envelope is the wrapper Monnify puts around every response body.
type envelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseCode      string          `json:"responseCode"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

// ============================================
// AUTHENTICATION
// ============================================

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Authenticate returns a bearer token, from the token store when one is
// still valid. Concurrent callers share one login; the login is bounded by
// the client timeout rather than by any one caller's context, and each caller
// stops waiting when its own context ends.
func (m *MonnifyProvider) Authenticate(ctx context.Context) (string, error) {
	if token, ok := m.tokens.Get(ctx); ok {
		return token, nil
	}

	ch := m.login.DoChan("login", func() (interface{}, error) {
		return m.fetchToken(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", domain.AuthError("monnify.Authenticate", ctx.Err())
	}
}

func (m *MonnifyProvider) fetchToken(ctx context.Context) (token string, err error) {
	const op = "monnify.Authenticate"
	start := time.Now()
	defer func() { metrics.ObserveGateway("authenticate", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+loginPath, nil)
	if err != nil {
		return "", domain.AuthError(op, err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(m.config.APIKey + ":" + m.config.SecretKey))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error("monnify login request failed", zap.Error(err))
		return "", domain.AuthError(op, err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		m.logger.Error("monnify login rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
		return "", domain.AuthError(op, err)
	}

	var body loginResponse
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil || body.AccessToken == "" {
		return "", domain.AuthError(op, fmt.Errorf("malformed login response"))
	}

	if body.ExpiresIn > 0 {
		ttl := time.Duration(body.ExpiresIn)*time.Second - tokenSkew
		m.tokens.Set(ctx, body.AccessToken, ttl)
	}

	m.logger.Debug("monnify access token obtained",
		zap.Int64("expires_in", body.ExpiresIn))

	return body.AccessToken, nil
}

// ============================================
// INITIALIZE TRANSACTION
// ============================================

type initTransactionRequest struct {
	Amount             json.Number `json:"amount"`
	CustomerName       string      `json:"customerName"`
	CustomerEmail      string      `json:"customerEmail"`
	PaymentReference   string      `json:"paymentReference"`
	PaymentDescription string      `json:"paymentDescription"`
	CurrencyCode       string      `json:"currencyCode"`
	ContractCode       string      `json:"contractCode"`
	RedirectURL        string      `json:"redirectUrl"`
	PaymentMethods     []string    `json:"paymentMethods"`
}

type initTransactionResponse struct {
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
	CheckoutURL          string `json:"checkoutUrl"`
}

func (m *MonnifyProvider) InitializePayment(ctx context.Context, req *provider.InitRequest) (result *provider.InitResult, err error) {
	const op = "monnify.InitializePayment"

	token, err := m.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.ObserveGateway("initialize_payment", start, err) }()

	customerName := req.PayerName
	if customerName == "" {
		customerName, _, _ = strings.Cut(req.PayerEmail, "@")
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Wallet funding for %s", req.PayerEmail)
	}

	payload := initTransactionRequest{
		Amount:             json.Number(req.Amount.StringFixed(domain.AmountScale)),
		CustomerName:       customerName,
		CustomerEmail:      req.PayerEmail,
		PaymentReference:   req.IdempotencyRef,
		PaymentDescription: description,
		CurrencyCode:       m.config.CurrencyCode,
		ContractCode:       m.config.ContractCode,
		RedirectURL:        req.RedirectURL,
		PaymentMethods:     m.config.PaymentMethods,
	}

	env, status, err := m.makeRequest(ctx, http.MethodPost, m.baseURL+initPath, token, payload)
	if err != nil {
		m.logger.Error("monnify init-transaction failed",
			zap.String("internal_ref", req.IdempotencyRef),
			zap.Int("status_code", status),
			zap.Error(err))
		return nil, m.classify(ctx, op, status, err)
	}

	var body initTransactionResponse
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil {
		return nil, domain.GatewayError(op, "malformed response", err)
	}

	externalRef := body.PaymentReference
	if externalRef == "" {
		externalRef = body.TransactionReference
	}
	if externalRef == "" || body.CheckoutURL == "" {
		return nil, domain.GatewayError(op, "response missing reference or checkout url", nil)
	}

	return &provider.InitResult{
		ExternalRef: externalRef,
		CheckoutURL: body.CheckoutURL,
		RawResponse: env.ResponseBody,
	}, nil
}

// ============================================
// QUERY TRANSACTION
// ============================================

type queryTransactionResponse struct {
	TransactionReference string          `json:"transactionReference"`
	PaymentReference     string          `json:"paymentReference"`
	PaymentStatus        string          `json:"paymentStatus"`
	PaymentMethod        string          `json:"paymentMethod"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
}

func (m *MonnifyProvider) QueryStatus(ctx context.Context, externalRef string) (result *provider.StatusResult, err error) {
	const op = "monnify.QueryStatus"

	if externalRef == "" {
		return nil, domain.NotFoundError(op, "empty payment reference")
	}

	token, err := m.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.ObserveGateway("query_status", start, err) }()

	endpoint := m.baseURL + queryPath + "?paymentReference=" + url.QueryEscape(externalRef)
	env, status, err := m.makeRequest(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		m.logger.Error("monnify transaction query failed",
			zap.String("external_ref", externalRef),
			zap.Int("status_code", status),
			zap.Error(err))
		return nil, m.classify(ctx, op, status, err)
	}

	var body queryTransactionResponse
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil {
		return nil, domain.GatewayError(op, "malformed response", err)
	}

	return &provider.StatusResult{
		ExternalRef:   externalRef,
		Status:        domain.ParseExternalStatus(body.PaymentStatus),
		RawStatus:     body.PaymentStatus,
		PaymentMethod: body.PaymentMethod,
		AmountPaid:    body.AmountPaid,
		RawResponse:   env.ResponseBody,
	}, nil
}

// ============================================
// HELPERS
// ============================================

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("gateway returned status %d", e.status)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.status, e.message)
}

// classify turns a transport or status failure into a typed error. A 401
// drops the cached token so the next call logs in again.
func (m *MonnifyProvider) classify(ctx context.Context, op string, status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		m.tokens.Invalidate(ctx)
		return domain.AuthError(op, err)
	case http.StatusNotFound:
		return domain.NotFoundError(op, "payment reference not found at gateway")
	}
	return domain.GatewayError(op, "gateway request failed", err)
}

func (m *MonnifyProvider) makeRequest(ctx context.Context, method, endpoint, token string, payload interface{}) (*envelope, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	return env, resp.StatusCode, err
}

func decodeEnvelope(resp *http.Response) (*envelope, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, message: env.ResponseMessage}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	if !env.RequestSuccessful {
		return nil, fmt.Errorf("request unsuccessful: %s (code %s)", env.ResponseMessage, env.ResponseCode)
	}
	return &env, nil
}
