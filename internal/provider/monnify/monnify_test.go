package monnify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"funding-service/config"
	"funding-service/internal/cache"
	"funding-service/internal/domain"
	"funding-service/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMonnify struct {
	t           *testing.T
	logins      atomic.Int32
	inits       atomic.Int32
	queries     atomic.Int32
	initStatus  int
	queryStatus int
	paymentStat string
	lastInit    map[string]interface{}
	mu          sync.Mutex

	// loginStarted is signalled and loginGate awaited by the login handler
	// when set.
	loginStarted chan struct{}
	loginGate    chan struct{}
}

func (f *fakeMonnify) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		if f.loginStarted != nil {
			select {
			case f.loginStarted <- struct{}{}:
			default:
			}
		}
		if f.loginGate != nil {
			<-f.loginGate
		}
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
		if r.Header.Get("Authorization") != want {
			writeEnvelope(w, http.StatusUnauthorized, false, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
			"accessToken": "tok-123",
			"expiresIn":   3600,
		})
	})

	mux.HandleFunc(initPath, func(w http.ResponseWriter, r *http.Request) {
		f.inits.Add(1)
		assert.Equal(f.t, "Bearer tok-123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		assert.NoError(f.t, json.Unmarshal(body, &payload))
		f.mu.Lock()
		f.lastInit = payload
		f.mu.Unlock()

		if f.initStatus != 0 && f.initStatus != http.StatusOK {
			writeEnvelope(w, f.initStatus, false, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
			"transactionReference": "MNFY|20260101|000001",
			"paymentReference":     payload["paymentReference"],
			"checkoutUrl":          "https://sandbox.sdk.monnify.com/checkout/MNFY|20260101|000001",
		})
	})

	mux.HandleFunc(queryPath, func(w http.ResponseWriter, r *http.Request) {
		f.queries.Add(1)
		if f.queryStatus != 0 && f.queryStatus != http.StatusOK {
			writeEnvelope(w, f.queryStatus, false, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, map[string]interface{}{
			"paymentReference": r.URL.Query().Get("paymentReference"),
			"paymentStatus":    f.paymentStat,
			"paymentMethod":    "CARD",
			"amountPaid":       500.00,
		})
	})

	return mux
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"requestSuccessful": ok,
		"responseMessage":   "message",
		"responseCode":      "0",
		"responseBody":      body,
	})
}

func newTestProvider(t *testing.T, fake *fakeMonnify, key string) *MonnifyProvider {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	return NewMonnifyProvider(config.MonnifyConfig{
		BaseURL:        srv.URL,
		APIKey:         key,
		SecretKey:      "secret",
		ContractCode:   "CONTRACT",
		CurrencyCode:   "NGN",
		PaymentMethods: []string{"CARD", "ACCOUNT_TRANSFER"},
		Timeout:        5 * time.Second,
	}, cache.NewMemoryTokenStore(), zap.NewNop())
}

func TestAuthenticate_CachesToken(t *testing.T) {
	fake := &fakeMonnify{}
	p := newTestProvider(t, fake, "key")

	tok, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	_, err = p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestAuthenticate_CancelledCallerDoesNotFailSharedLogin(t *testing.T) {
	fake := &fakeMonnify{loginStarted: make(chan struct{}, 1), loginGate: make(chan struct{})}
	p := newTestProvider(t, fake, "key")

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Authenticate(firstCtx)
		firstErr <- err
	}()
	<-fake.loginStarted

	type result struct {
		token string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := p.Authenticate(context.Background())
		second <- result{tok, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, domain.IsKind(err, domain.KindAuth))

	close(fake.loginGate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "tok-123", got.token)
	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	fake := &fakeMonnify{}
	p := newTestProvider(t, fake, "wrong")

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))
	assert.NotContains(t, err.Error(), "secret")
}

func TestInitializePayment(t *testing.T) {
	fake := &fakeMonnify{}
	p := newTestProvider(t, fake, "key")

	res, err := p.InitializePayment(context.Background(), &provider.InitRequest{
		Amount:         decimal.RequireFromString("500"),
		PayerEmail:     "ada@example.com",
		IdempotencyRef: "WAL-ABC",
		RedirectURL:    "http://localhost:3000/payment/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "WAL-ABC", res.ExternalRef)
	assert.Contains(t, res.CheckoutURL, "checkout")
	assert.NotEmpty(t, res.RawResponse)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 500.0, fake.lastInit["amount"])
	assert.Equal(t, "ada", fake.lastInit["customerName"])
	assert.Equal(t, "NGN", fake.lastInit["currencyCode"])
	assert.Equal(t, "CONTRACT", fake.lastInit["contractCode"])
	assert.Len(t, fake.lastInit["paymentMethods"], 2)
}

func TestInitializePayment_GatewayFailure(t *testing.T) {
	fake := &fakeMonnify{initStatus: http.StatusInternalServerError}
	p := newTestProvider(t, fake, "key")

	_, err := p.InitializePayment(context.Background(), &provider.InitRequest{
		Amount:         decimal.NewFromInt(10),
		PayerEmail:     "ada@example.com",
		IdempotencyRef: "WAL-ABC",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindGateway))
}

func TestQueryStatus(t *testing.T) {
	fake := &fakeMonnify{paymentStat: "PAID"}
	p := newTestProvider(t, fake, "key")

	res, err := p.QueryStatus(context.Background(), "WAL-ABC")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalPaid, res.Status)
	assert.Equal(t, "CARD", res.PaymentMethod)
	assert.True(t, res.AmountPaid.Equal(decimal.NewFromInt(500)))
}

func TestQueryStatus_UnknownStatus(t *testing.T) {
	fake := &fakeMonnify{paymentStat: "PARTIALLY_PAID"}
	p := newTestProvider(t, fake, "key")

	res, err := p.QueryStatus(context.Background(), "WAL-ABC")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalUnknown, res.Status)
	assert.Equal(t, "PARTIALLY_PAID", res.RawStatus)
}

func TestQueryStatus_NotFound(t *testing.T) {
	fake := &fakeMonnify{queryStatus: http.StatusNotFound}
	p := newTestProvider(t, fake, "key")

	_, err := p.QueryStatus(context.Background(), "WAL-MISSING")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestQueryStatus_UnauthorizedDropsToken(t *testing.T) {
	fake := &fakeMonnify{queryStatus: http.StatusUnauthorized}
	p := newTestProvider(t, fake, "key")

	_, err := p.QueryStatus(context.Background(), "WAL-ABC")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))

	_, err = p.QueryStatus(context.Background(), "WAL-ABC")
	require.Error(t, err)
	assert.EqualValues(t, 2, fake.logins.Load())
}
