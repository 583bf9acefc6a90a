package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"funding-service/internal/domain"
	"funding-service/internal/events"
	"funding-service/internal/provider"
	"funding-service/internal/repository"
	"funding-service/internal/repository/memory"
	"funding-service/internal/security"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test"

type fakeGateway struct {
	initFn  func(ctx context.Context, req *provider.InitRequest) (*provider.InitResult, error)
	queryFn func(ctx context.Context, externalRef string) (*provider.StatusResult, error)

	initCalls  atomic.Int32
	queryCalls atomic.Int32
}

func (f *fakeGateway) Authenticate(context.Context) (string, error) { return "token", nil }

func (f *fakeGateway) InitializePayment(ctx context.Context, req *provider.InitRequest) (*provider.InitResult, error) {
	f.initCalls.Add(1)
	if f.initFn == nil {
		return &provider.InitResult{
			ExternalRef: "MNFY-" + req.IdempotencyRef,
			CheckoutURL: "https://checkout.test/" + req.IdempotencyRef,
		}, nil
	}
	return f.initFn(ctx, req)
}

func (f *fakeGateway) QueryStatus(ctx context.Context, externalRef string) (*provider.StatusResult, error) {
	f.queryCalls.Add(1)
	if f.queryFn == nil {
		return nil, errors.New("queryFn not set")
	}
	return f.queryFn(ctx, externalRef)
}

func paidStatus(ctx context.Context, ref string) (*provider.StatusResult, error) {
	return &provider.StatusResult{ExternalRef: ref, Status: domain.ExternalPaid, RawStatus: "PAID", PaymentMethod: "CARD"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingBalances struct {
	mu      sync.Mutex
	values  map[string]domain.Wallet
	written []string
}

func newRecordingBalances() *recordingBalances {
	return &recordingBalances{values: make(map[string]domain.Wallet)}
}

func (b *recordingBalances) Get(_ context.Context, owner string) (*domain.Wallet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.values[owner]
	if !ok {
		return nil, false
	}
	return &w, true
}

func (b *recordingBalances) Set(_ context.Context, w *domain.Wallet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[w.Owner] = *w
	b.written = append(b.written, w.Owner)
}

func (b *recordingBalances) SetIfAbsent(_ context.Context, w *domain.Wallet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[w.Owner]; !ok {
		b.values[w.Owner] = *w
	}
}

// creditDuringRead runs onRead once, after GetWallet has read the wallet and
// before the caller sees it.
type creditDuringRead struct {
	repository.LedgerStore
	onRead func()
}

func (s *creditDuringRead) GetWallet(ctx context.Context, owner string) (*domain.Wallet, error) {
	w, err := s.LedgerStore.GetWallet(ctx, owner)
	if fn := s.onRead; fn != nil {
		s.onRead = nil
		fn()
	}
	return w, err
}

// failingStore fails the balance adjustment of every unit of work.
type failingStore struct {
	repository.LedgerStore
}

func (s failingStore) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	uow, err := s.LedgerStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingUnitOfWork{uow}, nil
}

type failingUnitOfWork struct {
	repository.UnitOfWork
}

func (failingUnitOfWork) AdjustBalance(context.Context, string, decimal.Decimal) (*domain.Wallet, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	store     *memory.Store
	gateway   *fakeGateway
	verifier  *security.WebhookVerifier
	publisher *recordingPublisher
	balances  *recordingBalances
	reconcile *ReconcileUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		gateway:   &fakeGateway{},
		verifier:  security.NewWebhookVerifier(testSecret),
		publisher: &recordingPublisher{},
		balances:  newRecordingBalances(),
	}
	f.reconcile = NewReconcileUsecase(f.store, f.gateway, f.verifier, f.publisher, f.balances, zap.NewNop())
	return f
}

func (f *fixture) seedPending(t *testing.T, owner, ref string, amount string) *domain.Transaction {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.EnsureWallet(ctx, owner, "NGN")
	require.NoError(t, err)

	tx := &domain.Transaction{
		InternalRef: ref,
		ExternalRef: "MNFY-" + ref,
		Owner:       owner,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "NGN",
		Kind:        domain.TxKindDeposit,
	}
	require.NoError(t, f.store.CreatePending(ctx, tx))
	return tx
}

func (f *fixture) balance(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), owner)
	require.NoError(t, err)
	return w.Balance
}
