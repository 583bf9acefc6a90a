// Package memory is an in-process LedgerStore for local runs and tests.
// Units of work buffer their writes and apply them at Commit under the store
// lock; LockTransaction serializes units of work on the same row.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"funding-service/internal/domain"
	"funding-service/internal/repository"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.Mutex
	nextTxID     int64
	nextWalletID int64
	txs          map[int64]*domain.Transaction
	byInternal   map[string]int64
	byExternal   map[string]int64
	wallets      map[string]*domain.Wallet
	rowLocks     map[int64]*sync.Mutex
	checkedAt    map[int64]time.Time
	now          func() time.Time
}

var _ repository.LedgerStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		txs:        make(map[int64]*domain.Transaction),
		byInternal: make(map[string]int64),
		byExternal: make(map[string]int64),
		wallets:    make(map[string]*domain.Wallet),
		rowLocks:   make(map[int64]*sync.Mutex),
		checkedAt:  make(map[int64]time.Time),
		now:        time.Now,
	}
}

func (s *Store) FindByExternalRef(_ context.Context, externalRef string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[externalRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.txs[id].Clone(), nil
}

func (s *Store) FindByInternalRefAndOwner(_ context.Context, internalRef, owner string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byInternal[internalRef]
	if !ok || s.txs[id].Owner != owner {
		return nil, domain.ErrNotFound
	}
	return s.txs[id].Clone(), nil
}

func (s *Store) CreatePending(_ context.Context, t *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byInternal[t.InternalRef]; ok {
		return domain.ErrDuplicateRef
	}
	if _, ok := s.byExternal[t.ExternalRef]; ok {
		return domain.ErrDuplicateRef
	}
	if _, ok := s.wallets[t.Owner]; !ok {
		return domain.ErrNotFound
	}

	s.nextTxID++
	now := s.now()
	t.ID = s.nextTxID
	t.Status = domain.TxStatusPending
	t.CreatedAt = now
	t.UpdatedAt = now

	s.txs[t.ID] = t.Clone()
	s.byInternal[t.InternalRef] = t.ID
	s.byExternal[t.ExternalRef] = t.ID
	return nil
}

func (s *Store) ListByOwner(_ context.Context, owner string, limit, offset int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.txs {
		if t.Owner == owner {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *Store) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.txs {
		if t.Status == domain.TxStatusPending && t.Kind == domain.TxKindDeposit && t.CreatedAt.Before(olderThan) {
			out = append(out, t.Clone())
		}
	}
	// zero checkedAt sorts first
	sort.Slice(out, func(i, j int) bool {
		ci, cj := s.checkedAt[out[i].ID], s.checkedAt[out[j].ID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, 0), nil
}

func (s *Store) MarkChecked(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[id]; !ok {
		return domain.ErrNotFound
	}
	s.checkedAt[id] = s.now()
	return nil
}

func (s *Store) EnsureWallet(_ context.Context, owner, currency string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.wallets[owner]; ok {
		c := *w
		return &c, nil
	}

	s.nextWalletID++
	now := s.now()
	w := &domain.Wallet{
		ID:        s.nextWalletID,
		Owner:     owner,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[owner] = w
	c := *w
	return &c, nil
}

func (s *Store) GetWallet(_ context.Context, owner string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[owner]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *w
	return &c, nil
}

func (s *Store) Begin(_ context.Context) (repository.UnitOfWork, error) {
	return &unitOfWork{
		store:    s,
		settles:  make(map[int64]domain.Settlement),
		balances: make(map[string]decimal.Decimal),
	}, nil
}

func (s *Store) rowLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[id] = l
	}
	return l
}

func page(in []*domain.Transaction, limit, offset int) []*domain.Transaction {
	if offset >= len(in) {
		return []*domain.Transaction{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
