package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"funding-service/internal/domain"

	"github.com/shopspring/decimal"
)

var errFinished = errors.New("unit of work already finished")

type unitOfWork struct {
	store    *Store
	locks    []*sync.Mutex
	locked   map[int64]bool
	settles  map[int64]domain.Settlement
	order    []int64
	balances map[string]decimal.Decimal
	done     bool
}

func (u *unitOfWork) LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	if u.done {
		return nil, errFinished
	}
	if !u.locked[id] {
		l := u.store.rowLock(id)
		if err := lockWithContext(ctx, l); err != nil {
			return nil, err
		}
		u.locks = append(u.locks, l)
		if u.locked == nil {
			u.locked = make(map[int64]bool)
		}
		u.locked[id] = true
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	t, ok := u.store.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := t.Clone()
	if s, ok := u.settles[id]; ok {
		applySettlement(c, s, c.UpdatedAt)
	}
	return c, nil
}

func (u *unitOfWork) Settle(_ context.Context, id int64, s domain.Settlement) (*domain.Transaction, error) {
	if u.done {
		return nil, errFinished
	}
	if !s.Status.IsTerminal() {
		return nil, errors.New("settle: status is not terminal")
	}
	if _, ok := u.settles[id]; ok {
		return nil, domain.ErrNotPending
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	t, ok := u.store.txs[id]
	if !ok || t.Status != domain.TxStatusPending {
		return nil, domain.ErrNotPending
	}

	u.settles[id] = s
	u.order = append(u.order, id)

	c := t.Clone()
	applySettlement(c, s, u.store.now())
	return c, nil
}

func (u *unitOfWork) AdjustBalance(_ context.Context, owner string, delta decimal.Decimal) (*domain.Wallet, error) {
	if u.done {
		return nil, errFinished
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	w, ok := u.store.wallets[owner]
	if !ok {
		return nil, domain.ErrNotFound
	}

	pending := u.balances[owner].Add(delta)
	projected := w.Balance.Add(pending)
	if projected.IsNegative() {
		return nil, domain.ErrNegativeBalance
	}
	u.balances[owner] = pending

	c := *w
	c.Balance = projected
	return &c, nil
}

// Commit re-checks every buffered write against the committed state and
// applies all of them or none.
func (u *unitOfWork) Commit(_ context.Context) error {
	if u.done {
		return nil
	}
	defer u.release()

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range u.order {
		if t, ok := s.txs[id]; !ok || t.Status != domain.TxStatusPending {
			return domain.ErrNotPending
		}
	}
	for owner, delta := range u.balances {
		w, ok := s.wallets[owner]
		if !ok {
			return domain.ErrNotFound
		}
		if w.Balance.Add(delta).IsNegative() {
			return domain.ErrNegativeBalance
		}
	}

	now := s.now()
	for _, id := range u.order {
		applySettlement(s.txs[id], u.settles[id], now)
	}
	for owner, delta := range u.balances {
		w := s.wallets[owner]
		w.Balance = w.Balance.Add(delta)
		w.UpdatedAt = now
	}
	return nil
}

func (u *unitOfWork) Rollback(_ context.Context) error {
	if u.done {
		return nil
	}
	u.release()
	return nil
}

func (u *unitOfWork) release() {
	u.done = true
	for i := len(u.locks) - 1; i >= 0; i-- {
		u.locks[i].Unlock()
	}
	u.locks = nil
}

func applySettlement(t *domain.Transaction, s domain.Settlement, now time.Time) {
	t.Status = s.Status
	if s.PaymentMethod != "" {
		pm := s.PaymentMethod
		t.PaymentMethod = &pm
	}
	if len(s.Metadata) > 0 {
		t.Metadata = append([]byte(nil), s.Metadata...)
	}
	t.UpdatedAt = now
	t.CompletedAt = &now
}

// lockWithContext acquires l unless ctx ends first.
func lockWithContext(ctx context.Context, l *sync.Mutex) error {
	if l.TryLock() {
		return nil
	}
	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.Unlock()
		}()
		return ctx.Err()
	}
}
