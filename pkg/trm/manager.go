package trm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Manager runs functions inside a pgx transaction carried by the context.
// Nested Do calls join the outer transaction.
type Manager struct {
	db *pgxpool.Pool
}

// New returns a new Transaction Manager
func New(db *pgxpool.Pool) *Manager {
	return &Manager{db: db}
}

// Unique key for TX
type ctxKeyTx struct{}
type ctxTxOptions struct{}

var TxKey = ctxKeyTx{}
var txOptions = ctxTxOptions{}

var ErrInvalidTx = errors.New("invalid transaction type in context")

// Do executes fn within a transaction. Only the call that began the transaction
// commits or rolls it back; joined calls leave that to the owner.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, ctx, owner, err := m.getTransactionFromContext(ctx)
	if err != nil {
		return err
	}
	if !owner {
		return fn(ctx)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				err = fmt.Errorf("failed to rollback tx: %v (original error: %w)", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("failed to commit tx: %w", commitErr)
			return
		}
		runAfterCommit(ctx)
	}()

	return fn(ctx)
}

// DoReadOnly executes fn within a read-only transaction
func (m *Manager) DoReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = WithOptionsCtx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	return m.Do(ctx, fn)
}

func WithOptionsCtx(ctx context.Context, opt pgx.TxOptions) context.Context {
	return context.WithValue(ctx, txOptions, opt)
}

// getTransactionFromContext returns the transaction in ctx, or begins a new one.
// owner is true when the transaction was started here.
func (m *Manager) getTransactionFromContext(ctx context.Context) (pgx.Tx, context.Context, bool, error) {
	if v := ctx.Value(TxKey); v != nil {
		tx, ok := v.(pgx.Tx)
		if !ok {
			return nil, ctx, false, ErrInvalidTx
		}
		return tx, ctx, false, nil
	}

	var (
		tx  pgx.Tx
		err error
	)
	if opt, ok := ctx.Value(txOptions).(pgx.TxOptions); ok {
		tx, err = m.db.BeginTx(ctx, opt)
	} else {
		tx, err = m.db.Begin(ctx)
	}
	if err != nil {
		return nil, ctx, false, fmt.Errorf("failed to start new transaction: %w", err)
	}

	ctx = context.WithValue(ctx, afterCommitKey, &afterCommit{})
	return tx, context.WithValue(ctx, TxKey, tx), true, nil
}

type ctxAfterCommit struct{}

var afterCommitKey = ctxAfterCommit{}

type afterCommit struct {
	mu  sync.Mutex
	fns []func()
}

// AfterCommit runs fn once the transaction carried by ctx commits.
// Outside a transaction fn runs immediately; on rollback it never runs.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(afterCommitKey).(*afterCommit); ok {
		h.mu.Lock()
		h.fns = append(h.fns, fn)
		h.mu.Unlock()
		return
	}
	fn()
}

func runAfterCommit(ctx context.Context) {
	h, ok := ctx.Value(afterCommitKey).(*afterCommit)
	if !ok {
		return
	}
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
