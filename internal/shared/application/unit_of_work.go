// Package application holds the plumbing command handlers share across
// bounded contexts.
package application

import (
	"context"
	"errors"
)

// UnitOfWork scopes a group of repository calls to one database
// transaction. Begin returns a context carrying the transaction;
// repositories that receive it join automatically.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithUnitOfWork runs fn inside a transaction: commit when fn succeeds,
// roll back when it fails. fn's error stays the primary result; a rollback
// failure is attached to it.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) error {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if rbErr := uow.Rollback(txCtx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return uow.Commit(txCtx)
}
