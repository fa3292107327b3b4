package db

import (
	"context"

	"gorm.io/gorm"
)

type transactionKey struct{}

func withTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

func transactionFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(transactionKey{}).(*gorm.DB)
	return tx
}

// NewTransaction runs f inside one transaction. Clients obtained through
// client.Item(ctx) or client.Owner(ctx) inside f join it.
func NewTransaction(ctx context.Context, client *Client, f func(context.Context) error) error {
	if tx := transactionFromContext(ctx); tx != nil {
		return f(ctx)
	}
	return client.connection.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(withTransaction(ctx, tx))
	})
}

func (client *Client) session(ctx context.Context) *gorm.DB {
	if tx := transactionFromContext(ctx); tx != nil {
		return tx
	}
	return client.connection.WithContext(ctx)
}
