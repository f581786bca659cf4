package marketplace

import (
	"context"
	"time"
)

// UserRepository looks up marketplace accounts.
type UserRepository interface {
	// GetByID returns ErrUserNotFound when the account does not exist.
	GetByID(ctx context.Context, id string) (*User, error)
}

// ProductRepository looks up listings.
type ProductRepository interface {
	// GetByID returns ErrProductNotFound when the listing does not exist.
	GetByID(ctx context.Context, id string) (*Product, error)
}

// TransactionRepository exposes a buyer's purchase history.
type TransactionRepository interface {
	// ListByBuyer returns the buyer's most recent transactions, newest first.
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*Transaction, error)

	// CountByBuyerSince counts the buyer's transactions created after the
	// given instant, optionally restricted to a status ("" = any).
	CountByBuyerSince(ctx context.Context, buyerID string, since time.Time, status TransactionStatus) (int64, error)
}

// ChatRepository exposes the pre-purchase conversation.
type ChatRepository interface {
	// ListByUserAndProduct returns the buyer's messages about a product,
	// oldest first.
	ListByUserAndProduct(ctx context.Context, userID, productID string) ([]*ChatMessage, error)
}
