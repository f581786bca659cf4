// Package marketplace holds read-only views of the marketplace entities the
// risk engine consults. The marketplace CRUD surface itself lives outside
// this service; these models only describe what the engine reads.
package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the buyer or seller account as the engine sees it.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	SellerRating  float64   `json:"seller_rating"`
	SellerReviews int       `json:"seller_reviews"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountAge returns how long the account has existed at the given instant.
func (u *User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.CreatedAt)
}

// Product is a marketplace listing.
type Product struct {
	ID       string          `json:"id"`
	SellerID string          `json:"seller_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
}

// TransactionStatus is the lifecycle state of a historical transaction.
type TransactionStatus string

const (
	TxCompleted TransactionStatus = "completed"
	TxPending   TransactionStatus = "pending"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is a historical purchase used for behavioral baselines.
type Transaction struct {
	ID        string            `json:"id"`
	BuyerID   string            `json:"buyer_id"`
	ProductID string            `json:"product_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// ChatMessage is one message between buyer and seller about a product.
type ChatMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	ProductID string    `json:"product_id"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}
