package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"marketplace-risk-engine/internal/domain/marketplace"
)

// UserModel maps the marketplace users table
type UserModel struct {
	ID            string  `gorm:"type:varchar(64);primaryKey"`
	Username      string  `gorm:"type:varchar(100)"`
	SellerRating  float64 `gorm:"type:decimal(3,2)"`
	SellerReviews int
	CreatedAt     time.Time
}

// TableName returns the marketplace users table
func (UserModel) TableName() string {
	return "users"
}

// ProductModel maps the marketplace products table
type ProductModel struct {
	ID       string          `gorm:"type:varchar(64);primaryKey"`
	SellerID string          `gorm:"type:varchar(64);index"`
	Title    string          `gorm:"type:varchar(200)"`
	Price    decimal.Decimal `gorm:"type:decimal(15,2)"`
}

// TableName returns the marketplace products table
func (ProductModel) TableName() string {
	return "products"
}

// TransactionModel maps the marketplace transactions table
type TransactionModel struct {
	ID        string          `gorm:"type:varchar(64);primaryKey"`
	BuyerID   string          `gorm:"type:varchar(64);index"`
	ProductID string          `gorm:"type:varchar(64);index"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,2)"`
	Status    string          `gorm:"type:varchar(20);index"`
	CreatedAt time.Time       `gorm:"index"`
}

// TableName returns the marketplace transactions table
func (TransactionModel) TableName() string {
	return "transactions"
}

// ChatMessageModel maps the marketplace chat messages table
type ChatMessageModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	SenderID  string `gorm:"type:varchar(64);index"`
	ProductID string `gorm:"type:varchar(64);index"`
	Body      string `gorm:"type:text"`
	SentAt    time.Time
}

// TableName returns the marketplace chat messages table
func (ChatMessageModel) TableName() string {
	return "chat_messages"
}

// The marketplace service owns these tables; the repositories below
// never write.

// UserRepository implements marketplace.UserRepository
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates the user lookup repository
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{db: client.DB()}
}

var _ marketplace.UserRepository = (*UserRepository)(nil)

// GetByID retrieves a user account
func (r *UserRepository) GetByID(ctx context.Context, id string) (*marketplace.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, marketplace.ErrUserNotFound
		}
		return nil, err
	}
	return &marketplace.User{
		ID:            model.ID,
		Username:      model.Username,
		SellerRating:  model.SellerRating,
		SellerReviews: model.SellerReviews,
		CreatedAt:     model.CreatedAt,
	}, nil
}

// ProductRepository implements marketplace.ProductRepository
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates the listing lookup repository
func NewProductRepository(client *Client) *ProductRepository {
	return &ProductRepository{db: client.DB()}
}

var _ marketplace.ProductRepository = (*ProductRepository)(nil)

// GetByID retrieves a listing
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*marketplace.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, marketplace.ErrProductNotFound
		}
		return nil, err
	}
	return &marketplace.Product{
		ID:       model.ID,
		SellerID: model.SellerID,
		Title:    model.Title,
		Price:    model.Price,
	}, nil
}

// TransactionRepository implements marketplace.TransactionRepository
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates the purchase history repository
func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{db: client.DB()}
}

var _ marketplace.TransactionRepository = (*TransactionRepository)(nil)

// ListByBuyer retrieves a buyer's most recent transactions, newest first
func (r *TransactionRepository) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*marketplace.Transaction, error) {
	var models []TransactionModel
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	txs := make([]*marketplace.Transaction, len(models))
	for i, m := range models {
		txs[i] = &marketplace.Transaction{
			ID:        m.ID,
			BuyerID:   m.BuyerID,
			ProductID: m.ProductID,
			Amount:    m.Amount,
			Status:    marketplace.TransactionStatus(m.Status),
			CreatedAt: m.CreatedAt,
		}
	}
	return txs, nil
}

// CountByBuyerSince counts a buyer's transactions after an instant,
// optionally restricted to a status
func (r *TransactionRepository) CountByBuyerSince(ctx context.Context, buyerID string, since time.Time, status marketplace.TransactionStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&TransactionModel{}).
		Where("buyer_id = ? AND created_at >= ?", buyerID, since)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

// ChatRepository implements marketplace.ChatRepository
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates the chat history repository
func NewChatRepository(client *Client) *ChatRepository {
	return &ChatRepository{db: client.DB()}
}

var _ marketplace.ChatRepository = (*ChatRepository)(nil)

// ListByUserAndProduct retrieves a buyer's chat messages about a product,
// oldest first
func (r *ChatRepository) ListByUserAndProduct(ctx context.Context, userID, productID string) ([]*marketplace.ChatMessage, error) {
	var models []ChatMessageModel
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND product_id = ?", userID, productID).
		Order("sent_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	msgs := make([]*marketplace.ChatMessage, len(models))
	for i, m := range models {
		msgs[i] = &marketplace.ChatMessage{
			ID:        m.ID,
			SenderID:  m.SenderID,
			ProductID: m.ProductID,
			Body:      m.Body,
			SentAt:    m.SentAt,
		}
	}
	return msgs, nil
}
