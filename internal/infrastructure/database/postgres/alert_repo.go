package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-risk-engine/internal/domain/alert"
)

// FraudAlertModel is the database model for fraud alerts
type FraudAlertModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"type:varchar(64);index;not null"`
	TransactionID string    `gorm:"type:varchar(64);index"`
	AlertType     string    `gorm:"type:varchar(30);index;not null"`
	Severity      string    `gorm:"type:varchar(20);index;not null"`
	Title         string    `gorm:"type:varchar(200);not null"`
	Message       string    `gorm:"type:text"`
	RiskScore     int       `gorm:"not null"`
	RiskFactors   string    `gorm:"type:jsonb"`
	Metadata      string    `gorm:"type:jsonb"`

	Status         string `gorm:"type:varchar(20);index;not null"`
	AssignedTo     string `gorm:"type:varchar(64)"`
	AcknowledgedBy string `gorm:"type:varchar(64)"`
	AcknowledgedAt *time.Time
	ResolvedBy     string `gorm:"type:varchar(64)"`
	ResolvedAt     *time.Time
	ResolutionNote string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index;not null"`
}

// TableName returns the table name for fraud alerts
func (FraudAlertModel) TableName() string {
	return "fraud_alerts"
}

// AlertRepository implements alert.Repository
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(client *Client) *AlertRepository {
	return &AlertRepository{db: client.DB()}
}

var _ alert.Repository = (*AlertRepository)(nil)

// Create stores a fraud alert
func (r *AlertRepository) Create(ctx context.Context, a *alert.FraudAlert) error {
	return r.db.WithContext(ctx).Create(alertToModel(a)).Error
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*alert.FraudAlert, error) {
	var model FraudAlertModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, alert.ErrNotFound
		}
		return nil, err
	}
	return modelToAlert(&model), nil
}

// List retrieves alerts newest first, optionally filtered by status
func (r *AlertRepository) List(ctx context.Context, status alert.Status, limit, offset int) ([]*alert.FraudAlert, error) {
	query := r.db.WithContext(ctx).Model(&FraudAlertModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var models []FraudAlertModel
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}

	alerts := make([]*alert.FraudAlert, len(models))
	for i, m := range models {
		alerts[i] = modelToAlert(&m)
	}
	return alerts, nil
}

// UpdateStatus applies a guarded transition. The WHERE clause carries
// the expected current status so concurrent reviewers cannot both win:
// the losing update matches zero rows and reports ok=false.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update alert.StatusUpdate) (*alert.FraudAlert, bool, error) {
	fields := map[string]interface{}{
		"status": string(update.To),
	}
	switch update.To {
	case alert.StatusAcknowledged:
		fields["acknowledged_by"] = update.ReviewerID
		fields["acknowledged_at"] = update.At
	case alert.StatusResolved, alert.StatusFalsePositive:
		fields["resolved_by"] = update.ReviewerID
		fields["resolved_at"] = update.At
		fields["resolution_note"] = update.Note
	}

	result := r.db.WithContext(ctx).Model(&FraudAlertModel{}).
		Where("id = ? AND status = ?", id, string(update.From)).
		Updates(fields)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	updated, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// AggregateStats computes reviewer dashboard statistics
func (r *AlertRepository) AggregateStats(ctx context.Context) (*alert.Stats, error) {
	stats := alert.NewStats()
	db := r.db.WithContext(ctx).Model(&FraudAlertModel{})

	if err := db.Session(&gorm.Session{}).
		Where("status = ?", string(alert.StatusActive)).
		Count(&stats.TotalActive).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := db.Session(&gorm.Session{}).
		Where("created_at >= ?", dayStart).
		Count(&stats.TotalToday).Error; err != nil {
		return nil, err
	}

	if err := db.Session(&gorm.Session{}).
		Where("status = ? AND severity IN ?", string(alert.StatusActive), []string{"high", "critical"}).
		Count(&stats.HighPriority).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byType []bucket
	if err := db.Session(&gorm.Session{}).
		Select("alert_type AS key, COUNT(*) AS count").
		Group("alert_type").
		Scan(&byType).Error; err != nil {
		return nil, err
	}
	for _, b := range byType {
		stats.ByType[alert.Type(b.Key)] = b.Count
	}

	var byStatus []bucket
	if err := db.Session(&gorm.Session{}).
		Select("status AS key, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, b := range byStatus {
		stats.ByStatus[alert.Status(b.Key)] = b.Count
	}

	var avgMinutes sql.NullFloat64
	if err := db.Session(&gorm.Session{}).
		Select("AVG(EXTRACT(EPOCH FROM resolved_at - acknowledged_at) / 60)").
		Where("acknowledged_at IS NOT NULL AND resolved_at IS NOT NULL").
		Scan(&avgMinutes).Error; err != nil {
		return nil, err
	}
	if avgMinutes.Valid {
		stats.AvgResolutionMinutes = avgMinutes.Float64
	}

	closed := stats.ByStatus[alert.StatusResolved] + stats.ByStatus[alert.StatusFalsePositive]
	if closed > 0 {
		stats.FalsePositiveRate = float64(stats.ByStatus[alert.StatusFalsePositive]) / float64(closed) * 100
	}
	return stats, nil
}

func alertToModel(a *alert.FraudAlert) *FraudAlertModel {
	factors, _ := json.Marshal(a.RiskFactors)
	metadata, _ := json.Marshal(a.Metadata)

	return &FraudAlertModel{
		ID:             a.ID,
		UserID:         a.UserID,
		TransactionID:  a.TransactionID,
		AlertType:      string(a.AlertType),
		Severity:       string(a.Severity),
		Title:          a.Title,
		Message:        a.Message,
		RiskScore:      a.RiskScore,
		RiskFactors:    string(factors),
		Metadata:       string(metadata),
		Status:         string(a.Status),
		AssignedTo:     a.AssignedTo,
		AcknowledgedBy: a.AcknowledgedBy,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedBy:     a.ResolvedBy,
		ResolvedAt:     a.ResolvedAt,
		ResolutionNote: a.ResolutionNote,
		CreatedAt:      a.CreatedAt,
	}
}

func modelToAlert(m *FraudAlertModel) *alert.FraudAlert {
	var factors []string
	var metadata map[string]string
	json.Unmarshal([]byte(m.RiskFactors), &factors)
	json.Unmarshal([]byte(m.Metadata), &metadata)

	return &alert.FraudAlert{
		ID:             m.ID,
		UserID:         m.UserID,
		TransactionID:  m.TransactionID,
		AlertType:      alert.Type(m.AlertType),
		Severity:       alert.Severity(m.Severity),
		Title:          m.Title,
		Message:        m.Message,
		RiskScore:      m.RiskScore,
		RiskFactors:    factors,
		Metadata:       metadata,
		Status:         alert.Status(m.Status),
		AssignedTo:     m.AssignedTo,
		AcknowledgedBy: m.AcknowledgedBy,
		AcknowledgedAt: m.AcknowledgedAt,
		ResolvedBy:     m.ResolvedBy,
		ResolvedAt:     m.ResolvedAt,
		ResolutionNote: m.ResolutionNote,
		CreatedAt:      m.CreatedAt,
	}
}
