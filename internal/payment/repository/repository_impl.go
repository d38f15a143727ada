package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertEvent reports false when the (provider, provider_event_id) pair is already logged.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) MarkProcessed(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	outcome string,
	rec *domain.Reconciliation,
	errMsg string,
	processedAt time.Time,
) error {
	updates := map[string]any{
		"outcome":      outcome,
		"error":        errMsg,
		"processed_at": processedAt,
	}
	if rec != nil {
		updates["reconciliation"] = rec.Reason
		updates["matched"] = rec.Matched
		updates["amount_minor"] = rec.AmountMinor
	}
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListEvents returns newest first, fetching one extra row so callers can
// tell whether another page exists.
func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter domain.ListEventsFilter, page pagination.Pagination) ([]*domain.EventRecord, error) {
	query := db.WithContext(ctx).Model(&domain.EventRecord{})
	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		cursorID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		query = query.Where("id < ?", cursorID)
	}

	var items []*domain.EventRecord
	if err := query.Order("id DESC").Limit(page.Limit() + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
