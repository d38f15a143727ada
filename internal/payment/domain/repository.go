package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListEventsFilter struct {
	Provider string
	OrderID  string
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []*EventRecord `json:"events"`
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, rec *Reconciliation, errMsg string, processedAt time.Time) error
	ListEvents(ctx context.Context, db *gorm.DB, filter ListEventsFilter, page pagination.Pagination) ([]*EventRecord, error)
}
