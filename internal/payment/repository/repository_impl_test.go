package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.EventRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRecord(node *snowflake.Node, eventID, orderID string) *domain.EventRecord {
	return &domain.EventRecord{
		ID:              node.Generate(),
		Provider:        "razorpay",
		ProviderEventID: eventID,
		EventType:       "payment.captured",
		OrderID:         orderID,
		PaymentID:       "pay_" + eventID,
		Status:          domain.StatusCaptured,
		Outcome:         domain.OutcomeReceived,
		Payload:         []byte(`{}`),
		ReceivedAt:      time.Now().UTC(),
	}
}

func TestInsertEventDedupes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	inserted, err := r.InsertEvent(ctx, db, newRecord(node, "evt_1", "order_1"))
	if err != nil || !inserted {
		t.Fatalf("expected first insert, got %v %v", inserted, err)
	}
	inserted, err = r.InsertEvent(ctx, db, newRecord(node, "evt_1", "order_1"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate event id to be skipped")
	}

	var count int64
	db.Model(&domain.EventRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestMarkProcessedAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	record := newRecord(node, "evt_2", "order_2")
	if _, err := r.InsertEvent(ctx, db, record); err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := time.Now().UTC()
	rec := &domain.Reconciliation{Matched: true, AmountMinor: 50000, Reason: domain.ReasonOrderTotalMajorUnits}
	if err := r.MarkProcessed(ctx, db, record.ID, domain.OutcomeSynced, rec, "", now); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	found, err := r.FindEvent(ctx, db, "razorpay", "evt_2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ProcessedAt == nil {
		t.Fatalf("expected processed record, got %+v", found)
	}
	if found.Outcome != domain.OutcomeSynced || found.Reconciliation != domain.ReasonOrderTotalMajorUnits || found.AmountMinor != 50000 {
		t.Fatalf("unexpected record %+v", found)
	}

	missing, err := r.FindEvent(ctx, db, "razorpay", "evt_missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing event, got %+v %v", missing, err)
	}
}

func TestListEventsPaginates(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	r := Provide()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := r.InsertEvent(ctx, db, newRecord(node, "evt_"+id, "order_x")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := r.InsertEvent(ctx, db, newRecord(node, "evt_other", "order_y")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	items, err := r.ListEvents(ctx, db, domain.ListEventsFilter{OrderID: "order_x"}, pagination.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected limit+1 rows, got %d", len(items))
	}
	if items[0].ProviderEventID != "evt_c" {
		t.Fatalf("expected newest first, got %s", items[0].ProviderEventID)
	}

	token, _ := pagination.EncodeCursor(pagination.Cursor{ID: items[1].ID.String()})
	next, err := r.ListEvents(ctx, db, domain.ListEventsFilter{OrderID: "order_x"}, pagination.Pagination{PageSize: 2, PageToken: token})
	if err != nil {
		t.Fatalf("list next: %v", err)
	}
	if len(next) != 1 || next[0].ProviderEventID != "evt_a" {
		t.Fatalf("expected only evt_a on next page, got %d", len(next))
	}

	if _, err := r.ListEvents(ctx, db, domain.ListEventsFilter{}, pagination.Pagination{PageToken: "garbage!"}); err == nil {
		t.Fatalf("expected invalid token error")
	}
}
