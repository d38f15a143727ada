package pagination

import (
	"errors"
	"testing"
)

type row struct{ id string }

func TestCursorRoundTripAndInvalid(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" {
		t.Fatalf("expected id 42, got %q", cursor.ID)
	}

	if _, err := DecodeCursor("!!!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{id: "3"}, {id: "2"}, {id: "1"}}

	page, info, err := BuildCursorPageInfo(rows, 2, func(r *row) Cursor { return Cursor{ID: r.id} })
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(page) != 2 || !info.HasMore || info.NextPageToken == "" {
		t.Fatalf("expected trimmed page with next token, got %d rows %+v", len(page), info)
	}
	cursor, _ := DecodeCursor(info.NextPageToken)
	if cursor.ID != "2" {
		t.Fatalf("expected cursor at last returned row, got %q", cursor.ID)
	}

	page, info, _ = BuildCursorPageInfo(rows, 5, func(r *row) Cursor { return Cursor{ID: r.id} })
	if len(page) != 3 || info.HasMore {
		t.Fatalf("expected full page without more, got %d %+v", len(page), info)
	}
}

func TestLimitClamps(t *testing.T) {
	if (Pagination{}).Limit() != DefaultPageSize {
		t.Fatalf("expected default page size")
	}
	if (Pagination{PageSize: 1000}).Limit() != MaxPageSize {
		t.Fatalf("expected max page size")
	}
}
