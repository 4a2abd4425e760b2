package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperifyio/lidlreceipt/internal/receipt"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveGet(t *testing.T) {
	s := openTemp(t)
	amount := "2,98"
	rec := Record{
		ID:          "ticket-1",
		Source:      "ticket-1.html",
		ExtractedAt: time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC),
		Receipt: &receipt.Receipt{
			Date:     "2024-05-17",
			Currency: &receipt.Currency{Code: "EUR", Symbol: "EUR"},
			Items:    []receipt.LineItem{{Name: "Eau de coco", Quantity: "2", OriginalAmount: &amount, Discounts: []receipt.Discount{}}},
		},
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get("ticket-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != "ticket-1.html" || !got.ExtractedAt.Equal(rec.ExtractedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Receipt == nil || len(got.Receipt.Items) != 1 || got.Receipt.Items[0].Name != "Eau de coco" {
		t.Fatalf("receipt not round-tripped: %+v", got.Receipt)
	}
	if got.Receipt.Currency == nil || got.Receipt.Currency.Code != "EUR" {
		t.Fatalf("currency lost: %+v", got.Receipt.Currency)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListAndReplace(t *testing.T) {
	s := openTemp(t)
	for _, id := range []string{"b", "a", "b"} {
		if err := s.Save(Record{ID: id, Source: id + ".html", Receipt: &receipt.Receipt{Items: []receipt.LineItem{}}}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	recs, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Fatalf("unexpected list: %+v", recs)
	}
}

func TestStore_RejectsEmptyID(t *testing.T) {
	s := openTemp(t)
	if err := s.Save(Record{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
