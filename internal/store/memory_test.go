package store

import (
	"context"
	"errors"
	"testing"

	"aicaptain/internal/model"
)

func TestMemoryAddListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for _, port := range []string{"wp-1", "wp-2", "wp-3"} {
		rec, err := m.Add(ctx, RouteRecord{StartPortID: port, EndPortID: "wp-9"})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Fatalf("Add should assign id and timestamp: %+v", rec)
		}
		ids = append(ids, rec.ID)
	}

	page, next, err := m.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if next != ids[1] {
		t.Fatalf("next cursor: got %q want %q", next, ids[1])
	}

	page, next, _ = m.List(ctx, next, 2)
	if len(page) != 1 || page[0].ID != ids[0] || next != "" {
		t.Fatalf("unexpected last page: %+v next=%q", page, next)
	}
}

func TestMemoryGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	route := model.OptimizedRoute{Metrics: model.RouteMetrics{DistanceNM: 8400}}
	rec, _ := m.Add(ctx, NewRecord(model.OptimizationRequest{StartPortID: "wp-1", EndPortID: "wp-2"}, route))

	got, err := m.Get(ctx, rec.ID)
	if err != nil || got.Route.Metrics.DistanceNM != 8400 || got.StartPortID != "wp-1" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if err := m.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := m.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	items, _, _ := m.List(ctx, "", 10)
	if len(items) != 0 {
		t.Fatalf("list after delete: %+v", items)
	}
}
