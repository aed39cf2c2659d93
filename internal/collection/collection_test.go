package collection

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestUpsertIdempotentOnIdentity(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	db := New(WithClock(clock.now))

	if !db.Upsert(Item{ID: "Cabc123", Key: "m1", Views: 100, Markup: "<a>x</a>"}) {
		t.Fatal("first upsert should create")
	}
	first, _ := db.Get("Cabc123")

	if db.Upsert(Item{ID: "Cabc123", Key: "m9", Views: 0, Likes: 7}) {
		t.Fatal("second upsert should merge")
	}
	if db.Len() != 1 {
		t.Fatalf("len = %d, want 1", db.Len())
	}
	got, _ := db.Get("Cabc123")
	if got.Key != "m9" {
		t.Errorf("key = %q, want refreshed m9", got.Key)
	}
	if !got.FirstSeenAt.Equal(first.FirstSeenAt) {
		t.Errorf("firstSeenAt changed: %v -> %v", first.FirstSeenAt, got.FirstSeenAt)
	}
	if !got.LastSeenAt.After(first.LastSeenAt) {
		t.Errorf("lastSeenAt not advanced: %v", got.LastSeenAt)
	}
	if got.Views != 100 || got.Likes != 7 {
		t.Errorf("counters = %d/%d, want 100/7", got.Views, got.Likes)
	}
	if got.Markup != "<a>x</a>" {
		t.Errorf("markup lost: %q", got.Markup)
	}
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	db := New()
	if db.Upsert(Item{Views: 10}) || db.Len() != 0 {
		t.Error("item without id must be dropped")
	}
}

func TestValuesInsertionOrder(t *testing.T) {
	db := New()
	for _, id := range []string{"c", "a", "b"} {
		db.Upsert(Item{ID: id})
	}
	db.Upsert(Item{ID: "a", Views: 5})
	vals := db.Values()
	if len(vals) != 3 || vals[0].ID != "c" || vals[1].ID != "a" || vals[2].ID != "b" {
		t.Errorf("order = %+v", vals)
	}
	db.Clear()
	if db.Len() != 0 {
		t.Error("clear left records behind")
	}
	db.Upsert(Item{ID: "z"})
	if v := db.Values(); v[0].Seq != 1 {
		t.Errorf("seq after clear = %d, want 1", v[0].Seq)
	}
}
