package mutation

import "testing"

type recorder struct {
	removed []Record
	styles  []Record
	parents []string
}

func (r *recorder) NodesRemoved(rs []Record)    { r.removed = append(r.removed, rs...) }
func (r *recorder) StyleChanged(rec Record)     { r.styles = append(r.styles, rec) }
func (r *recorder) ChildrenChanged(ps []string) { r.parents = append(r.parents, ps...) }

func TestCompress_ConsecutiveAttr(t *testing.T) {
	records := []Record{
		{Op: OpAttr, Key: "k1", Name: "style", Value: "a", OldValue: "orig"},
		{Op: OpAttr, Key: "k1", Name: "style", Value: "b", OldValue: "a"},
		{Op: OpAttr, Key: "k1", Name: "style", Value: "c", OldValue: "b"},
	}

	got := Compress(records)
	if len(got) != 1 {
		t.Fatalf("Compress: got %d records, want 1", len(got))
	}
	if got[0].Value != "c" || got[0].OldValue != "orig" {
		t.Errorf("got value=%q old=%q, want c/orig", got[0].Value, got[0].OldValue)
	}
}

func TestCompress_RemovalsKept(t *testing.T) {
	records := []Record{
		{Op: OpRemove, Key: "a"},
		{Op: OpRemove, Key: "b"},
		{Op: OpAttr, Key: "c", Name: "style"},
		{Op: OpAttr, Key: "d", Name: "style"},
	}
	if got := Compress(records); len(got) != 4 {
		t.Fatalf("Compress: got %d records, want 4", len(got))
	}
}

func TestDispatch(t *testing.T) {
	records := []Record{
		{Op: OpRemove, Key: "slot1", ParentKey: "feed"},
		{Op: OpInsert, Key: "n9", ParentKey: "feed"},
		{Op: OpInsert, Key: "n10", ParentKey: "slot2"},
		{Op: OpAttr, Key: "slot3", Name: "style", Value: "transform: none"},
		{Op: OpAttr, Key: "slot3", Name: "class", Value: "x"},
	}

	var r recorder
	Dispatch(records, &r)

	if len(r.removed) != 1 || r.removed[0].Key != "slot1" {
		t.Errorf("removed = %+v", r.removed)
	}
	if len(r.styles) != 1 || r.styles[0].Key != "slot3" {
		t.Errorf("styles = %+v", r.styles)
	}
	if len(r.parents) != 2 || r.parents[0] != "feed" || r.parents[1] != "slot2" {
		t.Errorf("parents = %v, want [feed slot2]", r.parents)
	}
}
