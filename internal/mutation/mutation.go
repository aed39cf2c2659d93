// Package mutation defines the DOM change records the page reports while the
// engine is watching it, and routes them to listeners.
package mutation

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert Op = "insert" // node added under ParentKey
	OpRemove Op = "remove" // node removed from ParentKey, HTML holds its subtree
	OpAttr   Op = "attr"   // attribute Name changed from OldValue to Value
	OpText   Op = "text"   // character data changed
)

// Record is a single DOM mutation.
type Record struct {
	Op        Op     `json:"op"`
	Key       string `json:"key,omitempty"`        // affected node's page key
	ParentKey string `json:"parent_key,omitempty"` // parent at the time of the change
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
	OldValue  string `json:"old_value,omitempty"`
	HTML      string `json:"html,omitempty"` // serialised subtree for insert/remove
}

// Listener consumes mutations grouped by kind.
type Listener interface {
	NodesRemoved(records []Record)
	StyleChanged(record Record)
	ChildrenChanged(parentKeys []string)
}

// Dispatch compresses a batch and hands it to l.
func Dispatch(records []Record, l Listener) {
	records = Compress(records)

	var removed []Record
	var parents []string
	seen := make(map[string]bool)
	for _, r := range records {
		switch r.Op {
		case OpRemove:
			removed = append(removed, r)
		case OpAttr:
			if r.Name == "style" {
				l.StyleChanged(r)
			}
			continue
		}
		if (r.Op == OpInsert || r.Op == OpRemove || r.Op == OpText) && r.ParentKey != "" && !seen[r.ParentKey] {
			seen[r.ParentKey] = true
			parents = append(parents, r.ParentKey)
		}
	}
	if len(removed) > 0 {
		l.NodesRemoved(removed)
	}
	if len(parents) > 0 {
		l.ChildrenChanged(parents)
	}
}

// Compress folds consecutive attribute changes on the same (key, name) into
// one record that keeps the first old value and the last new value. Inserts
// and removals are never folded.
func Compress(records []Record) []Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Op != OpAttr {
			result = append(result, rec)
			continue
		}
		firstOld := rec.OldValue
		j := i + 1
		for j < len(records) &&
			records[j].Op == OpAttr &&
			records[j].Key == rec.Key &&
			records[j].Name == rec.Name {
			rec = records[j]
			j++
		}
		rec.OldValue = firstOld
		result = append(result, rec)
		i = j - 1
	}
	return result
}
