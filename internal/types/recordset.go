// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// MetadataRecord is one row of the metadata table, reduced to the fields the
// detectors report. ID is the SQLite rowid.
type MetadataRecord struct {
	ID       int64
	Filename string
	Duration string
}

// RemovalSet is a set of records destined for removal, keyed by record ID.
// Iteration follows the order in which records were first added.
//
// A RemovalSet is not safe for concurrent use; the scan aggregator owns it.
type RemovalSet struct {
	records *orderedmap.OrderedMap[int64, MetadataRecord]
}

// NewRemovalSet returns an empty set, optionally seeded with records.
func NewRemovalSet(records ...MetadataRecord) *RemovalSet {
	rs := &RemovalSet{records: orderedmap.NewOrderedMap[int64, MetadataRecord]()}
	for _, r := range records {
		rs.Add(r)
	}
	return rs
}

// Add inserts a record. It returns false if a record with the same ID was
// already present, in which case the set is unchanged.
func (rs *RemovalSet) Add(r MetadataRecord) bool {
	rs.init()
	if _, ok := rs.records.Get(r.ID); ok {
		return false
	}
	rs.records.Set(r.ID, r)
	return true
}

// Merge adds every record of other and returns how many were new.
func (rs *RemovalSet) Merge(other *RemovalSet) int {
	if other == nil || other.records == nil {
		return 0
	}
	added := 0
	for el := other.records.Front(); el != nil; el = el.Next() {
		if rs.Add(el.Value) {
			added++
		}
	}
	return added
}

// Contains reports whether a record with the given ID is in the set.
func (rs *RemovalSet) Contains(id int64) bool {
	if rs == nil || rs.records == nil {
		return false
	}
	_, ok := rs.records.Get(id)
	return ok
}

// Len returns the number of records in the set.
func (rs *RemovalSet) Len() int {
	if rs == nil || rs.records == nil {
		return 0
	}
	return rs.records.Len()
}

// Clear empties the set.
func (rs *RemovalSet) Clear() {
	rs.records = orderedmap.NewOrderedMap[int64, MetadataRecord]()
}

// Records returns the records in insertion order.
func (rs *RemovalSet) Records() []MetadataRecord {
	if rs == nil || rs.records == nil {
		return nil
	}
	out := make([]MetadataRecord, 0, rs.records.Len())
	for el := rs.records.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// IDs returns the record IDs sorted ascending.
func (rs *RemovalSet) IDs() []int64 {
	if rs == nil || rs.records == nil {
		return nil
	}
	ids := rs.records.Keys()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy of the set.
func (rs *RemovalSet) Clone() *RemovalSet {
	out := NewRemovalSet()
	out.Merge(rs)
	return out
}

func (rs *RemovalSet) init() {
	if rs.records == nil {
		rs.records = orderedmap.NewOrderedMap[int64, MetadataRecord]()
	}
}
