package embeddb

// IndexDescriptor describes a secondary (or the primary) index: which field
// it's keyed on, whether it enforces uniqueness, and whether it ignores
// records with a null/missing value at that field.
type IndexDescriptor struct {
	FieldName string
	Unique    bool
	Sparse    bool
}

// indexKind is a closed set of variants for index, preferred here over an
// interface with two implementations per the design notes: the set of
// variants (unique, multi-valued) is fixed and will not grow.
type indexKind uint8

const (
	indexUnique indexKind = iota
	indexMulti
)

// index is a single name -> record mapping maintained alongside the primary
// store. A unique index maps each key to at most one record; a multi-valued
// index maps each key to a set of records (keyed internally by record
// pointer identity, since every live record has exactly one canonical
// *Record allocated for it, see record.go's freezeRecord).
type index struct {
	desc IndexDescriptor

	kind       indexKind
	uniqueData map[indexKey]*Record
	multiData  map[indexKey]map[*Record]struct{}
}

func newIndex(desc IndexDescriptor) *index {
	ix := &index{desc: desc}
	if desc.Unique {
		ix.kind = indexUnique
		ix.uniqueData = make(map[indexKey]*Record)
	} else {
		ix.kind = indexMulti
		ix.multiData = make(map[indexKey]map[*Record]struct{})
	}
	return ix
}

// add links rec under its value(s) at desc.FieldName. If that value is an
// array, rec is linked under each element. A null/missing value is linked
// under the null key unless the index is sparse, in which case it is
// skipped entirely.
func (ix *index) add(rec *Record) error {
	val, present := getPath(*rec, ix.desc.FieldName)
	if arr, ok := val.([]any); ok && present {
		for _, elem := range arr {
			if err := ix.addOne(elem, rec); err != nil {
				return err
			}
		}
		return nil
	}
	if !present {
		val = nil
	}
	if val == nil && ix.desc.Sparse {
		return nil
	}
	return ix.addOne(val, rec)
}

func (ix *index) addOne(val any, rec *Record) error {
	key := keyOf(val)
	if ix.kind == indexUnique {
		if existing, ok := ix.uniqueData[key]; ok && existing != rec {
			return &KeyViolationError{FieldName: ix.desc.FieldName, Record: *rec}
		}
		ix.uniqueData[key] = rec
		return nil
	}
	set := ix.multiData[key]
	if set == nil {
		set = make(map[*Record]struct{}, 1)
		ix.multiData[key] = set
	}
	set[rec] = struct{}{}
	return nil
}

// remove is the inverse of add. It recomputes which keys rec should be
// linked under (rather than relying on bookkeeping from a prior add call)
// so that it is always safe to call, including as a no-op on a record that
// was never added under this index, which rollback relies on.
func (ix *index) remove(rec *Record) {
	val, present := getPath(*rec, ix.desc.FieldName)
	if arr, ok := val.([]any); ok && present {
		for _, elem := range arr {
			ix.removeOne(elem, rec)
		}
		return
	}
	if !present {
		val = nil
	}
	if val == nil && ix.desc.Sparse {
		return
	}
	ix.removeOne(val, rec)
}

func (ix *index) removeOne(val any, rec *Record) {
	key := keyOf(val)
	if ix.kind == indexUnique {
		if existing, ok := ix.uniqueData[key]; ok && existing == rec {
			delete(ix.uniqueData, key)
		}
		return
	}
	set, ok := ix.multiData[key]
	if !ok {
		return
	}
	delete(set, rec)
	if len(set) == 0 {
		delete(ix.multiData, key)
	}
}

// find returns every live record linked under val.
func (ix *index) find(val any) []*Record {
	key := keyOf(val)
	if ix.kind == indexUnique {
		if r, ok := ix.uniqueData[key]; ok {
			return []*Record{r}
		}
		return nil
	}
	set := ix.multiData[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Record, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	return out
}

// findOne returns one record linked under val, arbitrarily chosen for a
// multi-valued index.
func (ix *index) findOne(val any) (*Record, bool) {
	key := keyOf(val)
	if ix.kind == indexUnique {
		r, ok := ix.uniqueData[key]
		return r, ok
	}
	for r := range ix.multiData[key] {
		return r, true
	}
	return nil, false
}

// backfill links every record in recs, in order, discarding nothing on its
// own: the caller is responsible for throwing away a partially-built index
// if backfill returns an error.
func (ix *index) backfill(recs []*Record) error {
	for _, rec := range recs {
		if err := ix.add(rec); err != nil {
			return err
		}
	}
	return nil
}
