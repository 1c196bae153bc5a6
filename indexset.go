package embeddb

// UpsertMode selects the precondition an Upsert enforces on the candidate's
// primary key before applying it.
type UpsertMode int

const (
	// ModeAny applies regardless of whether the primary key already exists.
	ModeAny UpsertMode = iota
	// ModeMustExist requires the primary key to already belong to a live
	// record (Update).
	ModeMustExist
	// ModeMustNotExist requires the primary key to not yet be in use
	// (Insert).
	ModeMustNotExist
)

// GenKeyFunc generates a fresh primary key for a candidate record that
// didn't supply one.
type GenKeyFunc func(candidate Record) (any, error)

// IndexSet is the in-memory collection of indexes owned by a Store: the
// mandatory primary index plus zero or more secondary indexes, kept
// mutually consistent across every mutation.
type IndexSet struct {
	primaryField string
	order        []string // field names in insertion order, primary first
	byName       map[string]*index
}

func newIndexSet(primaryField string) *IndexSet {
	is := &IndexSet{
		primaryField: primaryField,
		byName:       make(map[string]*index),
	}
	primary := newIndex(IndexDescriptor{FieldName: primaryField, Unique: true})
	is.byName[primaryField] = primary
	is.order = append(is.order, primaryField)
	return is
}

func (is *IndexSet) primary() *index {
	return is.byName[is.primaryField]
}

// allRecords returns every live record, in no particular order.
func (is *IndexSet) allRecords() []*Record {
	p := is.primary()
	out := make([]*Record, 0, len(p.uniqueData))
	for _, r := range p.uniqueData {
		out = append(out, r)
	}
	return out
}

// nonPrimaryDescriptors returns the descriptors of every secondary index,
// in the stable order they were created; used by compaction.
func (is *IndexSet) nonPrimaryDescriptors() []IndexDescriptor {
	out := make([]IndexDescriptor, 0, len(is.order)-1)
	for _, name := range is.order {
		if name == is.primaryField {
			continue
		}
		out = append(out, is.byName[name].desc)
	}
	return out
}

func (is *IndexSet) hasIndex(desc IndexDescriptor) (*index, bool) {
	ix, ok := is.byName[desc.FieldName]
	return ix, ok
}

// AddIndex installs a new index and back-fills it from recs (pass nil when
// the rest of the log is expected to re-insert every live record anyway).
// If backfill fails with a KeyViolation, the partially-built index is
// discarded and the error is returned.
func (is *IndexSet) AddIndex(desc IndexDescriptor, recs []*Record) (*index, error) {
	ix := newIndex(desc)
	if err := ix.backfill(recs); err != nil {
		return nil, err
	}
	if _, existed := is.byName[desc.FieldName]; !existed {
		is.order = append(is.order, desc.FieldName)
	}
	is.byName[desc.FieldName] = ix
	return ix, nil
}

// RemoveIndex detaches the named index. It returns false, changing
// nothing, for the primary index and for a name that has no index (see
// Store.DeleteIndex and the primary index removal note in DESIGN.md).
func (is *IndexSet) RemoveIndex(fieldName string) (removed bool) {
	if fieldName == is.primaryField {
		return false
	}
	if _, ok := is.byName[fieldName]; !ok {
		return false
	}
	delete(is.byName, fieldName)
	for i, name := range is.order {
		if name == fieldName {
			is.order = append(is.order[:i], is.order[i+1:]...)
			break
		}
	}
	return true
}

// Upsert runs the multi-index atomic mutation algorithm: look up the
// existing record by primary key, validate mode, normalize and freeze the
// candidate, then remove-then-add it across every index in order. If any
// index rejects the add, every index is rolled back to its pre-call state
// and the original error is returned. previous is the record that existed
// under this primary key before the call, if any; callers need it to
// restore state if the log append that should follow this call fails.
func (is *IndexSet) Upsert(candidate Record, mode UpsertMode, genKey GenKeyFunc) (rec *Record, previous *Record, err error) {
	pkVal, hasPK := getField(candidate, is.primaryField)
	if _, isUndef := pkVal.(undefinedType); hasPK && pkVal != nil && !isUndef {
		previous, _ = is.primary().findOne(pkVal)
	}

	switch mode {
	case ModeMustExist:
		if previous == nil {
			return nil, nil, &NotExistsError{Record: candidate}
		}
	case ModeMustNotExist:
		if previous != nil {
			return nil, nil, &KeyViolationError{FieldName: is.primaryField, Record: candidate}
		}
	}

	normalized := normalizeRecord(candidate)
	if v, ok := normalized[is.primaryField]; !ok || v == nil {
		newKey, err := genKey(normalized)
		if err != nil {
			return nil, nil, err
		}
		normalized[is.primaryField] = newKey
	}
	rec = freezeRecord(normalized)

	var failErr error
	for _, name := range is.order {
		ix := is.byName[name]
		if previous != nil {
			ix.remove(previous)
		}
		if err := ix.add(rec); err != nil {
			failErr = err
			break
		}
	}
	if failErr != nil {
		is.restoreAfterFailure(rec, previous)
		return nil, nil, failErr
	}
	return rec, previous, nil
}

// Delete removes the live record with the given primary key from every
// index and returns it.
func (is *IndexSet) Delete(pkVal any) (*Record, error) {
	existing, ok := is.primary().findOne(pkVal)
	if !ok {
		return nil, &NotExistsError{Record: Record{is.primaryField: pkVal}}
	}
	for _, name := range is.order {
		is.byName[name].remove(existing)
	}
	return existing, nil
}

// restoreAfterFailure undoes a partially-applied mutation: added (if
// non-nil) is removed from every index, and previous (if non-nil) is
// re-added to every index. Both index.remove and index.add are safe to call
// unconditionally thanks to pointer-identity checks and idempotent set
// semantics, so this same helper serves both the KeyViolation rollback path
// and the log-append-failure rollback path.
func (is *IndexSet) restoreAfterFailure(added *Record, previous *Record) {
	for _, name := range is.order {
		ix := is.byName[name]
		if added != nil {
			ix.remove(added)
		}
		if previous != nil {
			ix.add(previous) // cannot fail: previous was valid before this call
		}
	}
}
