package embeddb

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures Open. The zero value is valid: primary key field
// defaults to "_id", sentinels default to "$$deleted"/"$$addIndex"/
// "$$deleteIndex", and a nil Logger disables logging entirely.
type Options struct {
	// PrimaryKeyField names the field holding each record's primary key.
	// Defaults to "_id".
	PrimaryKeyField string

	// Sentinels overrides the reserved envelope keys used in the log file.
	// Zero value uses the defaults.
	Sentinels Sentinels

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Verbose is accepted but not read by the store: debug-level entries
	// (appends, compactions) are sent to Logger whenever it is set, and
	// only its handler's level decides whether they are kept.
	Verbose bool
}

func (o Options) withDefaults() Options {
	if o.PrimaryKeyField == "" {
		o.PrimaryKeyField = "_id"
	}
	if (o.Sentinels == Sentinels{}) {
		o.Sentinels = defaultSentinels()
	}
	return o
}

// Store is an embedded, single-process, file-backed document store. All
// exported methods are safe to call from multiple goroutines: every one of
// them hands its work to a single FIFO serializer goroutine, so callers
// never need their own locking.
type Store struct {
	opt    Options
	logger *slog.Logger
	path   string

	log        *Log
	indexes    *IndexSet
	serializer *serializer
	lock       *lockFile

	lastDigest uint64

	autoMu      sync.Mutex
	autoTimer   *time.Timer
	autoStopped bool

	loadDone chan struct{}
	loadErr  error
}

// Open creates or opens the database file at path and begins loading it in
// the background: acquiring the lock, replaying the log, and performing an
// initial compaction. Callers that need to know load finished cleanly, for
// example before reading the file's bytes directly, should call Load,
// which blocks until that sequence completes. Every other Store method is
// safe to call immediately; it simply queues behind load.
func Open(path string, opt Options) (*Store, error) {
	opt = opt.withDefaults()

	st := &Store{
		opt:      opt,
		logger:   opt.Logger,
		path:     path,
		indexes:  newIndexSet(opt.PrimaryKeyField),
		loadDone: make(chan struct{}),
	}

	lg, err := openLog(path, opt.Sentinels, opt.Logger)
	if err != nil {
		return nil, err
	}
	st.log = lg
	st.serializer = newSerializer()

	go st.bootstrap()

	return st, nil
}

// bootstrap runs once, outside the serializer (it IS what the serializer is
// paused waiting for): acquire the lock, hydrate from the log, perform the
// initial compaction, then unpause the serializer.
func (st *Store) bootstrap() {
	err := st.doBootstrap()
	st.loadErr = err
	close(st.loadDone)
	st.serializer.markReady(err)
}

func (st *Store) doBootstrap() error {
	lock, err := acquireLock(st.path)
	if err != nil {
		return err
	}
	st.lock = lock

	if err := st.log.Hydrate(func(e logEntry) {
		st.applyReplayEntry(e)
	}); err != nil {
		return err
	}

	if st.logger != nil {
		st.logger.Info("embeddb: loaded", "path", st.path, "records", len(st.indexes.allRecords()))
	}

	return st.compactLocked(nil)
}

// applyReplayEntry dispatches one log entry during hydrate. Errors here are
// never propagated: a delete of an absent key, or an addIndex that
// conflicts with existing data, are recoverable-by-convention situations
// that the log's own ordering is expected to resolve by the time replay
// finishes reading the rest of the file. A genuinely inconsistent log is
// left for operator intervention, not surfaced as a replay-time error.
func (st *Store) applyReplayEntry(e logEntry) {
	switch e.kind {
	case opUpsert:
		_, _, _ = st.indexes.Upsert(e.record, ModeAny, st.genKey)
	case opDelete:
		pk, _ := getField(e.record, st.opt.PrimaryKeyField)
		_, _ = st.indexes.Delete(pk)
	case opAddIndex:
		// Back-fill from whatever is already live at this point in replay.
		// For a canonical (post-compaction) log this set is always empty,
		// since addIndex entries are always written before any record
		// entry, so this reduces to a plain no-backfill install. It
		// additionally handles a non-canonical log (an index created live,
		// after some inserts, never compacted before close) without losing
		// those records from the index, which a bare nil backfill would.
		_, _ = st.indexes.AddIndex(e.descriptor, st.indexes.allRecords())
	case opDeleteIndex:
		st.indexes.RemoveIndex(e.fieldName)
	}
}

func (st *Store) genKey(candidate Record) (any, error) {
	return generatePrimaryKey(candidate, func(key string) bool {
		_, ok := st.indexes.primary().findOne(key)
		return ok
	})
}

// Load blocks until the background bootstrap sequence (lock, hydrate,
// initial compact) has finished, and returns its error if it failed.
func (st *Store) Load() error {
	<-st.loadDone
	return st.loadErr
}

// Reload re-hydrates from the log file without re-acquiring the lock, as a
// normal serialized task: it discards in-memory indexes (except their
// descriptors) and replays the log from scratch.
func (st *Store) Reload() error {
	_, err := submit(st.serializer, func() (struct{}, error) {
		descs := st.indexes.nonPrimaryDescriptors()
		st.indexes = newIndexSet(st.opt.PrimaryKeyField)
		for _, d := range descs {
			if _, err := st.indexes.AddIndex(d, nil); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, st.log.Hydrate(func(e logEntry) {
			st.applyReplayEntry(e)
		})
	})
	return err
}

// Insert stores record under a must-not-exist precondition.
func (st *Store) Insert(record Record) (Record, error) {
	return st.upsertOne(record, ModeMustNotExist)
}

// Update stores record under a must-exist precondition.
func (st *Store) Update(record Record) (Record, error) {
	return st.upsertOne(record, ModeMustExist)
}

// Upsert stores record regardless of whether its primary key already
// exists.
func (st *Store) Upsert(record Record) (Record, error) {
	return st.upsertOne(record, ModeAny)
}

func (st *Store) upsertOne(record Record, mode UpsertMode) (Record, error) {
	rec, err := submit(st.serializer, func() (*Record, error) {
		return st.upsertLocked(record, mode)
	})
	if err != nil {
		return nil, err
	}
	return cloneRecord(*rec), nil
}

// upsertLocked performs the in-memory mutation and its log append as one
// logical step: the log append happens strictly after the in-memory
// mutation commits, and is rolled back if the append fails.
func (st *Store) upsertLocked(record Record, mode UpsertMode) (*Record, error) {
	rec, previous, err := st.indexes.Upsert(record, mode, st.genKey)
	if err != nil {
		return nil, err
	}
	if err := st.log.Append(logEntry{kind: opUpsert, record: *rec}); err != nil {
		st.indexes.restoreAfterFailure(rec, previous)
		return nil, err
	}
	return rec, nil
}

// InsertMany, UpdateMany, UpsertMany apply the same mode to every element
// of records in order; a failure partway through stops processing, leaving
// earlier successes committed.
func (st *Store) InsertMany(records []Record) ([]Record, error) {
	return st.upsertMany(records, ModeMustNotExist)
}

func (st *Store) UpdateMany(records []Record) ([]Record, error) {
	return st.upsertMany(records, ModeMustExist)
}

func (st *Store) UpsertMany(records []Record) ([]Record, error) {
	return st.upsertMany(records, ModeAny)
}

func (st *Store) upsertMany(records []Record, mode UpsertMode) ([]Record, error) {
	out, err := submit(st.serializer, func() ([]*Record, error) {
		results := make([]*Record, 0, len(records))
		for _, r := range records {
			rec, err := st.upsertLocked(r, mode)
			if err != nil {
				return results, err
			}
			results = append(results, rec)
		}
		return results, nil
	})
	clones := make([]Record, len(out))
	for i, r := range out {
		clones[i] = cloneRecord(*r)
	}
	return clones, err
}

// Delete removes the live record with the given primary key.
func (st *Store) Delete(primaryKeyValue any) (Record, error) {
	rec, err := submit(st.serializer, func() (*Record, error) {
		existing, err := st.indexes.Delete(primaryKeyValue)
		if err != nil {
			return nil, err
		}
		if err := st.log.Append(logEntry{kind: opDelete, record: *existing}); err != nil {
			// the record is already gone from every index; re-link it so the
			// in-memory state matches what's still durably on disk.
			for _, name := range st.indexes.order {
				st.indexes.byName[name].add(existing)
			}
			return nil, err
		}
		return existing, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRecord(*rec), nil
}

// DeleteMany deletes every given primary key in order; a failure partway
// through stops processing.
func (st *Store) DeleteMany(primaryKeyValues []any) ([]Record, error) {
	out, err := submit(st.serializer, func() ([]*Record, error) {
		results := make([]*Record, 0, len(primaryKeyValues))
		for _, pk := range primaryKeyValues {
			existing, err := st.indexes.Delete(pk)
			if err != nil {
				return results, err
			}
			if err := st.log.Append(logEntry{kind: opDelete, record: *existing}); err != nil {
				for _, name := range st.indexes.order {
					st.indexes.byName[name].add(existing)
				}
				return results, err
			}
			results = append(results, existing)
		}
		return results, nil
	})
	clones := make([]Record, len(out))
	for i, r := range out {
		clones[i] = cloneRecord(*r)
	}
	return clones, err
}

// GetAll returns every live record.
func (st *Store) GetAll() ([]Record, error) {
	return submit(st.serializer, func() ([]Record, error) {
		all := st.indexes.allRecords()
		out := make([]Record, len(all))
		for i, r := range all {
			out[i] = cloneRecord(*r)
		}
		return out, nil
	})
}

// Find looks up every live record linked under value in the named index.
// Returns NoIndexError if no such index has been created.
func (st *Store) Find(fieldName string, value any) ([]Record, error) {
	return submit(st.serializer, func() ([]Record, error) {
		ix, ok := st.indexes.hasIndex(IndexDescriptor{FieldName: fieldName})
		if !ok {
			return nil, &NoIndexError{FieldName: fieldName}
		}
		recs := ix.find(value)
		out := make([]Record, len(recs))
		for i, r := range recs {
			out[i] = cloneRecord(*r)
		}
		return out, nil
	})
}

// FindOne returns one live record linked under value in the named index,
// or ok=false if none is.
func (st *Store) FindOne(fieldName string, value any) (rec Record, ok bool, err error) {
	type result struct {
		rec Record
		ok  bool
	}
	r, err := submit(st.serializer, func() (result, error) {
		ix, exists := st.indexes.hasIndex(IndexDescriptor{FieldName: fieldName})
		if !exists {
			return result{}, &NoIndexError{FieldName: fieldName}
		}
		found, ok := ix.findOne(value)
		if !ok {
			return result{}, nil
		}
		return result{rec: cloneRecord(*found), ok: true}, nil
	})
	return r.rec, r.ok, err
}

// EnsureIndex creates the named index if it doesn't already exist,
// back-filling it from every live record, and logs the directive so replay
// reconstructs it. A call naming a field that already has an index with
// identical Unique/Sparse settings is a no-op: no back-fill, no log append.
func (st *Store) EnsureIndex(desc IndexDescriptor) error {
	_, err := submit(st.serializer, func() (struct{}, error) {
		if existing, ok := st.indexes.hasIndex(desc); ok && existing.desc == desc {
			return struct{}{}, nil
		}
		if _, err := st.indexes.AddIndex(desc, st.indexes.allRecords()); err != nil {
			return struct{}{}, err
		}
		if err := st.log.Append(logEntry{kind: opAddIndex, descriptor: desc}); err != nil {
			st.indexes.RemoveIndex(desc.FieldName)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// DeleteIndex detaches the named index. The primary index can never be
// removed and this call is a no-op for it. Removing a nonexistent
// non-primary index returns NoIndexError (see DESIGN.md).
func (st *Store) DeleteIndex(fieldName string) error {
	_, err := submit(st.serializer, func() (struct{}, error) {
		if fieldName == st.opt.PrimaryKeyField {
			return struct{}{}, nil
		}
		if !st.indexes.RemoveIndex(fieldName) {
			return struct{}{}, &NoIndexError{FieldName: fieldName}
		}
		return struct{}{}, st.log.Append(logEntry{kind: opDeleteIndex, fieldName: fieldName})
	})
	return err
}

// Compact rewrites the log in canonical form: index declarations first,
// then every live record, optionally ordered by less. If the resulting
// content would be byte-identical to what's already on disk, the rewrite
// is skipped entirely.
func (st *Store) Compact(less LessFunc) error {
	_, err := submit(st.serializer, func() (struct{}, error) {
		return struct{}{}, st.compactLocked(less)
	})
	return err
}

func (st *Store) compactLocked(less LessFunc) error {
	records := st.indexes.allRecords()
	if less != nil {
		sortRecordsWith(records, less)
	} else {
		sortRecordsDefault(records, st.opt.PrimaryKeyField)
	}
	onDisk, err := st.log.digestNow()
	if err != nil {
		return err
	}
	digest, skipped, err := st.log.Rewrite(st.indexes.nonPrimaryDescriptors(), records, onDisk)
	if err != nil {
		return err
	}
	if skipped && st.logger != nil {
		st.logger.Debug("embeddb: compact skipped, content unchanged")
	}
	st.lastDigest = digest
	return nil
}

func sortRecordsWith(records []*Record, less LessFunc) {
	sortRecordsBy(records, func(a, b *Record) bool { return less(*a, *b) })
}

// Wait blocks until every task queued before this call has run, useful in
// tests and for callers about to read the log file's bytes directly.
func (st *Store) Wait() {
	st.serializer.Wait()
}

// Close releases the lock file and stops any auto-compaction timer. It
// does not flush a final compaction; call Compact first if that's wanted.
// Close waits for any in-flight bootstrap to finish first, so it never
// races bootstrap's assignment of the lock handle.
func (st *Store) Close() error {
	_ = st.Load()
	st.StopAutoCompaction()
	st.serializer.Close()
	if st.lock != nil {
		st.lock.Release()
	}
	return st.log.Close()
}

// Stats returns a snapshot of store size.
func (st *Store) Stats() (Stats, error) {
	return submit(st.serializer, st.statsLocked)
}
