package embeddb

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Sentinels names the reserved envelope keys used to frame tombstones and
// index directives in the log file. They must be distinct from each
// other and must not collide with an application field name.
type Sentinels struct {
	Deleted     string
	AddIndex    string
	DeleteIndex string
}

func defaultSentinels() Sentinels {
	return Sentinels{
		Deleted:     "$$deleted",
		AddIndex:    "$$addIndex",
		DeleteIndex: "$$deleteIndex",
	}
}

type opKind uint8

const (
	opUpsert opKind = iota
	opDelete
	opAddIndex
	opDeleteIndex
)

// logEntry is one of the four envelope shapes a log line can take, prior
// to being rendered to (or after being parsed from) a single line.
type logEntry struct {
	kind       opKind
	record     Record          // opUpsert, opDelete
	descriptor IndexDescriptor // opAddIndex
	fieldName  string          // opDeleteIndex
}

func encodeEntry(s Sentinels, e logEntry) (string, error) {
	switch e.kind {
	case opUpsert:
		return encodeLine(e.record)
	case opDelete:
		return encodeLine(Record{s.Deleted: e.record})
	case opAddIndex:
		return encodeLine(Record{s.AddIndex: descriptorToRecord(e.descriptor)})
	case opDeleteIndex:
		return encodeLine(Record{s.DeleteIndex: Record{"fieldName": e.fieldName}})
	default:
		return "", fmt.Errorf("embeddb: unknown log entry kind %d", e.kind)
	}
}

func decodeEntry(s Sentinels, line string) (logEntry, error) {
	raw, err := decodeLine(line)
	if err != nil {
		return logEntry{}, err
	}
	if v, ok := raw[s.Deleted]; ok {
		rec, ok := asRecord(v)
		if !ok {
			return logEntry{}, fmt.Errorf("embeddb: malformed %s envelope", s.Deleted)
		}
		return logEntry{kind: opDelete, record: rec}, nil
	}
	if v, ok := raw[s.AddIndex]; ok {
		m, ok := asRecord(v)
		if !ok {
			return logEntry{}, fmt.Errorf("embeddb: malformed %s envelope", s.AddIndex)
		}
		return logEntry{kind: opAddIndex, descriptor: descriptorFromRecord(m)}, nil
	}
	if v, ok := raw[s.DeleteIndex]; ok {
		m, ok := asRecord(v)
		if !ok {
			return logEntry{}, fmt.Errorf("embeddb: malformed %s envelope", s.DeleteIndex)
		}
		fieldName, _ := m["fieldName"].(string)
		return logEntry{kind: opDeleteIndex, fieldName: fieldName}, nil
	}
	return logEntry{kind: opUpsert, record: raw}, nil
}

func descriptorToRecord(d IndexDescriptor) Record {
	return Record{"fieldName": d.FieldName, "unique": d.Unique, "sparse": d.Sparse}
}

func descriptorFromRecord(r Record) IndexDescriptor {
	d := IndexDescriptor{}
	d.FieldName, _ = r["fieldName"].(string)
	d.Unique, _ = r["unique"].(bool)
	d.Sparse, _ = r["sparse"].(bool)
	return d
}

// Log is the append-only journal of record operations backing a Store: one
// JSON object per line, replayed on open and rewritten atomically by
// compaction.
type Log struct {
	path      string
	sentinels Sentinels
	logger    *slog.Logger
	file      *os.File
}

func openLog(path string, sentinels Sentinels, logger *slog.Logger) (*Log, error) {
	l := &Log{path: path, sentinels: sentinels, logger: logger}
	if err := l.reopenAppendHandle(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) reopenAppendHandle() error {
	if l.file != nil {
		_ = l.file.Close()
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("embeddb: open %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// digestNow computes the xxhash of the log file's current on-disk content,
// used by Store.Stats and by compaction's unchanged-content check.
func (l *Log) digestNow() (uint64, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, fmt.Errorf("embeddb: read %s: %w", l.path, err)
	}
	return xxhash.Sum64(data), nil
}

// Append writes one or more operation records to the file, newline-framed.
// Every entry is encoded before anything is written, and all lines go out
// in a single Write, so an encoding error writes nothing. A failed Write
// from the OS may still leave a torn last line on disk; Hydrate does not
// discard such a line, it reports it as corruption. Durability here is
// best-effort: the bytes reach the OS buffer, but fsync only happens at
// compaction.
func (l *Log) Append(entries ...logEntry) error {
	var buf strings.Builder
	for _, e := range entries {
		line, err := encodeEntry(l.sentinels, e)
		if err != nil {
			return err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if _, err := l.file.WriteString(buf.String()); err != nil {
		return fmt.Errorf("embeddb: append: %w", err)
	}
	if l.logger != nil {
		l.logger.Debug("embeddb: appended", "entries", len(entries))
	}
	return nil
}

// Hydrate replays the log top-to-bottom, calling apply for each entry in
// file order. Empty and whitespace-only lines are skipped; any other line
// that does not decode, including a truncated trailing line left by a
// crash mid-append, fails the whole hydrate with a CorruptionError. Entries
// before the bad line have already been passed to apply by then.
func (l *Log) Hydrate(apply func(logEntry)) error {
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("embeddb: seek: %w", err)
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("embeddb: read %s: %w", l.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := decodeEntry(l.sentinels, line)
		if err != nil {
			return &CorruptionError{Path: l.path, Err: err}
		}
		apply(entry)
	}
	if _, err := l.file.Seek(0, 2); err != nil {
		return fmt.Errorf("embeddb: seek: %w", err)
	}
	return nil
}

// Rewrite produces the canonical compacted log: one addIndex entry per
// non-primary index (in the order given), then one entry per live record
// (in the order given), written to a temp sibling file, fsynced, and
// renamed over the live file, the rename being the commit point. It
// returns the xxhash digest of the content written. If that digest equals
// skipIfDigest, the rewrite is a no-op: the content on disk would come out
// byte-identical to what's already there, so the write and rename are
// skipped entirely and skipped is reported true.
func (l *Log) Rewrite(descs []IndexDescriptor, records []*Record, skipIfDigest uint64) (digest uint64, skipped bool, err error) {
	content, err := renderCompactedLog(l.sentinels, descs, records)
	if err != nil {
		return 0, false, err
	}
	digest = xxhash.Sum64(content)
	if digest == skipIfDigest {
		return digest, true, nil
	}

	tmpPath := l.path + "~"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, false, fmt.Errorf("embeddb: open %s: %w", tmpPath, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	if _, err = f.Write(content); err != nil {
		return 0, false, fmt.Errorf("embeddb: write %s: %w", tmpPath, err)
	}
	if err = f.Sync(); err != nil {
		return 0, false, fmt.Errorf("embeddb: fsync %s: %w", tmpPath, err)
	}
	if err = f.Close(); err != nil {
		return 0, false, fmt.Errorf("embeddb: close %s: %w", tmpPath, err)
	}
	closed = true

	if err = os.Rename(tmpPath, l.path); err != nil {
		return 0, false, fmt.Errorf("embeddb: rename %s: %w", tmpPath, err)
	}
	if err = l.reopenAppendHandle(); err != nil {
		return 0, false, err
	}
	if l.logger != nil {
		l.logger.Debug("embeddb: compacted", "records", len(records), "indexes", len(descs))
	}
	return digest, false, nil
}

func renderCompactedLog(s Sentinels, descs []IndexDescriptor, records []*Record) ([]byte, error) {
	var buf strings.Builder
	for _, d := range descs {
		line, err := encodeEntry(s, logEntry{kind: opAddIndex, descriptor: d})
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for _, r := range records {
		line, err := encodeEntry(s, logEntry{kind: opUpsert, record: *r})
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return []byte(buf.String()), nil
}

// sortRecordsBy orders records with a caller-supplied comparator.
func sortRecordsBy(records []*Record, less func(a, b *Record) bool) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

// sortRecordsDefault orders records deterministically by the canonical
// encoding of their primary-key value, so that two compactions of the same
// state produce byte-identical output even though Go's map iteration order
// is randomized.
func sortRecordsDefault(records []*Record, primaryField string) {
	sort.SliceStable(records, func(i, j int) bool {
		vi, _ := getField(*records[i], primaryField)
		vj, _ := getField(*records[j], primaryField)
		bi, _ := canonicalBytes(vi)
		bj, _ := canonicalBytes(vj)
		return string(bi) < string(bj)
	})
}
