/*
Package embeddb implements an embedded, single-process, file-backed document
store for JSON-shaped records.

Records live in memory, are searched through secondary indexes, and are
persisted durably to a single append-only log that is periodically
compacted. It is meant as the local persistence layer of an application
that does not want the operational burden of running a database server.

We implement:

1. Records, arbitrary JSON-shaped documents keyed by a primary field
(by default "_id").

2. Indexes, allowing quick lookup of records by the value of a field,
including dotted nested paths, unique constraints, and sparse semantics.

3. A log-structured file format: one JSON object per line, replayed in full
on open and rewritten in canonical form by compaction.

# Technical Details

**File layout.**
A database is a single file of newline-delimited JSON records. Four
envelope shapes are recognized: a plain record (an upsert), a
`{"$$deleted": <record>}` tombstone, a `{"$$addIndex": <descriptor>}`
index-creation directive, and a `{"$$deleteIndex": {"fieldName": "..."}}`
index-removal directive. Field names starting with "$$" are reserved for
these envelopes.

**Compaction.**
Compaction rewrites the file to a temporary sibling (`<path>~`), flushes
it to disk, and renames it over the live file. The rename is the commit
point: a crash at any earlier point leaves the original file untouched.

**Serialization.**
All public operations are funneled through a single-worker FIFO queue, so
reads and writes never interleave and every operation observes the
effects of every operation submitted before it.

**Locking.**
A single process may have a given database file open at a time. This is
enforced with an advisory lock file created via an atomic symlink next to
the database file. A second process may call Open on the same file, but
its Load, and every operation it queues, fails with DatabaseLockedError.
*/
package embeddb
