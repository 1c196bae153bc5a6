package embeddb

import (
	"fmt"
	"os"
)

// Stats is a snapshot of store size: coarse counters cheap enough to
// compute on every call, useful for an operator dashboard or a health
// check.
type Stats struct {
	RecordCount int
	IndexCount  int // secondary indexes only, not counting the primary
	LogSize     int64
	LogDigest   uint64 // xxhash of the log file's content as of the last append or compaction
}

func (st *Store) statsLocked() (Stats, error) {
	info, err := os.Stat(st.log.path)
	if err != nil {
		return Stats{}, fmt.Errorf("embeddb: stat %s: %w", st.log.path, err)
	}
	digest, err := st.log.digestNow()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		RecordCount: len(st.indexes.allRecords()),
		IndexCount:  len(st.indexes.nonPrimaryDescriptors()),
		LogSize:     info.Size(),
		LogDigest:   digest,
	}, nil
}
