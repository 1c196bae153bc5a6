package embeddb

import "time"

// LessFunc orders two records for compaction. A nil LessFunc falls back to
// ordering by the primary key's canonical encoding, which is what makes
// two consecutive compactions byte-identical despite Go's randomized map
// iteration order.
type LessFunc func(a, b Record) bool

// SetAutoCompaction starts (or replaces) a periodic timer that submits a
// compact task to the store's serializer every interval. Missed ticks are
// not coalesced: if the previous compact is still queued behind other
// work, the timer submits another one anyway rather than skipping it.
func (st *Store) SetAutoCompaction(interval time.Duration, less LessFunc) {
	st.autoMu.Lock()
	defer st.autoMu.Unlock()
	if st.autoTimer != nil {
		st.autoTimer.Stop()
	}
	st.autoStopped = false
	var tick func()
	tick = func() {
		st.autoMu.Lock()
		stopped := st.autoStopped
		st.autoMu.Unlock()
		if stopped {
			return
		}
		go func() {
			_, _ = submit(st.serializer, func() (struct{}, error) {
				return struct{}{}, st.compactLocked(less)
			})
		}()
		st.autoMu.Lock()
		if !st.autoStopped {
			st.autoTimer = time.AfterFunc(interval, tick)
		}
		st.autoMu.Unlock()
	}
	st.autoTimer = time.AfterFunc(interval, tick)
}

func (st *Store) StopAutoCompaction() {
	st.autoMu.Lock()
	defer st.autoMu.Unlock()
	st.autoStopped = true
	if st.autoTimer != nil {
		st.autoTimer.Stop()
		st.autoTimer = nil
	}
}
