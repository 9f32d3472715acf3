package execution

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_GetSetMerge(t *testing.T) {
	session := NewSession("run-1")

	assert.Equal(t, "fallback", session.Get("missing", "fallback"))
	session.Set("stage", "build")
	assert.Equal(t, "build", session.Get("stage", nil))

	session.Merge(map[string]interface{}{"stage": "market", "confidence": 0.9})
	assert.Equal(t, "market", session.Get("stage", nil))
	assert.Equal(t, 0.9, session.Get("confidence", nil))
	assert.Equal(t, 2, session.Size())

	session.Clear()
	assert.Equal(t, 0, session.Size())
}

// Two branches writing disjoint keys concurrently must both land; merge is a
// single lock-held operation so no update can be lost.
func TestSession_MergeConcurrent(t *testing.T) {
	session := NewSession("run-1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		key := []string{"buildOutput", "marketOutput"}[i]
		go func(key string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				session.Merge(map[string]interface{}{key: j})
			}
		}(key)
	}
	wg.Wait()

	_, hasBuild := session.Lookup("buildOutput")
	_, hasMarket := session.Lookup("marketOutput")
	assert.True(t, hasBuild)
	assert.True(t, hasMarket)
}

func TestSession_SnapshotIsPureCopy(t *testing.T) {
	session := NewSession("run-1")
	session.Set("stage", "build")

	snapshot := session.Snapshot()
	session.Set("stage", "market")
	session.Merge(map[string]interface{}{"extra": true})

	assert.Equal(t, map[string]interface{}{"stage": "build"}, snapshot)

	// mutating the snapshot must not leak back either
	snapshot["stage"] = "tampered"
	assert.Equal(t, "market", session.Get("stage", nil))
}

func TestSession_RecordOrdering(t *testing.T) {
	session := NewSession("run-1")
	session.Record("first", map[string]interface{}{"n": 1})
	session.Record("second", nil)
	session.Record("third", nil)

	history := session.History()
	assert.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Name)
	assert.Equal(t, "second", history[1].Name)
	assert.Equal(t, "third", history[2].Name)
	assert.False(t, history[0].Time.IsZero())

	// history returned by value: appending to the copy must not mutate the log
	history = append(history, HistoryEvent{Name: "rogue"})
	assert.Len(t, session.History(), 3)
}
