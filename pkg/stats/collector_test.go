package stats

import (
	"sync"
	"testing"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpSearch)

	stats := collector.GetStats()

	if stats["insert_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 insert operations, got %v", stats["insert_ops"])
	}

	if stats["search_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 search operation, got %v", stats["search_ops"])
	}

	if _, exists := stats["last_insert_time"]; !exists {
		t.Errorf("Expected last_insert_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpCompact, 100)
	collector.TrackOperationWithLatency(OpCompact, 200)
	collector.TrackOperationWithLatency(OpCompact, 300)

	stats := collector.GetStats()

	latencyStats, ok := stats["compact_latency"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected compact_latency to be a map, got %T", stats["compact_latency"])
	}

	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}

	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency 200ns, got %v", avg)
	}

	if min := latencyStats["min_ns"].(uint64); min != 100 {
		t.Errorf("Expected min latency 100ns, got %v", min)
	}

	if max := latencyStats["max_ns"].(uint64); max != 300 {
		t.Errorf("Expected max latency 300ns, got %v", max)
	}

	if ops := stats["compact_ops"].(uint64); ops != 3 {
		t.Errorf("Expected 3 compact operations, got %v", ops)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewAtomicCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 999

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()

			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 3 {
				case 0:
					collector.TrackOperation(OpInsert)
				case 1:
					collector.TrackOperation(OpSearch)
				case 2:
					collector.TrackOperationWithLatency(OpDelete, uint64(j))
				}
			}
		}()
	}

	wg.Wait()

	stats := collector.GetStats()
	expectedOps := uint64(numGoroutines * opsPerGoroutine / 3)

	for _, key := range []string{"insert_ops", "search_ops", "delete_ops"} {
		if ops := stats[key].(uint64); ops != expectedOps {
			t.Errorf("Expected %d %s, got %v", expectedOps, key, ops)
		}
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpSearch)
	collector.TrackOperation(OpSearchContent)
	collector.TrackError("out_of_space")

	searchStats := collector.GetStatsFiltered("search")

	if _, exists := searchStats["search_ops"]; !exists {
		t.Errorf("Expected search_ops in filtered stats")
	}

	if _, exists := searchStats["search_content_ops"]; !exists {
		t.Errorf("Expected search_content_ops in filtered stats")
	}

	if _, exists := searchStats["insert_ops"]; exists {
		t.Errorf("Did not expect insert_ops in search-filtered stats")
	}

	errorStats := collector.GetStatsFiltered("error")
	errs, ok := errorStats["errors"].(map[string]uint64)
	if !ok {
		t.Fatalf("Expected errors in error-filtered stats")
	}
	if errs["out_of_space"] != 1 {
		t.Errorf("Expected 1 out_of_space error, got %d", errs["out_of_space"])
	}
}

func TestCollector_PoolUsageAndRelocation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackPoolUsage(3, 10)
	collector.TrackRelocation(2)
	collector.TrackRelocation(0)
	collector.TrackPoolUsage(4, 10)

	stats := collector.GetStats()

	if used := stats["pool_used"].(uint64); used != 4 {
		t.Errorf("Expected 4 used blocks, got %v", used)
	}

	if capacity := stats["pool_capacity"].(uint64); capacity != 10 {
		t.Errorf("Expected capacity 10, got %v", capacity)
	}

	if count := stats["compaction_count"].(uint64); count != 2 {
		t.Errorf("Expected 2 compactions, got %v", count)
	}

	if moved := stats["blocks_moved"].(uint64); moved != 2 {
		t.Errorf("Expected 2 blocks moved, got %v", moved)
	}
}

func TestCollector_TrackBytes(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackBytes(true, 1000)
	collector.TrackBytes(false, 500)

	stats := collector.GetStats()

	if bytesWritten := stats["total_bytes_written"].(uint64); bytesWritten != 1000 {
		t.Errorf("Expected 1000 bytes written, got %v", bytesWritten)
	}

	if bytesRead := stats["total_bytes_read"].(uint64); bytesRead != 500 {
		t.Errorf("Expected 500 bytes read, got %v", bytesRead)
	}
}
