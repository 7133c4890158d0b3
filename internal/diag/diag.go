// Package diag implements the SIGUSR2 diagnostics dump spec.md §6
// mentions ("SIGUSR2 trigger diagnostics") without specifying its content;
// supplemented from original_source's sample_config/modules/
// diag_connections.c, which the distillation dropped: a text dump of
// per-thread connection counts, pool stats and cache occupancy written to
// the error log.
package diag

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nxweb/nxweb/internal/pool"
)

// ThreadStats is one net thread's contribution to a diagnostics dump.
type ThreadStats struct {
	ThreadNum         int
	ActiveConnections int
	ConnPool          pool.Stats
	ArenaPool         pool.Stats
	BufferPool        pool.Stats
	CacheEntries      int
	CacheCapacity     int
}

// Dump writes a human-readable diagnostics report, grouped by thread and
// sorted by thread number, mirroring diag_connections.c's per-thread
// breakdown.
func Dump(w io.Writer, stats []ThreadStats) error {
	sorted := append([]ThreadStats(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ThreadNum < sorted[j].ThreadNum })

	if _, err := fmt.Fprintf(w, "nxweb diagnostics at %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, s := range sorted {
		if _, err := fmt.Fprintf(w, "thread %d: connections=%d cache=%d/%d\n",
			s.ThreadNum, s.ActiveConnections, s.CacheEntries, s.CacheCapacity); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  conn pool:   hit_rate=%.3f gets=%d news=%d\n",
			s.ConnPool.HitRate, s.ConnPool.Gets, s.ConnPool.News); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  arena pool:  hit_rate=%.3f gets=%d news=%d\n",
			s.ArenaPool.HitRate, s.ArenaPool.Gets, s.ArenaPool.News); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  buffer pool: hit_rate=%.3f gets=%d news=%d\n",
			s.BufferPool.HitRate, s.BufferPool.Gets, s.BufferPool.News); err != nil {
			return err
		}
	}
	return nil
}
