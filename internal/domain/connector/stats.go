package connector

import "sync"

// StatsAggregator is the single writer for run statistics. Entity loops may
// run concurrently, so every counter update goes through the mutex.
type StatsAggregator struct {
	mu    sync.Mutex
	stats RunStats
}

// NewStatsAggregator creates an aggregator with zeroed buckets for the given entities
func NewStatsAggregator(entities ...EntityType) *StatsAggregator {
	stats := make(RunStats, len(entities))
	for _, e := range entities {
		stats[e] = EntityStats{}
	}
	return &StatsAggregator{stats: stats}
}

// Record counts one processed record as mapped or failed
func (a *StatsAggregator) Record(entity EntityType, status RecordStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.stats[entity]
	s.Total++
	if status == RecordStatusMapped {
		s.Mapped++
	} else {
		s.Failed++
	}
	a.stats[entity] = s
}

// Snapshot returns a copy of the current counters
func (a *StatsAggregator) Snapshot() RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats.Clone()
}
