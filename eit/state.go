package eit

import (
	"sort"
	"sync"
)

// StateTracker keeps the latest result of every sensor for the HTTP endpoints
type StateTracker struct {
	mu      sync.RWMutex
	results map[string]*Result
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		results: make(map[string]*Result),
	}
}

// Update stores r as the latest result of its sensor
func (st *StateTracker) Update(r *Result) {
	if r == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[r.SensorID] = r
}

// Get returns a copy of the latest result for a sensor
func (st *StateTracker) Get(sensorID string) (*Result, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	r, ok := st.results[sensorID]
	if !ok {
		return nil, false
	}
	return copyResult(r), true
}

// All returns copies of every stored result
func (st *StateTracker) All() map[string]*Result {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*Result, len(st.results))
	for k, v := range st.results {
		result[k] = copyResult(v)
	}
	return result
}

// HasResults returns true if at least one result is stored
func (st *StateTracker) HasResults() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.results) > 0
}

// SensorIDs returns the IDs of sensors with a stored result, sorted
func (st *StateTracker) SensorIDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.results))
	for id := range st.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// copyResult copies the anomaly slice; the field is shared because
// results are never modified after they are stored
func copyResult(r *Result) *Result {
	c := *r
	c.Anomalies = append([]Anomaly(nil), r.Anomalies...)
	return &c
}
