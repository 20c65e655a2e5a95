package eit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(sensorID string) *Result {
	return &Result{
		ID:         "result-" + sensorID,
		SensorID:   sensorID,
		Anomalies:  []Anomaly{{X: 0, Y: -1, D: 0.2, Perm: 3}},
		Background: Background,
		Field:      &Field{Size: 1, Values: []float64{1}},
		CreatedAt:  time.Unix(1700000000, 0),
	}
}

func TestStateTracker_UpdateAndGet(t *testing.T) {
	st := NewStateTracker()
	assert.False(t, st.HasResults())

	_, ok := st.Get("pipe-a")
	assert.False(t, ok)

	st.Update(testResult("pipe-a"))
	assert.True(t, st.HasResults())

	r, ok := st.Get("pipe-a")
	require.True(t, ok)
	assert.Equal(t, "result-pipe-a", r.ID)

	newer := testResult("pipe-a")
	newer.ID = "second"
	st.Update(newer)
	r, _ = st.Get("pipe-a")
	assert.Equal(t, "second", r.ID)
}

func TestStateTracker_UpdateNil(t *testing.T) {
	st := NewStateTracker()
	st.Update(nil)
	assert.False(t, st.HasResults())
}

func TestStateTracker_GetReturnsCopy(t *testing.T) {
	st := NewStateTracker()
	st.Update(testResult("pipe-a"))

	r, _ := st.Get("pipe-a")
	r.Anomalies[0].Perm = 99
	r.ID = "changed"

	again, _ := st.Get("pipe-a")
	assert.Equal(t, 3.0, again.Anomalies[0].Perm)
	assert.Equal(t, "result-pipe-a", again.ID)
}

func TestStateTracker_AllAndSensorIDs(t *testing.T) {
	st := NewStateTracker()
	for _, id := range []string{"pipe-c", "pipe-a", "pipe-b"} {
		st.Update(testResult(id))
	}

	assert.Equal(t, []string{"pipe-a", "pipe-b", "pipe-c"}, st.SensorIDs())

	all := st.All()
	assert.Len(t, all, 3)
	all["pipe-a"].Anomalies[0].D = 0.4
	r, _ := st.Get("pipe-a")
	assert.Equal(t, 0.2, r.Anomalies[0].D)
}

func TestStateTracker_Concurrent(t *testing.T) {
	st := NewStateTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Update(testResult(fmt.Sprintf("pipe-%d", i%5)))
		}()
		go func() {
			defer wg.Done()
			_ = st.All()
			_ = st.SensorIDs()
		}()
	}
	wg.Wait()
	assert.Len(t, st.SensorIDs(), 5)
}
