package eit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReadings(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		want     []float64
		sensorID string
	}{
		{
			name:     "json object",
			payload:  `{"sensorId":"pipe-a","frequency":50,"readings":[1,2.5,-3]}`,
			want:     []float64{1, 2.5, -3},
			sensorID: "pipe-a",
		},
		{
			name:    "json array",
			payload: `[0.1, 0.2, 0.3]`,
			want:    []float64{0.1, 0.2, 0.3},
		},
		{
			name:    "comma separated",
			payload: "1,2,3\n",
			want:    []float64{1, 2, 3},
		},
		{
			name:    "mixed separators",
			payload: "  1; 2\t3 4,5 ",
			want:    []float64{1, 2, 3, 4, 5},
		},
		{
			name:    "exponent",
			payload: "1e-3 2E2",
			want:    []float64{0.001, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeReadings([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Readings)
			assert.Equal(t, tt.sensorID, msg.SensorID)
		})
	}
}

func TestDecodeReadings_ObjectFields(t *testing.T) {
	payload := `{"readings":[1,2],"baseline":[0.5,0.5],"flatten":2.5,"frequency":100}`
	msg, err := DecodeReadings([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 0.5}, msg.Baseline)
	require.NotNil(t, msg.Flatten)
	assert.Equal(t, 2.5, *msg.Flatten)
	assert.Equal(t, 100, msg.Frequency)

	req := msg.Request()
	assert.Equal(t, msg.Readings, req.Readings)
	assert.Equal(t, msg.Baseline, req.Baseline)
	assert.Equal(t, msg.Flatten, req.Flatten)
}

func TestDecodeReadings_Invalid(t *testing.T) {
	for _, payload := range []string{
		"",
		"   \n",
		`{"readings":[]}`,
		`{"sensorId":"a"}`,
		`{"readings":[1,`,
		`[1,"two"]`,
		"1,two,3",
		",;,",
	} {
		_, err := DecodeReadings([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidFormat, "payload %q", payload)
	}
}
