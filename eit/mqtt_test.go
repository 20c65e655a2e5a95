package eit

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mqttTestConfig() *Config {
	config := DefaultConfig()
	config.MQTT.Broker = "tcp://localhost:1883"
	config.Sensors = []SensorConfig{
		{ID: "pipe-a", Topic: "sensors/pipe-a"},
		{ID: "pipe-b", Topic: "sensors/pipe-b"},
	}
	return config
}

type received struct {
	sensorID string
	msg      *ReadingsMessage
	err      error
}

func recordingHandler() (ReadingsHandler, func() []received) {
	var mu sync.Mutex
	var got []received
	handler := func(sensorID string, msg *ReadingsMessage, err error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, received{sensorID, msg, err})
	}
	return handler, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(DefaultConfig(), nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = InitMQTT(nil, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoSensors(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")

	_, err := InitMQTT(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestMQTTClient_SubscribesOnConnect(t *testing.T) {
	mock := NewMockClient()
	handler, _ := recordingHandler()
	c := newMQTTClientWithMock(mock, mqttTestConfig(), handler)
	mock.SetOnConnect(c.onConnect)

	token := mock.Connect()
	require.NoError(t, token.Error())
	assert.True(t, c.IsConnected())

	topics := mock.SubscribedTopics()
	sort.Strings(topics)
	assert.Equal(t, []string{"sensors/pipe-a", "sensors/pipe-b"}, topics)
}

func TestMQTTClient_MessageDispatch(t *testing.T) {
	mock := NewMockClient()
	handler, got := recordingHandler()
	c := newMQTTClientWithMock(mock, mqttTestConfig(), handler)
	mock.SetOnConnect(c.onConnect)
	mock.Connect()

	require.True(t, mock.SimulateMessage("sensors/pipe-b", []byte(`[1, 2, 3]`)))
	require.True(t, mock.SimulateMessage("sensors/pipe-a", []byte(`{"sensorId":"override","readings":[4]}`)))
	require.True(t, mock.SimulateMessage("sensors/pipe-a", []byte(`garbage`)))
	assert.False(t, mock.SimulateMessage("sensors/unknown", []byte(`[1]`)))

	calls := got()
	require.Len(t, calls, 3)

	assert.Equal(t, "pipe-b", calls[0].sensorID)
	require.NoError(t, calls[0].err)
	assert.Equal(t, []float64{1, 2, 3}, calls[0].msg.Readings)
	assert.Equal(t, "pipe-b", calls[0].msg.SensorID)

	assert.Equal(t, "pipe-a", calls[1].sensorID)
	assert.Equal(t, "override", calls[1].msg.SensorID)

	assert.Equal(t, "pipe-a", calls[2].sensorID)
	assert.ErrorIs(t, calls[2].err, ErrInvalidFormat)
	assert.Nil(t, calls[2].msg)
}

func TestMQTTClient_SubscribeError(t *testing.T) {
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("not authorised"))
	c := newMQTTClientWithMock(mock, mqttTestConfig(), nil)
	mock.SetOnConnect(c.onConnect)

	mock.Connect()
	assert.Empty(t, mock.SubscribedTopics())
	assert.True(t, c.IsConnected())
}

func TestMQTTClient_ConnectionLostAndDisconnect(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, mqttTestConfig(), nil)
	mock.SetOnConnect(c.onConnect)
	mock.Connect()
	require.True(t, c.IsConnected())

	c.onConnectionLost(mock, errors.New("network down"))
	assert.False(t, c.IsConnected())

	c.Disconnect()
	assert.False(t, mock.IsConnected())
}

func TestMQTTClient_GetSensorByTopic(t *testing.T) {
	c := newMQTTClientWithMock(NewMockClient(), mqttTestConfig(), nil)

	id, ok := c.GetSensorByTopic("sensors/pipe-b")
	assert.True(t, ok)
	assert.Equal(t, "pipe-b", id)

	_, ok = c.GetSensorByTopic("other")
	assert.False(t, ok)
	assert.NotNil(t, c.GetClient())
}
