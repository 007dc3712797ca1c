// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// fakeToken completes immediately unless hang is set.
type fakeToken struct {
	err  error
	hang bool
}

func (t *fakeToken) Wait() bool { return !t.hang }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	publishErr   error
	hang         bool
	connectErr   error
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token {
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.publishErr, hang: c.hang}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func sample(seq uint8) sensorlink.Record {
	r := sensorlink.Record{TimestampMs: 5000, Sequence: seq}
	r.IR[0] = 111
	r.IR[15] = 999
	r.Ultrasonic[3] = 42
	return r.Sealed()
}

func TestConsume_PublishesRecord(t *testing.T) {
	client := &fakeClient{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewMQTTPublisher(client, "/plant/sensors/", WithQoS(1), WithRetain(true),
		WithNow(func() time.Time { return now }))

	p.Consume(sample(7))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "plant/sensors/records", msg.topic)
	assert.EqualValues(t, 1, msg.qos)
	assert.True(t, msg.retained)

	var decoded RecordMessage
	require.NoError(t, cbor.Unmarshal(msg.payload, &decoded))
	assert.EqualValues(t, 7, decoded.Sequence)
	assert.EqualValues(t, 5000, decoded.TimestampMs)
	assert.Len(t, decoded.IR, sensorlink.IRChannels)
	assert.EqualValues(t, 999, decoded.IR[15])
	assert.EqualValues(t, 42, decoded.Ultrasonic[3])
	assert.Equal(t, sample(7).CRC, decoded.CRC)
	assert.True(t, now.Equal(decoded.ReceivedAt))

	assert.EqualValues(t, 1, p.Published())
	assert.EqualValues(t, 0, p.Failed())
}

func TestConsume_FailuresAreCounted(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{name: "broker error", client: &fakeClient{publishErr: errors.New("not connected")}},
		{name: "timeout", client: &fakeClient{hang: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMQTTPublisher(tt.client, "")
			p.Consume(sample(1))
			p.Consume(sample(2))

			assert.EqualValues(t, 0, p.Published())
			assert.EqualValues(t, 2, p.Failed())
			assert.Equal(t, TopicRecords, tt.client.messages[0].topic)
		})
	}
}

func TestPublishStats(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, "link")

	err := p.PublishStats(sensorlink.Statistics{
		PacketsReceived: 10,
		PacketsLost:     2,
		CRCErrors:       1,
		Timeouts:        3,
		AvgLatencyMs:    4.5,
	})
	require.NoError(t, err)

	require.Len(t, client.messages, 1)
	assert.Equal(t, "link/stats", client.messages[0].topic)

	var decoded StatsMessage
	require.NoError(t, cbor.Unmarshal(client.messages[0].payload, &decoded))
	assert.Equal(t, StatsMessage{
		PacketsReceived: 10,
		PacketsLost:     2,
		CRCErrors:       1,
		Timeouts:        3,
		AvgLatencyMs:    4.5,
	}, decoded)
}

func TestPublishStats_Timeout(t *testing.T) {
	p := NewMQTTPublisher(&fakeClient{hang: true}, "link")
	assert.ErrorIs(t, p.PublishStats(sensorlink.Statistics{}), ErrPublishTimeout)
}

func TestConnect(t *testing.T) {
	p := NewMQTTPublisher(&fakeClient{}, "")
	assert.NoError(t, p.Connect())

	p = NewMQTTPublisher(&fakeClient{connectErr: errors.New("refused")}, "")
	assert.EqualError(t, p.Connect(), "mqtt connect: refused")
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, "")
	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestClientOptionsFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		broker   string
		prefix   string
		username string
		password string
		clientID string
	}{
		{
			name:   "plain",
			url:    "mqtt://broker:1883",
			broker: "tcp://broker:1883",
		},
		{
			name:     "credentials and prefix",
			url:      "mqtt://user:pw@broker:1883/lab/rig1?client-id=uartlink-1",
			broker:   "tcp://broker:1883",
			prefix:   "lab/rig1",
			username: "user",
			password: "pw",
			clientID: "uartlink-1",
		},
		{
			name:   "tls",
			url:    "mqtts://broker:8883/x",
			broker: "ssl://broker:8883",
			prefix: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, prefix, err := ClientOptionsFromURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)

			require.Len(t, opts.Servers, 1)
			assert.Equal(t, tt.broker, opts.Servers[0].String())
			assert.Equal(t, tt.username, opts.Username)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.clientID, opts.ClientID)
		})
	}
}

func TestClientOptionsFromURL_Invalid(t *testing.T) {
	_, _, err := ClientOptionsFromURL("mqtt://")
	assert.Error(t, err)

	_, _, err = ClientOptionsFromURL("://bad")
	assert.Error(t, err)
}
