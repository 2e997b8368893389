package records

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type fakePublisher struct {
	token        *fakeToken
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return p.token
}

func (p *fakePublisher) Disconnect(uint) {
	p.disconnected = true
}

type failingSink struct {
	err    error
	closed bool
}

func (s *failingSink) Append(context.Context, integration.Record) error { return s.err }

func (s *failingSink) Close() error {
	s.closed = true
	return s.err
}

func TestMQTTPublishesJSON(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{}}
	sink := newMQTT(pub, MQTTConfig{Topic: "imu/records"}, logger.New("records"))

	require.NoError(t, sink.Append(context.Background(), testRecord(3)))
	require.NoError(t, sink.Close())

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "imu/records", pub.topics[0])
	assert.True(t, pub.disconnected)

	var got integration.Record
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, uint64(3), got.ID)
	assert.Equal(t, testRecord(3).Velocity, got.Velocity)
	assert.True(t, got.Valid)
}

func TestMQTTPublishErrors(t *testing.T) {
	sink := newMQTT(&fakePublisher{token: &fakeToken{err: stderrors.New("not connected")}},
		MQTTConfig{Topic: "t"}, logger.New("records"))
	err := sink.Append(context.Background(), testRecord(1))
	assert.True(t, errors.HasCode(err, ErrPublish))

	sink = newMQTT(&fakePublisher{token: &fakeToken{timeout: true}},
		MQTTConfig{Topic: "t"}, logger.New("records"))
	err = sink.Append(context.Background(), testRecord(1))
	assert.True(t, errors.HasCode(err, ErrPublish))
}

func TestMemoryRing(t *testing.T) {
	m := NewMemory(3)

	_, ok := m.Last()
	assert.False(t, ok)

	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, m.Append(context.Background(), testRecord(id)))
	}

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(5), last.ID)
	assert.Equal(t, uint64(5), m.Total())

	var ids []uint64
	for _, r := range m.Records() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint64{3, 4, 5}, ids)
}

func TestMultiContinuesPastFailures(t *testing.T) {
	first := &failingSink{err: stderrors.New("disk full")}
	second := NewMemory(4)
	third := &failingSink{err: stderrors.New("broker gone")}

	sink := Multi(first, second, third)

	err := sink.Append(context.Background(), testRecord(1))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, uint64(1), second.Total())

	err = sink.Close()
	assert.Len(t, multierr.Errors(err), 2)
	assert.True(t, first.closed)
	assert.True(t, third.closed)
}

func TestNewServiceDisabledIsNoop(t *testing.T) {
	sink, err := NewService(DefaultConfig(), logger.New("records"))
	require.NoError(t, err)
	assert.IsType(t, noopSink{}, sink)
	assert.NoError(t, sink.Append(context.Background(), testRecord(1)))
	assert.NoError(t, sink.Close())
}

func TestNewServiceCombinesSinks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "records.db")
	cfg.BatchSize = 1

	mem := NewMemory(8)
	sink, err := NewService(cfg, logger.New("records"), mem)
	require.NoError(t, err)

	require.NoError(t, sink.Append(context.Background(), testRecord(1)))
	require.NoError(t, sink.Close())

	assert.Equal(t, uint64(1), mem.Total())
	assert.Equal(t, 1, countRows(t, cfg.DBPath))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidDBPath))

	cfg = DefaultConfig()
	cfg.MQTT.Enabled = true
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.QoS = 3
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))

	cfg.MQTT.QoS = 1
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BatchSize = -1
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))
}

func TestBackupDirDefaultsNextToDatabase(t *testing.T) {
	cfg := Config{DBPath: "/var/lib/imuctl/records.db"}
	assert.Equal(t, "/var/lib/imuctl/backups", cfg.backupDir())
}
