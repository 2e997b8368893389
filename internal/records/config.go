package records

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/imuctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/imuctl/records.db"
	defaultBatchSize    = 200
	defaultBatchTimeout = time.Second

	defaultMQTTTopic   = "imuctl/records"
	defaultMQTTTimeout = 5 * time.Second
)

type Config struct {
	Enabled bool
	DBPath  string
	// BackupDir receives a copy of the database before a schema change.
	// Empty means a "backups" directory next to DBPath.
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	MQTT         MQTTConfig
	// MemorySize keeps the last records in memory; zero disables it.
	MemorySize int
}

type MQTTConfig struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false, // Disabled by default
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		MQTT: MQTTConfig{
			Topic:   defaultMQTTTopic,
			Timeout: defaultMQTTTimeout,
		},
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if the database sink is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 || c.MemorySize < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize    int
			BatchTimeout time.Duration
			MemorySize   int
		}{
			BatchSize:    c.BatchSize,
			BatchTimeout: c.BatchTimeout,
			MemorySize:   c.MemorySize,
		})
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.Topic == "" {
			return errFactory.WithMessage(ErrInvalidConfig, "mqtt broker and topic are required")
		}
		if c.MQTT.QoS > 2 {
			return errFactory.WithData(ErrInvalidConfig, struct {
				QoS byte
			}{
				QoS: c.MQTT.QoS,
			})
		}
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
