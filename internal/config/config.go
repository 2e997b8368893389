package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/imuctl/internal/calibration"
	"codeberg.org/mutker/imuctl/internal/errors"
	"codeberg.org/mutker/imuctl/internal/imu"
	"codeberg.org/mutker/imuctl/internal/integration"
	"codeberg.org/mutker/imuctl/internal/profile"
	"codeberg.org/mutker/imuctl/internal/records"
	"codeberg.org/mutker/imuctl/internal/sampler"
	"github.com/golang/geo/r3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultEnvPrefix  = "IMUCTL"
	defaultConfigFile = "/etc/imuctl.toml"
)

type Config struct {
	LogLevel    LogLevel          `mapstructure:"log_level"`
	Calibrate   bool              `mapstructure:"calibrate"`
	RunDir      string            `mapstructure:"run_dir"`
	Device      DeviceConfig      `mapstructure:"device"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Integration IntegrationConfig `mapstructure:"integration"`
	Sampler     SamplerConfig     `mapstructure:"sampler"`
	Records     RecordsConfig     `mapstructure:"records"`
	Profile     ProfileConfig     `mapstructure:"profile"`
}

type DeviceConfig struct {
	Kind    string    `mapstructure:"kind"`
	I2CBus  string    `mapstructure:"i2c_bus"`
	Address int       `mapstructure:"address"`
	Sim     SimConfig `mapstructure:"sim"`
}

type SimConfig struct {
	AccelBias []float64 `mapstructure:"accel_bias"`
	GyroBias  []float64 `mapstructure:"gyro_bias"`
	Noise     float64   `mapstructure:"noise"`
	Seed      int64     `mapstructure:"seed"`
	Limit     int       `mapstructure:"limit"`
}

type CalibrationConfig struct {
	BufferSize       int     `mapstructure:"buffer_size"`
	WarmupSamples    int     `mapstructure:"warmup_samples"`
	AccelDeadzone    float64 `mapstructure:"accel_deadzone"`
	GyroDeadzone     float64 `mapstructure:"gyro_deadzone"`
	GravityReference float64 `mapstructure:"gravity_reference"`
	SampleIntervalMs int     `mapstructure:"sample_interval_ms"`
	ReadTimeoutMs    int     `mapstructure:"read_timeout_ms"`
	MaxIterations    int     `mapstructure:"max_iterations"`
	TimeoutS         int     `mapstructure:"timeout_s"`
	SettleMs         int     `mapstructure:"settle_ms"`
	Verify           bool    `mapstructure:"verify"`
}

type IntegrationConfig struct {
	NoiseGateG       float64 `mapstructure:"noise_gate_g"`
	DisableNoiseGate bool    `mapstructure:"disable_noise_gate"`
	RoundingDecimals int     `mapstructure:"rounding_decimals"`
}

type SamplerConfig struct {
	RecordIntervalMs int `mapstructure:"record_interval_ms"`
	StatusIntervalMs int `mapstructure:"status_interval_ms"`
}

type RecordsConfig struct {
	Enabled        bool       `mapstructure:"enabled"`
	DBPath         string     `mapstructure:"db_path"`
	BackupDir      string     `mapstructure:"backup_dir"`
	BatchSize      int        `mapstructure:"batch_size"`
	BatchTimeoutMs int        `mapstructure:"batch_timeout_ms"`
	MemorySize     int        `mapstructure:"memory_size"`
	MQTT           MQTTConfig `mapstructure:"mqtt"`
}

type MQTTConfig struct {
	Broker    string `mapstructure:"broker"`
	Topic     string `mapstructure:"topic"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	QoS       int    `mapstructure:"qos"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type ProfileConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// flagBinding ties a command line flag to its configuration key.
type flagBinding struct {
	key  string
	flag string
}

var bindings = []flagBinding{
	{"log_level", "log-level"},
	{"calibrate", "calibrate"},
	{"run_dir", "run-dir"},
	{"device.kind", "device"},
	{"device.i2c_bus", "i2c-bus"},
	{"device.address", "address"},
	{"calibration.buffer_size", "buffer-size"},
	{"calibration.warmup_samples", "warmup"},
	{"calibration.max_iterations", "max-iterations"},
	{"calibration.timeout_s", "timeout"},
	{"integration.noise_gate_g", "noise-gate"},
	{"integration.disable_noise_gate", "no-noise-gate"},
	{"integration.rounding_decimals", "rounding"},
	{"sampler.record_interval_ms", "interval"},
	{"records.enabled", "record"},
	{"records.db_path", "records-db"},
	{"records.mqtt.broker", "mqtt-broker"},
	{"profile.db_path", "profile-db"},
}

func setDefaults(v *viper.Viper) {
	cal := calibration.DefaultConfig()
	integ := integration.DefaultConfig()
	smp := sampler.DefaultConfig()
	rec := records.DefaultConfig()
	dev := imu.DefaultConfig()

	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("calibrate", false)
	v.SetDefault("run_dir", "")

	v.SetDefault("device.kind", dev.Kind)
	v.SetDefault("device.i2c_bus", dev.Bus)
	v.SetDefault("device.address", int(dev.Address))
	v.SetDefault("device.sim.accel_bias", []float64{0, 0, 0})
	v.SetDefault("device.sim.gyro_bias", []float64{0, 0, 0})
	v.SetDefault("device.sim.noise", 0.0)
	v.SetDefault("device.sim.seed", 1)
	v.SetDefault("device.sim.limit", 0)

	v.SetDefault("calibration.buffer_size", cal.BufferSize)
	v.SetDefault("calibration.warmup_samples", cal.WarmupSamples)
	v.SetDefault("calibration.accel_deadzone", cal.AccelDeadzone)
	v.SetDefault("calibration.gyro_deadzone", cal.GyroDeadzone)
	v.SetDefault("calibration.gravity_reference", cal.GravityReference)
	v.SetDefault("calibration.sample_interval_ms", cal.SampleInterval.Milliseconds())
	v.SetDefault("calibration.read_timeout_ms", cal.ReadTimeout.Milliseconds())
	v.SetDefault("calibration.max_iterations", cal.MaxIterations)
	v.SetDefault("calibration.timeout_s", 0)
	v.SetDefault("calibration.settle_ms", 1000)
	v.SetDefault("calibration.verify", true)

	v.SetDefault("integration.noise_gate_g", *integ.NoiseGateG)
	v.SetDefault("integration.disable_noise_gate", false)
	v.SetDefault("integration.rounding_decimals", integ.RoundingDecimals)

	v.SetDefault("sampler.record_interval_ms", smp.Interval.Milliseconds())
	v.SetDefault("sampler.status_interval_ms", smp.StatusInterval.Milliseconds())

	v.SetDefault("records.enabled", rec.Enabled)
	v.SetDefault("records.db_path", rec.DBPath)
	v.SetDefault("records.backup_dir", "")
	v.SetDefault("records.batch_size", rec.BatchSize)
	v.SetDefault("records.batch_timeout_ms", rec.BatchTimeout.Milliseconds())
	v.SetDefault("records.memory_size", 256)
	v.SetDefault("records.mqtt.broker", "")
	v.SetDefault("records.mqtt.topic", rec.MQTT.Topic)
	v.SetDefault("records.mqtt.client_id", "")
	v.SetDefault("records.mqtt.username", "")
	v.SetDefault("records.mqtt.password", "")
	v.SetDefault("records.mqtt.qos", 0)
	v.SetDefault("records.mqtt.timeout_ms", rec.MQTT.Timeout.Milliseconds())

	v.SetDefault("profile.db_path", profile.DefaultConfig().DBPath)
}

// NewFlagSet declares every command line flag. Defaults mirror the
// configuration defaults so an unset flag never masks a file value.
func NewFlagSet() *pflag.FlagSet {
	cal := calibration.DefaultConfig()
	integ := integration.DefaultConfig()

	flags := pflag.NewFlagSet("imuctl", pflag.ContinueOnError)
	flags.String("config", "", "Path to the configuration file")
	flags.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	flags.Bool("calibrate", false, "Calibrate the device and save a profile instead of recording")
	flags.String("run-dir", "", "Directory for PID files")
	flags.String("device", imu.KindMPU6050, "Sample source (mpu6050, sim)")
	flags.String("i2c-bus", "", "I2C bus name; empty selects the first bus")
	flags.Int("address", imu.DefaultMPU6050Address, "I2C address of the device")
	flags.Int("buffer-size", cal.BufferSize, "Samples averaged per calibration pass")
	flags.Int("warmup", cal.WarmupSamples, "Samples discarded before each pass")
	flags.Int("max-iterations", cal.MaxIterations, "Maximum calibration iterations")
	flags.Int("timeout", 0, "Calibration deadline in seconds; 0 disables it")
	flags.Float64("noise-gate", *integ.NoiseGateG, "Ignore axes below this many g")
	flags.Bool("no-noise-gate", false, "Integrate every sample")
	flags.Int("rounding", integ.RoundingDecimals, "Decimal digits kept in velocity")
	flags.Int("interval", int(sampler.DefaultConfig().Interval.Milliseconds()), "Recording interval in milliseconds")
	flags.Bool("record", false, "Store records in the SQLite database")
	flags.String("records-db", records.DefaultConfig().DBPath, "Records database path")
	flags.String("mqtt-broker", "", "Publish records to this MQTT broker")
	flags.String("profile-db", profile.DefaultConfig().DBPath, "Calibration profile database path")
	return flags
}

// Load reads defaults, the configuration file, environment variables and
// command line flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if !o.argsSet && len(os.Args) > 1 {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	flags := NewFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, explicit := o.configPath, o.configPath != ""
	if flagPath, _ := flags.GetString("config"); !explicit && flagPath != "" {
		path, explicit = flagPath, true
	}
	if envPath := os.Getenv(o.envPrefix + "_CONFIG"); !explicit && envPath != "" {
		path, explicit = envPath, true
	}
	if path == "" {
		path = defaultConfigFile
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).
				WithMessage("Failed to read config file " + path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, struct {
			LogLevel string
		}{
			LogLevel: c.LogLevel.String(),
		})
	}

	for _, bias := range [][]float64{c.Device.Sim.AccelBias, c.Device.Sim.GyroBias} {
		if len(bias) != 0 && len(bias) != 3 {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "sim bias needs three components")
		}
	}
	if c.Device.Address < 0 || c.Device.Address > 0x7f {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "device.address",
			Value: c.Device.Address,
		})
	}

	validators := []func() error{
		c.IMU().Validate,
		c.CalibrationConfig().Validate,
		c.IntegrationConfig().Validate,
		c.SamplerConfig().Validate,
		c.RecordsConfig().Validate,
	}
	if c.Calibrate {
		validators = append(validators, c.ProfileConfig().Validate)
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) IMU() imu.Config {
	return imu.Config{
		Kind:    c.Device.Kind,
		Bus:     c.Device.I2CBus,
		Address: uint16(c.Device.Address),
		Sim: imu.SimConfig{
			AccelBias: vector(c.Device.Sim.AccelBias),
			GyroBias:  vector(c.Device.Sim.GyroBias),
			Gravity:   c.Calibration.GravityReference,
			Noise:     c.Device.Sim.Noise,
			Seed:      c.Device.Sim.Seed,
			Limit:     c.Device.Sim.Limit,
		},
	}
}

func (c *Config) CalibrationConfig() calibration.Config {
	cal := c.Calibration
	return calibration.Config{
		BufferSize:       cal.BufferSize,
		WarmupSamples:    cal.WarmupSamples,
		AccelDeadzone:    cal.AccelDeadzone,
		GyroDeadzone:     cal.GyroDeadzone,
		GravityReference: cal.GravityReference,
		SampleInterval:   millis(cal.SampleIntervalMs),
		ReadTimeout:      millis(cal.ReadTimeoutMs),
		MaxIterations:    cal.MaxIterations,
		Timeout:          time.Duration(cal.TimeoutS) * time.Second,
		SettleDelay:      millis(cal.SettleMs),
		Verify:           cal.Verify,
	}
}

// IntegrationConfig maps disable_noise_gate onto a nil threshold.
func (c *Config) IntegrationConfig() integration.Config {
	cfg := integration.Config{RoundingDecimals: c.Integration.RoundingDecimals}
	if !c.Integration.DisableNoiseGate {
		cfg.NoiseGateG = integration.Gate(c.Integration.NoiseGateG)
	}
	return cfg
}

func (c *Config) SamplerConfig() sampler.Config {
	return sampler.Config{
		Interval:         millis(c.Sampler.RecordIntervalMs),
		StatusInterval:   millis(c.Sampler.StatusIntervalMs),
		GravityReference: c.Calibration.GravityReference,
		ReadTimeout:      millis(c.Calibration.ReadTimeoutMs),
	}
}

// RecordsConfig enables MQTT publishing whenever a broker is configured.
func (c *Config) RecordsConfig() records.Config {
	r := c.Records
	return records.Config{
		Enabled:      r.Enabled,
		DBPath:       r.DBPath,
		BackupDir:    r.BackupDir,
		BatchSize:    r.BatchSize,
		BatchTimeout: millis(r.BatchTimeoutMs),
		MemorySize:   r.MemorySize,
		MQTT: records.MQTTConfig{
			Enabled:  r.MQTT.Broker != "",
			Broker:   r.MQTT.Broker,
			Topic:    r.MQTT.Topic,
			ClientID: r.MQTT.ClientID,
			Username: r.MQTT.Username,
			Password: r.MQTT.Password,
			QoS:      byte(r.MQTT.QoS),
			Timeout:  millis(r.MQTT.TimeoutMs),
		},
	}
}

func (c *Config) ProfileConfig() profile.Config {
	return profile.Config{DBPath: c.Profile.DBPath}
}

func vector(v []float64) r3.Vector {
	if len(v) != 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
