package serialplot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig selects the device for one acquisition session. It is
// copied at Start and cannot change until the session ends.
type ConnectionConfig struct {
	PortName    string        `yaml:"port" validate:"serialport"`
	BaudRate    int           `yaml:"baud_rate" validate:"oneof=9600 19200 38400 57600 115200"`
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gt=0"`
}

// AcquisitionConfig sizes the buffers and the retry policy.
type AcquisitionConfig struct {
	MaxPoints    int           `yaml:"max_points" validate:"gte=1,lte=100000"`
	LogCapacity  int           `yaml:"log_capacity" validate:"gte=1,lte=10000"`
	QueueSize    int           `yaml:"queue_size" validate:"gte=1,lte=100000"`
	RetryBudget  int           `yaml:"retries" validate:"gte=1,lte=1000"`
	RetryBackoff time.Duration `yaml:"retry_backoff" validate:"gte=0"`
	SettleDelay  time.Duration `yaml:"settle_delay" validate:"gte=0"`
}

// LogConfig configures the operational log sink.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	Level      string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Console    bool   `yaml:"console"`
}

// AppConfig is the on-disk configuration file layout.
type AppConfig struct {
	Connection  ConnectionConfig  `yaml:"connection"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Logging     LogConfig         `yaml:"logging"`
}

const (
	DefaultReadTimeout  = time.Second
	DefaultRetryBudget  = 3
	DefaultRetryBackoff = 2 * time.Second
	DefaultSettleDelay  = 2 * time.Second
	DefaultLogFile      = "serialplot.log"
)

// Defaults returns a configuration with every field set except the port.
func Defaults() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			BaudRate:    DefaultBaudRate.Int(),
			ReadTimeout: DefaultReadTimeout,
		},
		Acquisition: AcquisitionConfig{
			MaxPoints:    DefaultMaxPoints,
			LogCapacity:  DefaultLogCapacity,
			QueueSize:    DefaultQueueSize,
			RetryBudget:  DefaultRetryBudget,
			RetryBackoff: DefaultRetryBackoff,
			SettleDelay:  DefaultSettleDelay,
		},
		Logging: LogConfig{
			File:       DefaultLogFile,
			MaxSizeMB:  1,
			MaxBackups: 5,
			Level:      "debug",
		},
	}
}

// LoadConfig reads a YAML file over Defaults. The connection section is not
// validated here because the port is usually chosen later; see
// ValidateConnection.
func LoadConfig(path string) (AppConfig, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err = ValidateSettings(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
