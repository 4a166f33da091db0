// internal/config/config.go
package config

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	Device DeviceConfig `yaml:"device"`
	I2C    I2CConfig    `yaml:"i2c"`
	Stream StreamConfig `yaml:"stream"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	VID uint16 `yaml:"vid"`
	PID uint16 `yaml:"pid"`

	// Label is a free-form board identifier used in log output only.
	Label string `yaml:"label"`

	BulkInEndpoint   int `yaml:"bulk_in_endpoint"`
	ControlTimeoutMs int `yaml:"control_timeout_ms"`
	ConnectAttempts  int `yaml:"connect_attempts"`
	ConnectDelayMs   int `yaml:"connect_delay_ms"`
}

// ---- BUS ----

type I2CConfig struct {
	BitRate    uint32 `yaml:"bit_rate"`
	RetryCount int    `yaml:"retry_count"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ---- STREAM ----

type StreamConfig struct {
	CapturesPerBuffer int              `yaml:"captures_per_buffer"`
	NumBuffers        int              `yaml:"num_buffers"`
	TimeoutMs         int              `yaml:"timeout_ms"`
	Registers         []RegisterConfig `yaml:"registers"`
}

// RegisterConfig is one capture target. Geometry only: no semantics.
type RegisterConfig struct {
	Address uint16 `yaml:"address"`
	Page    uint16 `yaml:"page"`
	Width   int    `yaml:"width"`
}
