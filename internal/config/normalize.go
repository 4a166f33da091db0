// internal/config/normalize.go
package config

// Bus bit-rate bounds accepted by the controller. Out-of-range rates are
// clamped, matching the device's own filter.
const (
	minBitRate = 100000
	maxBitRate = 1000000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Bridge.Device

	// ------------------------------------------------------------
	// DEVICE DEFAULTS
	// ------------------------------------------------------------

	if d.ControlTimeoutMs == 0 {
		d.ControlTimeoutMs = 1000
	}
	if d.ConnectAttempts < 1 {
		d.ConnectAttempts = 1
	}

	// Truncate label (ASCII already validated).
	if len(d.Label) > maxLabelChars {
		d.Label = d.Label[:maxLabelChars]
	}

	// ------------------------------------------------------------
	// BUS BIT-RATE CLAMP
	// ------------------------------------------------------------

	i2c := &cfg.Bridge.I2C
	if i2c.BitRate < minBitRate {
		i2c.BitRate = minBitRate
	}
	if i2c.BitRate > maxBitRate {
		i2c.BitRate = maxBitRate
	}
	if i2c.TimeoutMs == 0 {
		i2c.TimeoutMs = 500
	}
}
