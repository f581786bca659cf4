package config

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	threshold, err := decimal.NewFromString(c.Risk.HighValueThreshold)
	if err != nil {
		return errors.New("high_value_threshold must be a decimal number")
	}
	if threshold.IsNegative() {
		return errors.New("high_value_threshold must not be negative")
	}

	if c.Risk.AnalysisTimeout <= 0 {
		return errors.New("analysis_timeout must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka enabled but no brokers configured")
	}

	return nil
}
