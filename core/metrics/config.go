package metrics

import "github.com/gridwise/tariffsim/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `koanf:"sinks"`
}
