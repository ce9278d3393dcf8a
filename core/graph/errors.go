package graph

import "fmt"

// ConfigError reports a malformed graph definition.
type ConfigError struct {
	BlockID string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.BlockID == "" {
		return "graph: " + e.Reason
	}
	return fmt.Sprintf("graph: block %s: %s", e.BlockID, e.Reason)
}

// Code returns a stable identifier for logs.
func (e *ConfigError) Code() string { return "CONFIGURATION_ERROR" }

func configErrorf(blockID, format string, args ...any) *ConfigError {
	return &ConfigError{BlockID: blockID, Reason: fmt.Sprintf(format, args...)}
}
