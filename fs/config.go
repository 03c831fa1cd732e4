package fs

import (
	"context"
	"strings"
)

// ConfigInfo holds the process wide options which are not specific
// to a single server
type ConfigInfo struct {
	LogLevel   LogLevel
	UseJSONLog bool
}

// NewConfig creates a new config with everything set to the default
// value.
func NewConfig() *ConfigInfo {
	return &ConfigInfo{
		LogLevel: LogLevelNotice,
	}
}

type configContextKeyType struct{}

// Context key for config
var configContextKey = configContextKeyType{}

// global config
var globalConfig = NewConfig()

// GetConfig returns the global or context sensitive config
func GetConfig(ctx context.Context) *ConfigInfo {
	if ctx == nil {
		return globalConfig
	}
	c := ctx.Value(configContextKey)
	if c == nil {
		return globalConfig
	}
	return c.(*ConfigInfo)
}

// AddConfig returns a mutable config structure based on a shallow
// copy of that found in ctx and returns a new context with that added
// to it.
func AddConfig(ctx context.Context) (context.Context, *ConfigInfo) {
	c := GetConfig(ctx)
	cCopy := new(ConfigInfo)
	*cCopy = *c
	newCtx := context.WithValue(ctx, configContextKey, cCopy)
	return newCtx, cCopy
}

// OptionToEnv converts an option name, e.g. "allow-origin" into an
// environment name "CORSSERVE_ALLOW_ORIGIN"
func OptionToEnv(name string) string {
	return "CORSSERVE_" + strings.ToUpper(strings.Replace(name, "-", "_", -1))
}
