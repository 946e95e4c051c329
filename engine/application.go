package engine

import (
	"github.com/spaghettifunk/spark/engine/core"
)

type ApplicationConfig struct {
	// The application name, used in logs and as the prefix of debug names.
	Name string
	// Path of the TOML configuration file. Empty means the built-in defaults.
	ConfigPath string
	// Log level used when no configuration file is given.
	LogLevel core.LogLevel
	// Stop after this many frames. 0 runs until EVENT_CODE_APPLICATION_QUIT.
	MaxFrames uint64
}
