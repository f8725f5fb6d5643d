package log

// Config controls the process logger. It is embedded under the `log:` key of
// the main configuration file.
type Config struct {
	Level   string `mapstructure:"level"`
	Pattern string `mapstructure:"pattern"`
	Time    string `mapstructure:"time"`

	// Console enables writing to stdout. Disabled for extcap sessions where
	// stdout may be the capture stream itself.
	Console bool `mapstructure:"console"`

	File FileConfig `mapstructure:"file"`
}

// FileConfig configures the rotating file appender (lumberjack).
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func defaultConfig() *Config {
	return &Config{
		Level:   "info",
		Pattern: "%time [%level] %field %msg\n",
		Time:    "2006-01-02 15:04:05.000",
		Console: true,
	}
}
