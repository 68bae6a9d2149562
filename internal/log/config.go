package log

type LoggerConfig struct {
	Level     string           `mapstructure:"level" yaml:"level"`
	Pattern   string           `mapstructure:"pattern" yaml:"pattern"`
	Time      string           `mapstructure:"time" yaml:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders" yaml:"appenders"`
}

type AppenderConfig struct {
	Type string              `mapstructure:"type" yaml:"type"`
	File *FileAppenderConfig `mapstructure:"file" yaml:"file,omitempty"`
}

type FileAppenderConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns the console-only configuration used when no
// log section is present in the config file.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Pattern: "%time [%level] %msg%n",
		Time:    "2006-01-02 15:04:05",
		Appenders: []AppenderConfig{
			{Type: "console"},
		},
	}
}
