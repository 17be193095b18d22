package logger

// LoggingConfig configures the central logger
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level"`
	Timezone     string            `yaml:"timezone" json:"timezone"` // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput    `yaml:"console" json:"console"`
	FileOutput   *FileOutput       `yaml:"file_output" json:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels"`
}

// ConsoleOutput configures text output on stdout
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level"`
}

// FileOutput configures JSON file output with rotation
type FileOutput struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Path            string `yaml:"path" json:"path"`
	Level           string `yaml:"level" json:"level"`
	MaxSize         int    `yaml:"max_size" json:"max_size"`                   // MB before rotation
	MaxAge          int    `yaml:"max_age" json:"max_age"`                     // days to keep rotated files
	MaxRotatedFiles int    `yaml:"max_rotated_files" json:"max_rotated_files"` // 0 keeps all
	Compress        bool   `yaml:"compress" json:"compress"`
}

const (
	DefaultLogLevel        = "info"
	DefaultLogPath         = "logs/myeventlane.log"
	DefaultMaxSize         = 100
	DefaultMaxAge          = 30
	DefaultMaxRotatedFiles = 10
)

func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		if cfg.FileOutput.Path == "" {
			cfg.FileOutput.Path = DefaultLogPath
		}
		if cfg.FileOutput.MaxSize == 0 {
			cfg.FileOutput.MaxSize = DefaultMaxSize
		}
		if cfg.FileOutput.Level == "" {
			cfg.FileOutput.Level = cfg.DefaultLevel
		}
	}
	if cfg.ModuleLevels == nil {
		cfg.ModuleLevels = make(map[string]string)
	}
}
