package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type Persistence struct {
	FilePath     string        `yaml:"filePath" validate:"required|unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"required"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type RelayConfig struct {
	Default        []string      `yaml:"default" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	QueryTimeout   time.Duration `yaml:"queryTimeout"`
}

// ScanConfig tunes the collector passes. Zero values fall back to the
// defaults in package zombie.
type ScanConfig struct {
	BatchSize          int           `yaml:"batchSize"`
	BatchDelay         time.Duration `yaml:"batchDelay"`
	BatchTimeout       time.Duration `yaml:"batchTimeout"`
	WindowDays         int           `yaml:"windowDays"`
	EventLimit         int           `yaml:"eventLimit"`
	RetryWindowDays    int           `yaml:"retryWindowDays"`
	RetryTimeout       time.Duration `yaml:"retryTimeout"`
	ExhaustiveLimit    int           `yaml:"exhaustiveLimit"`
	ExhaustiveTimeout  time.Duration `yaml:"exhaustiveTimeout"`
	NotesBatchSize     int           `yaml:"notesBatchSize"`
	NotesLimit         int           `yaml:"notesLimit"`
	RelayListBatchSize int           `yaml:"relayListBatchSize"`
	ProfileLimit       int           `yaml:"profileLimit"`
	QueueBatchSize     int           `yaml:"queueBatchSize"`
	Watch              []string      `yaml:"watch"`
}

// ThresholdsConfig holds the day thresholds between zombie tiers.
type ThresholdsConfig struct {
	Fresh   int `yaml:"fresh" validate:"required|min:1"`
	Rotting int `yaml:"rotting" validate:"required|min:1"`
	Ancient int `yaml:"ancient" validate:"required|min:1"`
}

type SchedulerConfig struct {
	RescanInterval time.Duration `yaml:"rescanInterval"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	WebServer   Server           `yaml:"webServer"`
	Logger      LoggerConfig     `yaml:"logger"`
	Relays      RelayConfig      `yaml:"relays"`
	Scan        ScanConfig       `yaml:"scan"`
	Thresholds  ThresholdsConfig `yaml:"thresholds"`
	Persistence Persistence      `yaml:"persistence"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Cache       CacheConfig      `yaml:"cache"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}
