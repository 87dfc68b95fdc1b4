package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath   string        `mapstructure:"database_path" yaml:"database_path"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout" yaml:"storage_timeout"`

	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// AuthRateLimit caps register/login attempts per client per minute.
	// Zero disables the limiter.
	AuthRateLimit int `mapstructure:"auth_rate_limit" yaml:"auth_rate_limit"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "pingline.db",
		StorageTimeout:    5 * time.Second,
		UploadDir:         "uploads",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "pingline",
		JWTAudience:       "pingline-clients",
		AuthRateLimit:     30,
		LogLevel:          "info",
	}
}
