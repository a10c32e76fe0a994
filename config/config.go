package config

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sync holds the tuning constants of the playback sync engine. These are
// policy, not invariants: the shipped defaults match what was validated
// against real recordings, but every value can be overridden.
type Sync struct {
	DriftThreshold  float64 `mapstructure:"drift_threshold"`   // seconds
	CheckIntervalMs int     `mapstructure:"check_interval_ms"` // monitor cadence
	SyncInterval    float64 `mapstructure:"sync_interval"`     // seconds between corrections
	EndOfClipBuffer float64 `mapstructure:"end_of_clip_buffer"`
}

type Timeline struct {
	ExpectedClipDuration float64 `mapstructure:"expected_clip_duration"`
	GapTolerance         float64 `mapstructure:"gap_tolerance"`
}

type Auth struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Secret   string `mapstructure:"secret"`
}

type Config struct {
	FootagePath string   `mapstructure:"footage_path"`
	ConfigPath  string   `mapstructure:"config_path"`
	ListenAddr  string   `mapstructure:"listen_addr"`
	LogLevel    string   `mapstructure:"log_level"`
	Sync        Sync     `mapstructure:"sync"`
	Timeline    Timeline `mapstructure:"timeline"`
	Auth        Auth     `mapstructure:"auth"`
}

var defaultConf = Config{
	FootagePath: "/footage",
	ConfigPath:  "/config",
	ListenAddr:  ":8080",
	LogLevel:    "info",
	Sync: Sync{
		DriftThreshold:  0.3,
		CheckIntervalMs: 100,
		SyncInterval:    30,
		EndOfClipBuffer: 5,
	},
	Timeline: Timeline{
		ExpectedClipDuration: 60,
		GapTolerance:         30,
	},
	Auth: Auth{
		Enabled:  false,
		Username: "admin",
		Password: "tesla",
		Secret:   "default-secret-key-change-me",
	},
}

func initDefaults(v *viper.Viper) {
	v.SetDefault("footage_path", defaultConf.FootagePath)
	v.SetDefault("config_path", defaultConf.ConfigPath)
	v.SetDefault("listen_addr", defaultConf.ListenAddr)
	v.SetDefault("log_level", defaultConf.LogLevel)
	v.SetDefault("sync.drift_threshold", defaultConf.Sync.DriftThreshold)
	v.SetDefault("sync.check_interval_ms", defaultConf.Sync.CheckIntervalMs)
	v.SetDefault("sync.sync_interval", defaultConf.Sync.SyncInterval)
	v.SetDefault("sync.end_of_clip_buffer", defaultConf.Sync.EndOfClipBuffer)
	v.SetDefault("timeline.expected_clip_duration", defaultConf.Timeline.ExpectedClipDuration)
	v.SetDefault("timeline.gap_tolerance", defaultConf.Timeline.GapTolerance)
	v.SetDefault("auth.enabled", defaultConf.Auth.Enabled)
	v.SetDefault("auth.username", defaultConf.Auth.Username)
	v.SetDefault("auth.password", defaultConf.Auth.Password)
	v.SetDefault("auth.secret", defaultConf.Auth.Secret)
}

// Load reads configuration from defaults, an optional teslacam.yaml in the
// config dir, TESLACAM_* environment variables, and command-line flags, in
// increasing order of precedence.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("teslacam", pflag.ContinueOnError)
	fs.String("footage_path", defaultConf.FootagePath, "root of the TeslaCam footage tree")
	fs.String("config_path", defaultConf.ConfigPath, "directory for the database and exports")
	fs.String("listen_addr", defaultConf.ListenAddr, "HTTP listen address")
	fs.String("log_level", defaultConf.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	initDefaults(v)

	v.SetEnvPrefix("TESLACAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	configPath := v.GetString("config_path")
	v.SetConfigName("teslacam")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Debug("no config file found, using defaults")
	} else {
		log.WithField("file", v.ConfigFileUsed()).Info("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DatabasePath returns the sqlite file location under the config dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ConfigPath, "teslacam.db")
}

// ExportPath returns the directory finished exports are written to.
func (c *Config) ExportPath() string {
	return filepath.Join(c.ConfigPath, "exports")
}
