/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Typed configuration of an exploration session. Values come from cobra flags bound
into viper, an optional config file and DLD_ environment variables; Default holds the stock
values and Validate rejects inconsistent settings before any device is touched.
*/

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kleascm/dld/pkg/logging"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/policy"
)

// EnvPrefix prefixes the environment variables read by Load
const EnvPrefix = "DLD"

// Config holds every setting of an exploration session
type Config struct {
	Policy       string `mapstructure:"policy"`
	APK          string `mapstructure:"apk"`
	Package      string `mapstructure:"package"`
	DeviceSerial string `mapstructure:"device_serial"`
	OutputDir    string `mapstructure:"output_dir"`

	EventCount    int           `mapstructure:"event_count"` // negative runs until interrupted
	EventInterval time.Duration `mapstructure:"event_interval"`
	RandomInput   bool          `mapstructure:"random_input"`
	Seed          int64         `mapstructure:"seed"` // 0 seeds from the clock
	Orientation   int           `mapstructure:"orientation"`

	Epsilon             float64 `mapstructure:"epsilon"`
	ScrollFullDownY     int     `mapstructure:"scroll_full_down_y"`
	ScreenshotThreshold float64 `mapstructure:"screenshot_threshold"`
	ViewFilter          string  `mapstructure:"view_filter"`

	MaxRestarts         int           `mapstructure:"max_restarts"`
	MaxStepsOutside     int           `mapstructure:"max_steps_outside"`
	MaxStepsOutsideKill int           `mapstructure:"max_steps_outside_kill"`
	MaxReplayTries      int           `mapstructure:"max_replay_tries"`
	ReplayDir           string        `mapstructure:"replay_dir"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	NullStateDelay      time.Duration `mapstructure:"null_state_delay"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`

	Coverage    bool   `mapstructure:"coverage"`
	Logcat      bool   `mapstructure:"logcat"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	LogDir      string `mapstructure:"log_dir"`
	LogMaxFiles int    `mapstructure:"log_max_files"`
	LogColors   bool   `mapstructure:"log_colors"`
}

// Default returns the stock configuration
func Default() *Config {
	limits := policy.DefaultLimits()
	return &Config{
		Policy:              policy.NameDataLoss,
		OutputDir:           "./dld_output",
		EventCount:          100,
		EventInterval:       time.Second,
		Epsilon:             policy.DefaultEpsilon,
		ScrollFullDownY:     policy.DefaultScrollFullDownY,
		ScreenshotThreshold: oracle.DefaultThreshold,
		ViewFilter:          policy.DefaultViewFilter,
		MaxRestarts:         limits.MaxRestarts,
		MaxStepsOutside:     limits.MaxStepsOutside,
		MaxStepsOutsideKill: limits.MaxStepsOutsideKill,
		MaxReplayTries:      limits.MaxReplayTries,
		SettleDelay:         2 * time.Second,
		NullStateDelay:      limits.NullStateDelay,
		RetryDelay:          limits.RetryDelay,
		Logcat:              true,
		LogLevel:            string(logging.LogLevelInfo),
		LogFormat:           string(logging.LogFormatCustom),
		LogDir:              "./logs",
		LogMaxFiles:         10,
		LogColors:           true,
	}
}

// SetDefaults registers every key with its stock value, which also makes the key visible to
// the environment lookup
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("policy", d.Policy)
	v.SetDefault("apk", d.APK)
	v.SetDefault("package", d.Package)
	v.SetDefault("device_serial", d.DeviceSerial)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("event_count", d.EventCount)
	v.SetDefault("event_interval", d.EventInterval)
	v.SetDefault("random_input", d.RandomInput)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("orientation", d.Orientation)
	v.SetDefault("epsilon", d.Epsilon)
	v.SetDefault("scroll_full_down_y", d.ScrollFullDownY)
	v.SetDefault("screenshot_threshold", d.ScreenshotThreshold)
	v.SetDefault("view_filter", d.ViewFilter)
	v.SetDefault("max_restarts", d.MaxRestarts)
	v.SetDefault("max_steps_outside", d.MaxStepsOutside)
	v.SetDefault("max_steps_outside_kill", d.MaxStepsOutsideKill)
	v.SetDefault("max_replay_tries", d.MaxReplayTries)
	v.SetDefault("replay_dir", d.ReplayDir)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("null_state_delay", d.NullStateDelay)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("coverage", d.Coverage)
	v.SetDefault("logcat", d.Logcat)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_max_files", d.LogMaxFiles)
	v.SetDefault("log_colors", d.LogColors)
}

// Load reads the configuration from v. The file named by the "config" key is merged first,
// then DLD_ environment variables override it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid or missing values
func (c *Config) Validate() error {
	known := false
	for _, name := range policy.Names() {
		if c.Policy == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown policy %q, expected one of %v", c.Policy, policy.Names())
	}
	if c.APK == "" && c.Package == "" {
		return fmt.Errorf("either apk or package must be set")
	}
	if c.Coverage && c.APK == "" {
		return fmt.Errorf("coverage needs the apk to instrument")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.Policy == policy.NameReplay && c.ReplayDir == "" {
		return fmt.Errorf("replay policy needs replay_dir")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be within [0, 1], got %v", c.Epsilon)
	}
	if c.ScreenshotThreshold < 0 || c.ScreenshotThreshold > 100 {
		return fmt.Errorf("screenshot_threshold is a percentage, got %v", c.ScreenshotThreshold)
	}
	if c.ScrollFullDownY <= 0 {
		return fmt.Errorf("scroll_full_down_y must be positive")
	}
	if c.Orientation < 0 || c.Orientation > 3 {
		return fmt.Errorf("orientation must be within [0, 3], got %d", c.Orientation)
	}
	if c.MaxRestarts < 0 || c.MaxStepsOutside < 0 || c.MaxReplayTries <= 0 {
		return fmt.Errorf("recovery limits must not be negative and max_replay_tries must be positive")
	}
	if c.MaxStepsOutsideKill < c.MaxStepsOutside {
		return fmt.Errorf("max_steps_outside_kill (%d) must not be below max_steps_outside (%d)", c.MaxStepsOutsideKill, c.MaxStepsOutside)
	}
	if c.EventInterval < 0 || c.SettleDelay < 0 || c.NullStateDelay < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if _, err := policy.NewViewFilter(c.ViewFilter); err != nil {
		return err
	}
	return c.LoggerConfig().Validate()
}

// Limits returns the recovery limits of the session
func (c *Config) Limits() policy.Limits {
	return policy.Limits{
		MaxRestarts:         c.MaxRestarts,
		MaxStepsOutside:     c.MaxStepsOutside,
		MaxStepsOutsideKill: c.MaxStepsOutsideKill,
		MaxReplayTries:      c.MaxReplayTries,
		DefaultOrientation:  c.Orientation,
		NullStateDelay:      c.NullStateDelay,
		RetryDelay:          c.RetryDelay,
	}
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	return &logging.LoggerConfig{
		Level:     logging.LogLevel(c.LogLevel),
		Format:    logging.LogFormat(c.LogFormat),
		OutputDir: c.LogDir,
		MaxFiles:  c.LogMaxFiles,
		Timestamp: true,
		Colors:    c.LogColors,
	}
}
