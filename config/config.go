// Package config loads the service configuration from a YAML file, an
// optional .env file and HASHWHEEL_* environment variables, in increasing
// order of precedence, and validates it before anything is built from it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/KFCxMcDonalds/hashwheel/logger"
)

const (
	envPrefix      = "HASHWHEEL"
	configName     = "hashwheel"
	defaultConfDir = "./configs"
)

type Config struct {
	Wheel   WheelConf   `mapstructure:"wheel"`
	Metrics MetricsConf `mapstructure:"metrics"`
	HTTP    HTTPConf    `mapstructure:"http"`
	Log     logger.Conf `mapstructure:"log"`
}

type WheelConf struct {
	SlotCount     int           `mapstructure:"slot_count" validate:"gt=0"`
	TickDuration  time.Duration `mapstructure:"tick_duration" validate:"gt=0"`
	WorkerThreads int           `mapstructure:"worker_threads" validate:"gt=0"`
	TaskRetention time.Duration `mapstructure:"task_retention" validate:"gte=0"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gte=0"`
}

type MetricsConf struct {
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	Namespace     string `mapstructure:"namespace" validate:"required_if=EnableMetrics true"`
	GoCollector   bool   `mapstructure:"go_collector"`
}

type HTTPConf struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	Mode              string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wheel.slot_count", 512)
	v.SetDefault("wheel.tick_duration", 100*time.Millisecond)
	v.SetDefault("wheel.worker_threads", 64)
	v.SetDefault("wheel.task_retention", 10*time.Minute)
	v.SetDefault("wheel.shutdown_grace", 5*time.Second)

	v.SetDefault("metrics.enable_metrics", true)
	v.SetDefault("metrics.namespace", "hashwheel")
	v.SetDefault("metrics.go_collector", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	lc := logger.DefaultConf()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.path", lc.Path)
	v.SetDefault("log.name", lc.Name)
	v.SetDefault("log.json", lc.JSON)
	v.SetDefault("log.caller", lc.Caller)
	v.SetDefault("log.max_age", lc.MaxAge)
	v.SetDefault("log.rotation_time", lc.RotationTime)
}

// Load reads file when it is set, otherwise looks for hashwheel.yaml in
// ./configs and the working directory. A missing file is not an error.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfDir)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := new(Config)
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidationError lists every problem found so all of them can be fixed in
// one pass.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report keys the way they are written in the file
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s fails %q", key, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s fails %q (%s)", key, fe.Tag(), fe.Param())
		}
		ve.Errors = append(ve.Errors, fmt.Sprintf("%s, got %v", msg, fe.Value()))
	}
	return ve
}
