package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/3leaps/objmanifest/pkg/partition"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "OBJMANIFEST"

// Options selects the optional configuration sources.
type Options struct {
	// ConfigFile is a YAML (or any viper-supported) config file.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment before
	// env lookups. Variables already set are not overwritten.
	EnvFile string

	// Flags are bound by name; only flags set on the command line apply.
	Flags *pflag.FlagSet
}

// EnvSpec maps an environment variable to a config key.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// flagKeys maps flag names that differ from their config key.
var flagKeys = map[string]string{
	"log-level":          "logging.level",
	"log-format":         "logging.format",
	"partition-alphabet": "partition.alphabet",
	"partition-width":    "partition.width",
}

// envNames maps config keys whose env variable does not follow the
// PREFIX_KEY convention.
var envNames = map[string]string{
	"logging.level":  EnvPrefix + "_LOG_LEVEL",
	"logging.format": EnvPrefix + "_LOG_FORMAT",
}

// Load resolves configuration from defaults and the environment. Runtime
// overrides take precedence over both.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadWithOptions(ctx, Options{}, overrides...)
}

// LoadWithOptions resolves configuration with precedence
// overrides > flags > env > config file > defaults.
func LoadWithOptions(ctx context.Context, opts Options, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bucket", "")
	v.SetDefault("provider", "s3")
	v.SetDefault("region", "")
	v.SetDefault("endpoint_url", "")
	v.SetDefault("profile", "")
	v.SetDefault("access_key_id", "")
	v.SetDefault("secret_access_key", "")
	v.SetDefault("force_path_style", false)
	v.SetDefault("output_dir", "")

	v.SetDefault("concurrency", 32)
	v.SetDefault("attempt_timeout", "5s")
	v.SetDefault("max_attempts", 0)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("max_keys", 0)
	v.SetDefault("delimiter", "/")

	v.SetDefault("partition.alphabet", partition.HexAlphabet)
	v.SetDefault("partition.width", 4)
	v.SetDefault("partitions", []string{})
	v.SetDefault("partitions_file", "")
	v.SetDefault("failed_out", "")

	v.SetDefault("events", "")
	v.SetDefault("sync", false)
	v.SetDefault("progress_every", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// configKeys lists every key the loader understands.
var configKeys = []string{
	"bucket", "provider", "region", "endpoint_url", "profile",
	"access_key_id", "secret_access_key", "force_path_style", "output_dir",
	"concurrency", "attempt_timeout", "max_attempts", "rate_limit", "max_keys", "delimiter",
	"partition.alphabet", "partition.width", "partitions", "partitions_file", "failed_out",
	"events", "sync", "progress_every",
	"logging.level", "logging.format",
}

func getEnvSpecs() []EnvSpec {
	specs := make([]EnvSpec, 0, len(configKeys))
	for _, key := range configKeys {
		name, ok := envNames[key]
		if !ok {
			name = EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		}
		specs = append(specs, EnvSpec{Name: name, Path: key})
	}
	return specs
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	known := make(map[string]bool, len(configKeys))
	for _, k := range configKeys {
		known[k] = true
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		key := flagKey(f.Name)
		if !known[key] || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}
