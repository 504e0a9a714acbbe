package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Server   ServerConfig   `mapstructure:"server"`
	Classify ClassifyConfig `mapstructure:"classify"`
}

type PathsConfig struct {
	BundleDir string `mapstructure:"bundle_dir"`
}

type RuntimeConfig struct {
	Backend           string `mapstructure:"backend"`
	ChannelOrder      string `mapstructure:"channel_order"`
	AsyncReadback     bool   `mapstructure:"async_readback"`
	OutputIndex       int    `mapstructure:"output_index"`
	Threads           int    `mapstructure:"threads"`
	EngineLibraryPath string `mapstructure:"engine_library_path"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxBodyBytes    int    `mapstructure:"max_body_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type ClassifyConfig struct {
	TopK      int `mapstructure:"top_k"`
	ImageSize int `mapstructure:"image_size"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			BundleDir: "models/classifier",
		},
		Runtime: RuntimeConfig{
			Backend:           BackendAuto,
			ChannelOrder:      OrderNCHW,
			AsyncReadback:     false,
			OutputIndex:       0,
			Threads:           4,
			EngineLibraryPath: "",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxBodyBytes:    8 << 20,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
		Classify: ClassifyConfig{
			TopK:      5,
			ImageSize: 224,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-bundle-dir", defaults.Paths.BundleDir, "Path to the model bundle directory")
	fs.String("runtime-backend", defaults.Runtime.Backend, "Execution backend (auto|cpu|gpu-compute|gpu-pixel)")
	fs.String("runtime-channel-order", defaults.Runtime.ChannelOrder, "Tensor channel order (nchw|nhwc)")
	fs.Bool("runtime-async-readback", defaults.Runtime.AsyncReadback, "Enable asynchronous output readback (gpu-compute only)")
	fs.Int("runtime-output-index", defaults.Runtime.OutputIndex, "Index of the declared graph output used for classification")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "Engine intra-op thread count")
	fs.String("runtime-engine-library-path", defaults.Runtime.EngineLibraryPath, "Path to the inference-engine shared library")
	fs.String("engine-lib", defaults.Runtime.EngineLibraryPath, "Path to the inference-engine shared library (alias for --runtime-engine-library-path)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent classification requests")
	fs.Int("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum request body size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("classify-top-k", defaults.Classify.TopK, "Number of top scores reported")
	fs.Int("classify-image-size", defaults.Classify.ImageSize, "Square input image size in pixels")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("IMAGECLASSIFY")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.engine_library_path", "IMAGECLASSIFY_ENGINE_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind engine env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("imageclassify")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.bundle_dir", c.Paths.BundleDir)
	v.SetDefault("runtime.backend", c.Runtime.Backend)
	v.SetDefault("runtime.channel_order", c.Runtime.ChannelOrder)
	v.SetDefault("runtime.async_readback", c.Runtime.AsyncReadback)
	v.SetDefault("runtime.output_index", c.Runtime.OutputIndex)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.engine_library_path", c.Runtime.EngineLibraryPath)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("classify.top_k", c.Classify.TopK)
	v.SetDefault("classify.image_size", c.Classify.ImageSize)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.bundle_dir", "paths-bundle-dir")
	v.RegisterAlias("runtime.backend", "runtime-backend")
	v.RegisterAlias("runtime.channel_order", "runtime-channel-order")
	v.RegisterAlias("runtime.async_readback", "runtime-async-readback")
	v.RegisterAlias("runtime.output_index", "runtime-output-index")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.engine_library_path", "runtime-engine-library-path")
	v.RegisterAlias("runtime.engine_library_path", "engine-lib")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_body_bytes", "server-max-body-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("classify.top_k", "classify-top-k")
	v.RegisterAlias("classify.image_size", "classify-image-size")
}
