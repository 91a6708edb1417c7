package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RemoteConfig points builds and launches at a docker host reached over SSH.
type RemoteConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	KeyPath  string `mapstructure:"key_path"`
	Dir      string `mapstructure:"dir"`
}

// Enabled reports whether a remote host is configured.
func (r RemoteConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// PipelineConfig captures the settings of one packaging run.
type PipelineConfig struct {
	Dir              string       `mapstructure:"dir"`
	ModelPath        string       `mapstructure:"model_path"`
	RequirementsPath string       `mapstructure:"requirements_path"`
	EntryFile        string       `mapstructure:"entry_file"`
	ImageName        string       `mapstructure:"image_name"`
	BuildTool        string       `mapstructure:"build_tool"`
	RuntimeTool      string       `mapstructure:"runtime_tool"`
	BaseImage        string       `mapstructure:"base_image"`
	ServiceMode      string       `mapstructure:"service_mode"`
	Port             int          `mapstructure:"port"`
	DiscoveryPolicy  string       `mapstructure:"discovery_policy"`
	DiscoveryCommand []string     `mapstructure:"discovery_command"`
	Telemetry        bool         `mapstructure:"telemetry"`
	Remote           RemoteConfig `mapstructure:"remote"`
}

// ServiceConfig captures runtime settings for the builder service and workers.
type ServiceConfig struct {
	ListenAddr       string   `mapstructure:"listen_addr"`
	WorkspaceRoot    string   `mapstructure:"workspace_root"`
	DatabaseURL      string   `mapstructure:"database_url"`
	RedisURL         string   `mapstructure:"redis_url"`
	RegistryURL      string   `mapstructure:"registry_url"`
	APIKey           string   `mapstructure:"api_key"`
	WorkerID         string   `mapstructure:"worker_id"`
	BuildTool        string   `mapstructure:"build_tool"`
	BaseImage        string   `mapstructure:"base_image"`
	ServiceMode      string   `mapstructure:"service_mode"`
	DiscoveryPolicy  string   `mapstructure:"discovery_policy"`
	DiscoveryCommand []string `mapstructure:"discovery_command"`
	Telemetry        bool     `mapstructure:"telemetry"`
}

func setPipelineDefaults(v *viper.Viper) {
	v.SetDefault("dir", ".")
	v.SetDefault("model_path", "model.pkl")
	v.SetDefault("requirements_path", "requirements.txt")
	v.SetDefault("entry_file", "score.py")
	v.SetDefault("image_name", "modelservice")
	v.SetDefault("build_tool", "docker")
	v.SetDefault("runtime_tool", "docker")
	v.SetDefault("base_image", "ubuntu:22.04")
	v.SetDefault("service_mode", "production")
	v.SetDefault("port", 5000)
	v.SetDefault("discovery_policy", "advisory")
	v.SetDefault("discovery_command", []string{"python3", "-m", "pip", "install", "pigar"})
	v.SetDefault("telemetry", false)
	v.SetDefault("remote.host", "")
	v.SetDefault("remote.port", 22)
	v.SetDefault("remote.user", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.key_path", "")
	v.SetDefault("remote.dir", "/tmp/modelpack")
}

// LoadPipeline loads pipeline configuration from defaults, the modelpack.yaml
// manifest (or configFile), MODELPACK_* env vars and flags, in increasing
// priority. flags may be nil.
func LoadPipeline(configFile string, flags *pflag.FlagSet) (PipelineConfig, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("modelpack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("MODELPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPipelineDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(flagKey(f.Name), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return PipelineConfig{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := readConfig(v); err != nil {
		return PipelineConfig{}, err
	}

	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadService loads builder service configuration from defaults,
// configs/builder.yaml and BUILDER_* env vars.
func LoadService() (ServiceConfig, error) {
	v := viper.New()
	v.SetConfigName("builder")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("BUILDER")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8085")
	v.SetDefault("workspace_root", "./workspace")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("registry_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("worker_id", "")
	v.SetDefault("build_tool", "docker")
	v.SetDefault("base_image", "ubuntu:22.04")
	v.SetDefault("service_mode", "production")
	v.SetDefault("discovery_policy", "off")
	v.SetDefault("discovery_command", []string{"python3", "-m", "pip", "install", "pigar"})
	v.SetDefault("telemetry", false)

	if err := readConfig(v); err != nil {
		return ServiceConfig{}, err
	}

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// flagKey maps a kebab-case flag such as remote-key-path to its config key
// remote.key_path.
func flagKey(name string) string {
	key := strings.ReplaceAll(name, "-", "_")
	if rest, ok := strings.CutPrefix(key, "remote_"); ok {
		return "remote." + rest
	}
	return key
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("load config: %w", err)
		}
	}
	return nil
}
