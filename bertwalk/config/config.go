package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/bertwalk/bertwalk"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Model       ModelConfig       `mapstructure:"model"`
	ONNX        ONNXConfig        `mapstructure:"onnx"`
	Walkthrough WalkthroughConfig `mapstructure:"walkthrough"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Log         LogConfig         `mapstructure:"log"`
}

// ModelConfig locates the pretrained model files and selects the backends.
type ModelConfig struct {
	ID        string `mapstructure:"id"`
	Dir       string `mapstructure:"dir"`
	Vocab     string `mapstructure:"vocab"`
	Weights   string `mapstructure:"weights"`
	ONNX      string `mapstructure:"onnx"`
	Backend   string `mapstructure:"backend"`
	Tokenizer string `mapstructure:"tokenizer"`
	MaxSeqLen int    `mapstructure:"maxSeqLen"`
	Truncate  bool   `mapstructure:"truncate"`
	Seed      int64  `mapstructure:"seed"`
}

// ONNXConfig stores ONNX Runtime execution provider settings.
type ONNXConfig struct {
	ExecutionProvider string `mapstructure:"executionProvider"`
	DeviceID          int    `mapstructure:"deviceId"`
	SharedLibrary     string `mapstructure:"sharedLibrary"`
}

// WalkthroughConfig stores narration settings.
type WalkthroughConfig struct {
	Sentence string `mapstructure:"sentence"`
	Preview  int    `mapstructure:"preview"`
	Color    bool   `mapstructure:"color"`
}

// BatchConfig stores settings for multi-sentence runs.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var AppConfig Config

// VocabPath resolves the vocabulary file, relative entries are joined to Dir.
func (m ModelConfig) VocabPath() string { return m.resolve(m.Vocab) }

// WeightsPath resolves the safetensors weights file.
func (m ModelConfig) WeightsPath() string { return m.resolve(m.Weights) }

// ONNXPath resolves the ONNX export of the encoder.
func (m ModelConfig) ONNXPath() string { return m.resolve(m.ONNX) }

func (m ModelConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("model.id", internal.DefaultModelID)
	v.SetDefault("model.dir", internal.DefaultModelDir)
	v.SetDefault("model.vocab", internal.DefaultVocabFile)
	v.SetDefault("model.weights", internal.DefaultWeightsFile)
	v.SetDefault("model.onnx", internal.DefaultONNXFile)
	v.SetDefault("model.backend", "onnx")
	v.SetDefault("model.tokenizer", "sugarme")
	v.SetDefault("model.maxSeqLen", internal.DefaultMaxSeqLen)
	v.SetDefault("model.truncate", true)
	v.SetDefault("model.seed", 42)
	v.SetDefault("onnx.executionProvider", "cpu")
	v.SetDefault("onnx.deviceId", 0)
	v.SetDefault("walkthrough.sentence", internal.DefaultSentence)
	v.SetDefault("walkthrough.preview", 5)
	v.SetDefault("walkthrough.color", true)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // BERTWALK_MODEL_DIR overrides model.dir
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // dots become underscores in env names

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	if c.Model.MaxSeqLen <= 2 || c.Model.MaxSeqLen > internal.DefaultMaxSeqLen {
		return fmt.Errorf("model.maxSeqLen must be between 3 and %d: %d", internal.DefaultMaxSeqLen, c.Model.MaxSeqLen)
	}
	switch strings.ToLower(c.Model.Backend) {
	case "onnx", "synthetic":
	default:
		return fmt.Errorf("unknown model.backend %q", c.Model.Backend)
	}
	switch strings.ToLower(c.Model.Tokenizer) {
	case "sugarme", "wordpiece":
	default:
		return fmt.Errorf("unknown model.tokenizer %q", c.Model.Tokenizer)
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = 1
	}
	if c.Walkthrough.Preview < 0 {
		c.Walkthrough.Preview = 0
	}
	return nil
}
