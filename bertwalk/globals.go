package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	DefaultAppName    = "bertwalk"
	DefaultEnvPrefix  = "BERTWALK"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultModelDir   = filepath.Join(DefaultConfigPath, "models", DefaultModelID)

	// Default pretrained model settings
	DefaultModelID     = "bert-base-uncased"
	DefaultVocabFile   = "vocab.txt"
	DefaultWeightsFile = "model.safetensors"
	DefaultONNXFile    = "model.onnx"
	DefaultMaxSeqLen   = 512
	DefaultHiddenSize  = 768

	// DefaultSentence is the sentence the walkthrough narrates when none is given.
	DefaultSentence = "Hello, my dog is cute. He likes snowboarding!"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// GetLeveledLogger returns GetLogger filtered to the named level.
// Unknown levels fall back to info.
func GetLeveledLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return GetLogger().Level(lvl)
}
