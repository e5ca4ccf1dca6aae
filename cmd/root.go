package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spigell/formfill/internal/answers"
	"github.com/spigell/formfill/internal/ats"
	"github.com/spigell/formfill/internal/browser"
	"github.com/spigell/formfill/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "formfill"
	envPrefix = "FORMFILL"
)

type Config struct {
	Store        *store.Config    `mapstructure:"store"`
	AI           *AIConfig        `mapstructure:"ai"`
	PolicyFile   string           `mapstructure:"policy-file"`
	Profile      *answers.Profile `mapstructure:"profile"`
	Browser      browser.Config   `mapstructure:"browser"`
	Apply        ats.Options      `mapstructure:"apply"`
	MaxLogLength int              `mapstructure:"max-log-length"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	Claude   *ClaudeConfig `mapstructure:"claude"`
}

type GeminiConfig struct {
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max-retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ClaudeConfig struct {
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max-tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "formfill fills and submits job application forms on applicant tracking systems",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is formfill.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("store", "", "storage backend: memory, redis or postgres")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store"))
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine: resolve and labels work without one.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}

	return config, nil
}
