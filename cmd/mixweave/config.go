package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MIXWEAVE_LOG_LEVEL.
const EnvPrefix = "MIXWEAVE"

// config is the merged CLI configuration. Precedence: flags, environment,
// config file, defaults.
type config struct {
	DB          string   `mapstructure:"db"`
	Format      string   `mapstructure:"format"`
	LogLevel    string   `mapstructure:"log_level"`
	LogDev      bool     `mapstructure:"log_dev"`
	Trace       bool     `mapstructure:"trace"`
	DumpDir     string   `mapstructure:"dump_dir"`
	Decl        []string `mapstructure:"decl"`
	ScriptsDir  string   `mapstructure:"scripts_dir"`
	Parallelism int      `mapstructure:"parallelism"`
}

// loadConfig merges the persistent flags of cmd with MIXWEAVE_* variables
// and the optional config file.
func loadConfig(cmd *cobra.Command) (*config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for _, name := range []string{"db", "format", "log-level", "log-dev", "trace", "dump-dir", "decl", "scripts-dir", "parallelism"} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", name, err)
		}
	}

	if flagConfig != "" {
		v.SetConfigFile(flagConfig)
	} else {
		v.SetConfigName("mixweave")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if flagConfig != "" || !(errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &c, nil
}
