/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/josephgoksu/IdeaForge/internal/config"
	"github.com/josephgoksu/IdeaForge/internal/logger"
	"github.com/spf13/viper"
)

const configName = "config"

// initConfig reads the config file, .env and IDEAFORGE_* environment
// variables. Precedence: flags, env, config file, defaults.
func initConfig() error {
	// A missing .env is fine.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.DataDir())
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, config.DefaultDataDir))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("read config %s: %w", viper.ConfigFileUsed(), err)
	}
	return nil
}

func setupLogging() error {
	cfg, err := config.LoadLogConfig()
	if err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		cfg.Level = "debug"
	}
	if _, err := logger.Setup(os.Stderr, cfg.Level, cfg.Format); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	return nil
}
