package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cadenced",
	Short: "Cadence notification sequencing daemon",
	Long: `cadenced schedules and delivers multi-step notification sequences:
trigger a sequence for a lead and each templated step goes out after its
configured delay, with retries and an admin API for inspection.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cadence.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sequencesCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/cadence")
		viper.SetConfigType("yaml")
		viper.SetConfigName("cadence")
	}

	viper.SetEnvPrefix("CADENCE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.dsn", "cadence.db")
	viper.SetDefault("provider.kind", "log")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// A missing config file is fine; defaults and env cover it.
	_ = viper.ReadInConfig()
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(viper.GetString("log.format")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
