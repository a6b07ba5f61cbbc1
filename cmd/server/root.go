package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kobara/config"
)

var cfgFile string

// NewRootCmd builds the kobara command. Flags override the config file,
// which overrides KOBARA_* environment defaults.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	config.InitEnv(v)

	cmd := &cobra.Command{
		Use:           "kobara",
		Short:         "Limit order matching engine served over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a config file (toml, yaml or json)")
	flags.String("grpc_addr", config.Default().GRPCAddr, "gRPC listen address")
	flags.String("metrics_addr", config.Default().MetricsAddr, "Prometheus listen address, empty disables it")
	flags.String("log_level", config.Default().LogLevel, "log level (debug, info, warn, error)")
	flags.String("log_format", config.Default().LogFormat, "log format (json, console)")
	flags.String("outbox_dir", "", "trade outbox directory, empty keeps it in memory")
	flags.String("publisher", config.PublisherNone, "trade publisher (none, sarama, kafka-go)")

	for key, flag := range map[string]string{
		"grpc_addr":           "grpc_addr",
		"metrics_addr":        "metrics_addr",
		"log_level":           "log_level",
		"log_format":          "log_format",
		"outbox.dir":          "outbox_dir",
		"broadcast.publisher": "publisher",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}
