// Package cli provides the command-line entry point for every IDP worker
// process. It mirrors the teacher's cli/root.go layering (a cobra root
// command, flag/env/config-file precedence handled by viper, a
// runServer-style wiring function) but trades the teacher's single
// monolithic HTTP API process for a tree of stage-worker subcommands:
// each of the three stage queues (ocr, pipeline, push) gets its own
// consumer process type so any of them can be scaled out independently
// (§5); the dead-letter queue has no consumer here.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"idp.evalgo.org/version"
)

// cfgFile holds the path to an optional YAML configuration file,
// searched for at $HOME/.idp.yaml / ./.idp.yaml when unset, exactly as
// the teacher's cfgFile/initConfig pair does.
var cfgFile string

// flagEnvBindings maps each persistent flag to the uppercase IDP_*
// environment variable config.LoadIDPConfig's plain os.Getenv-based
// loaders expect. Viper lowercases every key it manages internally, so
// initConfig re-uppercases through this table rather than trusting
// viper.AllKeys()'s casing.
var flagEnvBindings = map[string]string{
	"amqp-url":       "IDP_QUEUE_AMQP_URL",
	"postgres-dsn":   "IDP_POSTGRES_DSN",
	"redis-addr":     "IDP_REDIS_ADDR",
	"s3-endpoint":    "IDP_S3_ENDPOINT",
	"s3-bucket":      "IDP_S3_BUCKET",
	"ocr-backend":    "IDP_OCR_PRIMARY_BACKEND",
	"ocr-fallback":   "IDP_OCR_FALLBACK_BACKEND",
	"llm-base-url":   "IDP_LLM_BASE_URL",
	"llm-api-key":    "IDP_LLM_API_KEY",
	"encryption-key": "IDP_SECURITY_ENCRYPTION_KEY",
	"service-name":   "IDP_NAME",
	"environment":    "IDP_ENVIRONMENT",
}

// RootCmd is the idp binary's entry point. Each worker type is a
// subcommand (see serve.go); RootCmd itself only prints usage.
var RootCmd = &cobra.Command{
	Use:   "idp",
	Short: "document processing pipeline: stage workers and maintenance commands",
	Long: `IDP Core

Runs the job orchestrator's stage workers (ocr, pipeline, push) against
the durable queue fabric, backed by Postgres (job store), Redis (dedup
index) and an S3-compatible object store. Subcommands:

  idp serve ocr       consume the ocr queue
  idp serve pipeline  consume the pipeline queue
  idp serve push      consume the push queue
  idp serve all       run all three stage workers in one process
  idp migrate         create/update the job store schema

Configuration is resolved, highest precedence first, from command-line
flags, environment variables (IDP_* prefix), and an optional config file.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.idp.yaml)")

	RootCmd.PersistentFlags().String("amqp-url", "", "RabbitMQ connection URL")
	RootCmd.PersistentFlags().String("postgres-dsn", "", "job store Postgres DSN")
	RootCmd.PersistentFlags().String("redis-addr", "", "dedup index Redis address")
	RootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible object store endpoint")
	RootCmd.PersistentFlags().String("s3-bucket", "", "object store bucket name")
	RootCmd.PersistentFlags().String("ocr-backend", "", "primary OCR backend: local, cli, or http")
	RootCmd.PersistentFlags().String("ocr-fallback", "", "fallback OCR backend")
	RootCmd.PersistentFlags().String("llm-base-url", "", "OpenAI-compatible chat completion base URL")
	RootCmd.PersistentFlags().String("llm-api-key", "", "LLM endpoint API key")
	RootCmd.PersistentFlags().String("encryption-key", "", "at-rest encryption passphrase for webhook/ERP secrets")
	RootCmd.PersistentFlags().String("service-name", "idp-core", "service name reported in logs and health checks")
	RootCmd.PersistentFlags().String("environment", "development", "deployment environment: development, staging, production")

	for flag, envKey := range flagEnvBindings {
		_ = viper.BindPFlag(envKey, RootCmd.PersistentFlags().Lookup(flag))
	}
}

// initConfig reads an optional config file and projects every bound
// viper key into the process environment, so config.LoadIDPConfig's
// plain os.Getenv-based loaders (config/idp.go) see flag and config-file
// values exactly as if they had been exported before the process
// started. This is the same split the teacher's config.go/cli/root.go
// pairing uses: config.go never imports viper, and cli is the only layer
// that does.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".idp")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}

	for _, envKey := range flagEnvBindings {
		// viper resolves an explicitly set flag first, then the real
		// environment variable (AutomaticEnv), then the config file, then
		// the flag default.
		if value := viper.GetString(envKey); value != "" {
			_ = os.Setenv(envKey, value)
		}
	}
}

// Execute builds and runs RootCmd, matching main.go's thin entry-point
// contract.
func Execute() error {
	return RootCmd.Execute()
}

// init registers the version command alongside serve/migrate.
func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print build and dependency version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetModuleVersion())
		},
	})
}
