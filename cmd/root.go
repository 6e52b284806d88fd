package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "boost-guard",
	Short: "The boost guard checks voter eligibility for snapshot boosts and signs reward vouchers",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

func init() {
	// a missing .env file is fine, the environment may be set by the deployment
	_ = godotenv.Load()

	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().Int(config.HttpPort, 8080, `The port to serve the voucher api on`)
	rootCmd.PersistentFlags().Duration(config.HttpRequestTimeout, 30*time.Second, `The maximum duration of a single api request`)
	rootCmd.PersistentFlags().String(config.HttpCorsAllowedOrigins, "", `Comma separated list of allowed origins (default all)`)

	rootCmd.PersistentFlags().String(config.HubUrl, config.DefaultHubUrl, `GraphQL url of the snapshot hub`)
	rootCmd.PersistentFlags().String(config.SubgraphUrl, "", `GraphQL url of the boost subgraph`)
	rootCmd.PersistentFlags().String(config.SubgraphChainUrls, "", `Per chain subgraph urls, e.g. "1=https://...,11155111=https://..."`)

	rootCmd.PersistentFlags().Duration(config.UpstreamTimeout, 10*time.Second, `Timeout of a single hub or subgraph request`)
	rootCmd.PersistentFlags().Int(config.UpstreamMaxRetries, 3, `Number of retries of a failed hub or subgraph request`)

	rootCmd.PersistentFlags().String(config.SignerPrivateKey, "", `Hex encoded secp256k1 key signing the vouchers`)
	rootCmd.PersistentFlags().String(config.SignerDomainName, config.DefaultDomainName, `EIP-712 domain name`)
	rootCmd.PersistentFlags().String(config.SignerDomainVersion, config.DefaultDomainVersion, `EIP-712 domain version`)
	rootCmd.PersistentFlags().String(config.SignerVerifyingContracts, "", `Boost contract per chain, e.g. "11155111=0x..."`)

	rootCmd.PersistentFlags().Int(config.GuardMaxConcurrency, config.DefaultMaxConcurrency, `Maximum number of boosts processed in parallel per request`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rewardsCmd)
	rootCmd.AddCommand(runVersionCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f)                 //nolint:errcheck
		viper.BindEnv(envNames(key, f.Name)...) //nolint:errcheck
	})
}

// envNames lists the env vars bound to key: the prefixed name first, then the name
// used by earlier deployments if there is one.
func envNames(key string, flagName string) []string {
	names := []string{key, strings.ToUpper(config.ENV_PREFIX + "_" + envKeyReplacer.Replace(key))}
	if legacy, ok := config.LegacyEnvVars[flagName]; ok {
		names = append(names, legacy)
	}
	return names
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(envKeyReplacer)

	viper.AutomaticEnv()
}
