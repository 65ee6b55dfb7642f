package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	nosqldb "progressdb/nosqldb"
	"progressdb/nosqldb/pkg/auth"
	nosqlconfig "progressdb/nosqldb/pkg/config"
	"progressdb/nosqldb/pkg/obs"
	"progressdb/nosqldb/pkg/wirebinary"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	endpoint   string
	configFile string
	sentryDSN  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nosqlctl",
	Short: "nosqlctl is a demo CLI over the NoSQL driver core",
	Long: `nosqlctl provides ping/get/put subcommands exercising the driver
core directly, for manual poking at a running endpoint.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "http://localhost:8080", "NoSQL proxy endpoint")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides --endpoint and other connection flags)")
	rootCmd.PersistentFlags().StringVar(&sentryDSN, "sentry-dsn", "", "also report final errors to this Sentry DSN")
}

// newClient builds a Client either from --config's FileConfig (when
// given) or from the plain --endpoint flag, matching the layering
// pkg/config documents: file settings win when a file is named at all.
func newClient() *nosqldb.Client {
	cfg := nosqldb.Config{Endpoint: endpoint}

	if configFile != "" {
		fc, err := nosqlconfig.Load(configFile)
		if err != nil {
			log.Fatalf("nosqlctl: %v", err)
		}
		nosqlconfig.ApplyEnvOverrides(fc)
		cfg.Endpoint = fc.Endpoint
		cfg.DefaultTimeout = fc.DefaultTimeout()
		cfg.SecurityInfoTimeout = fc.SecurityInfoTimeout()
		cfg.MaxRequestTimeout = fc.MaxRequestTimeout()
		cfg.Namespace = fc.Namespace
		cfg.Compartment = fc.Compartment
		cfg.RateLimiter = nosqldb.RateLimiterConfig{
			Enabled:      fc.RateLimiter.Enabled,
			Percentage:   fc.RateLimiter.Percentage,
			BurstSeconds: fc.RateLimiter.BurstSeconds,
		}
		if fc.Protocol.Transport == "fasthttp" {
			cfg.Transport = nosqldb.TransportFastHTTP
		}
		if v, err := fc.ParseStartVersion(); err != nil {
			log.Fatalf("nosqlctl: %v", err)
		} else {
			cfg.StartProtocolVersion = wirebinary.SerialVersion(v)
		}
		if fc.Auth.Mode == "shared_secret" {
			secret, err := fc.ResolveSecret()
			if err != nil {
				log.Fatalf("nosqlctl: %v", err)
			}
			cfg.Auth = &auth.SharedSecretProvider{
				KeyID:           fc.Auth.KeyID,
				Secret:          []byte(secret),
				DurationSeconds: fc.Auth.DurationSeconds,
			}
		}
	}

	if sentryDSN != "" {
		observer, err := obs.NewSentryObserver(sentryDSN, "nosqlctl", version)
		if err != nil {
			log.Fatalf("nosqlctl: sentry init: %v", err)
		}
		cfg.Observer = observer
	}

	return nosqldb.New(cfg)
}
