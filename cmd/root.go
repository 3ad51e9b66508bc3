// The cmd package implements the pdusim CLI. The files in this package only
// handle CLI arguments and configuration and pass them on to the internal
// packages that do the work.
//
// For example:
//
//	cmd/serve.go    --> internal/pdu ( pdu.NewBridge(), Bridge.Run() )
//	cmd/oid.go      --> internal/oidstore
//	cmd/mapping.go  --> internal/nodedir
//	cmd/password.go --> internal/password
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/OpenCHAMI/pdusim/internal/log"
	"github.com/OpenCHAMI/pdusim/internal/notify"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLevel logger.LogLevel = logger.INFO

// The `root` command doesn't do anything on it's own except display
// a help message and then exits.
var rootCmd = &cobra.Command{
	Use:   "pdusim",
	Short: "Outlet control bridge for simulated rack PDUs",
	Long: "Watches the OIDs written to simulated Sentry and Hawk PDUs and turns outlet\n" +
		"writes into power operations on the virtual machines plugged into them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			logLevel = logger.DEBUG
		} else if viper.IsSet("log.level") {
			if err := logLevel.Set(viper.GetString("log.level")); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
		}
		return logger.InitWithLogLevel(logLevel, viper.GetString("log.file"))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			err := cmd.Help()
			if err != nil {
				log.Error().Err(err).Msg("failed to print help")
			}
			os.Exit(0)
		}
	},
}

// This Execute() function is called from main to run the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitializeConfig)
	SetDefaults()

	rootCmd.PersistentFlags().StringP("config", "c", "", "Set the config file path")
	rootCmd.PersistentFlags().Bool("debug", false, "Set to enable/disable debug messages")
	rootCmd.PersistentFlags().VarP(&logLevel, "log-level", "l", "Set the log level (debug|info|warn|error|trace|disabled)")
	rootCmd.PersistentFlags().String("log-file", "", "Append log output to this file as well")
	rootCmd.PersistentFlags().String("vendor", pdu.VENDOR_SENTRY, "Set the simulated PDU vendor (sentry|hawk)")
	rootCmd.PersistentFlags().String("oid-backend", oidstore.BACKEND_SQLITE, "Set the OID store backend (sqlite|snmprec)")
	rootCmd.PersistentFlags().StringP("database", "d", "snmprec.db", "Set the sqlite database path")
	rootCmd.PersistentFlags().String("table", oidstore.DEFAULT_TABLE, "Set the sqlite table name")
	rootCmd.PersistentFlags().String("simfile", "public.snmprec", "Set the snmprec file used by the snmprec backend")
	rootCmd.PersistentFlags().StringP("mapping-file", "m", "mapping.yaml", "Set the VM to outlet mapping file")
	rootCmd.PersistentFlags().String("passwords-file", "passwords", "Set the vHawk outlet password file")
	rootCmd.PersistentFlags().StringP("secrets-file", "f", "secrets.json", "Set path to the encrypted credentials file")

	// bind viper config flags with cobra
	checkBindFlagError(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))
	checkBindFlagError(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
	checkBindFlagError(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))
	checkBindFlagError(viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file")))
	checkBindFlagError(viper.BindPFlag("pdu.vendor", rootCmd.PersistentFlags().Lookup("vendor")))
	checkBindFlagError(viper.BindPFlag("oid.backend", rootCmd.PersistentFlags().Lookup("oid-backend")))
	checkBindFlagError(viper.BindPFlag("oid.database", rootCmd.PersistentFlags().Lookup("database")))
	checkBindFlagError(viper.BindPFlag("oid.table", rootCmd.PersistentFlags().Lookup("table")))
	checkBindFlagError(viper.BindPFlag("oid.simfile", rootCmd.PersistentFlags().Lookup("simfile")))
	checkBindFlagError(viper.BindPFlag("nodes.mapping-file", rootCmd.PersistentFlags().Lookup("mapping-file")))
	checkBindFlagError(viper.BindPFlag("passwords.file", rootCmd.PersistentFlags().Lookup("passwords-file")))
	checkBindFlagError(viper.BindPFlag("secrets.file", rootCmd.PersistentFlags().Lookup("secrets-file")))
}

func checkBindFlagError(err error) {
	if err != nil {
		log.Error().Err(err).Msg("failed to bind cobra/viper flag")
	}
}

// addFlag defines a flag on cmd whose type follows defaultValue and binds
// it to the viper key.
func addFlag(key string, cmd *cobra.Command, name string, shorthand string, defaultValue any, usage string) {
	flags := cmd.Flags()
	switch v := defaultValue.(type) {
	case string:
		flags.StringP(name, shorthand, v, usage)
	case bool:
		flags.BoolP(name, shorthand, v, usage)
	case int:
		flags.IntP(name, shorthand, v, usage)
	case time.Duration:
		flags.DurationP(name, shorthand, v, usage)
	case []string:
		flags.StringSliceP(name, shorthand, v, usage)
	case map[string]string:
		flags.StringToStringP(name, shorthand, v, usage)
	default:
		log.Fatal().Str("flag", name).Msgf("unsupported flag type %T", defaultValue)
	}
	checkBindFlagError(viper.BindPFlag(key, flags.Lookup(name)))
}

// InitializeConfig() initializes a new config object by loading it
// from a file given a non-empty string.
func InitializeConfig() {
	viper.SetEnvPrefix("PDUSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if viper.GetString("config") != "" {
		viper.SetConfigFile(viper.GetString("config"))
	} else {
		config_dir := os.Getenv("XDG_CONFIG_HOME")
		if config_dir == "" {
			config_dir = "$HOME/.config"
		}
		viper.AddConfigPath(config_dir + "/pdusim")
		viper.SetConfigName("config")
		// File type left unspecified; Viper will auto-parse based on extension
		// e.g. ~/.config/pdusim/config.yaml will parse as YAML
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debug().Err(err).Msg("no config file found; using flags and defaults")
		} else {
			log.Error().Err(err).Msg("failed to load config file")
		}
	}
}

// SetDefaults() resets all of the viper properties back to their
// default values.
func SetDefaults() {
	viper.SetDefault("config", "")
	viper.SetDefault("debug", false)
	viper.SetDefault("log.level", logger.INFO.String())
	viper.SetDefault("log.file", "")
	viper.SetDefault("pdu.vendor", pdu.VENDOR_SENTRY)
	viper.SetDefault("oid.backend", oidstore.BACKEND_SQLITE)
	viper.SetDefault("oid.database", "snmprec.db")
	viper.SetDefault("oid.table", oidstore.DEFAULT_TABLE)
	viper.SetDefault("oid.simfile", "public.snmprec")
	viper.SetDefault("nodes.mapping-file", "mapping.yaml")
	viper.SetDefault("passwords.file", "passwords")
	viper.SetDefault("notify.fifo", notify.DefaultFIFOPath())
	viper.SetDefault("notify.timeout", pdu.DEFAULT_READ_TIMEOUT)
	viper.SetDefault("notify.chunk", pdu.MAX_CHUNK)
	viper.SetDefault("sentry.action-oid", pdu.DEFAULT_SENTRY_ACTION_OID)
	viper.SetDefault("sentry.state-oid", pdu.DEFAULT_SENTRY_STATE_OID)
	viper.SetDefault("hawk.on-oid", pdu.DEFAULT_HAWK_ON_OID)
	viper.SetDefault("hawk.password-oid", pdu.DEFAULT_HAWK_PASSWORD_OID)
	viper.SetDefault("hawk.password-expiry", pdu.DEFAULT_PASSWORD_EXPIRY)
	viper.SetDefault("hawk.cancel-grace", pdu.DEFAULT_CANCEL_GRACE)
	viper.SetDefault("driver.type", "esxi")
	viper.SetDefault("driver.timeout", 30*time.Second)
	viper.SetDefault("driver.reboot-pause", 2*time.Second)
	viper.SetDefault("driver.esxi.host", "")
	viper.SetDefault("driver.redfish.endpoint", "")
	viper.SetDefault("driver.redfish.insecure", false)
	viper.SetDefault("driver.bmc.hosts", map[string]string{})
	viper.SetDefault("driver.bmc.drivers", []string{})
	viper.SetDefault("secrets.file", "secrets.json")
	viper.SetDefault("api.endpoint", "")
	viper.SetDefault("api.cabinet", 3000)
}
