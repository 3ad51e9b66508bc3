package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/api"
	"github.com/OpenCHAMI/pdusim/internal/driver"
	"github.com/OpenCHAMI/pdusim/internal/nodedir"
	"github.com/OpenCHAMI/pdusim/internal/notify"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/OpenCHAMI/pdusim/internal/password"
	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `serve` command runs the bridge until it receives SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use: "serve",
	Example: `  // run a vSentry bridge against the default sqlite store
  pdusim serve --esxi-host 10.0.0.5

  // run a vHawk bridge and expose the status API
  pdusim serve --vendor hawk --api-endpoint localhost:8080 -c pdusim.yaml`,
	Short: "Run the outlet control bridge",
	Long: "Opens the OID store and the notification FIFO, then turns outlet writes into\n" +
		"VM power operations until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	fs := afero.NewOsFs()

	store, err := oidstore.Open(oidParams())
	if err != nil {
		if errors.Is(err, oidstore.ErrStoreMissing) {
			return fmt.Errorf("%w (run 'pdusim oid init' first)", err)
		}
		return err
	}
	defer store.Close()

	directory, err := nodedir.Load(fs, viper.GetString("nodes.mapping-file"))
	if err != nil {
		return fmt.Errorf("failed to load node mapping: %w", err)
	}

	drv, err := driver.New(driverConfig(), secretStore())
	if err != nil {
		return fmt.Errorf("failed to create power driver: %w", err)
	}

	bridge, err := pdu.NewBridge(bridgeConfig(), pdu.Deps{
		Store:         store,
		Directory:     directory,
		Driver:        drv,
		Passwords:     password.NewFileStore(fs, viper.GetString("passwords.file")),
		DriverTimeout: viper.GetDuration("driver.timeout"),
		Fatal: func(err error) {
			log.Fatal().Err(err).Msg("oid store is gone, cannot continue")
		},
	})
	if err != nil {
		return err
	}
	defer bridge.Stop()

	if err := bridge.Setup(); err != nil {
		return fmt.Errorf("failed to set up pdu units: %w", err)
	}

	fifo, err := notify.OpenFIFO(viper.GetString("notify.fifo"))
	if err != nil {
		return err
	}

	if endpoint := viper.GetString("api.endpoint"); endpoint != "" {
		server := api.NewServer(bridge, viper.GetInt("api.cabinet"))
		go func() {
			if err := server.ListenAndServe(ctx, endpoint); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		bridge.Stop()
	}()

	log.Info().Str("vendor", bridge.Vendor()).Str("fifo", fifo.Path()).Msg("bridge running")
	return bridge.Run(ctx, fifo, dispatchOptions())
}

func init() {
	addFlag("notify.fifo", serveCmd, "fifo", "", notify.DefaultFIFOPath(), "Set the notification FIFO path")
	addFlag("notify.timeout", serveCmd, "read-timeout", "", pdu.DEFAULT_READ_TIMEOUT, "Set how long each FIFO read waits")
	addFlag("hawk.password-expiry", serveCmd, "password-expiry", "", pdu.DEFAULT_PASSWORD_EXPIRY, "Set how long an accepted vHawk password stays valid")
	addFlag("driver.type", serveCmd, "driver", "", "esxi", "Set the power driver (esxi|redfish|bmc)")
	addFlag("driver.timeout", serveCmd, "driver-timeout", "", 30*time.Second, "Set the timeout of a single power operation")
	addFlag("driver.esxi.host", serveCmd, "esxi-host", "", "", "Set the ESXi host reached over SSH")
	addFlag("driver.redfish.endpoint", serveCmd, "redfish-endpoint", "", "", "Set the Redfish service managing the VMs")
	addFlag("driver.redfish.insecure", serveCmd, "insecure", "i", false, "Ignore TLS errors from the Redfish service")
	addFlag("driver.bmc.hosts", serveCmd, "bmc-hosts", "", map[string]string{}, "Set the virtual BMC of each VM (vm=host:port,...)")
	addFlag("driver.username", serveCmd, "username", "u", "", "Set the hypervisor or BMC username")
	addFlag("driver.password", serveCmd, "password", "p", "", "Set the hypervisor or BMC password")
	addFlag("api.endpoint", serveCmd, "api-endpoint", "e", "", "Serve the status API on this address")

	rootCmd.AddCommand(serveCmd)
}
