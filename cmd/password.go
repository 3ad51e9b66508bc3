package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/format"
	"github.com/OpenCHAMI/pdusim/internal/password"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var passwordFormat format.DataFormat = format.FORMAT_LIST

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the outlet passwords checked by the vHawk handshake",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) <= 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

func passwordStore() *password.FileStore {
	return password.NewFileStore(afero.NewOsFs(), viper.GetString("passwords.file"))
}

func parseOutlet(pduArg, portArg string) (int, int, error) {
	pdu, err := strconv.Atoi(pduArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pdu %q: %w", pduArg, err)
	}
	port, err := strconv.Atoi(portArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q: %w", portArg, err)
	}
	return pdu, port, nil
}

var passwordSetCmd = &cobra.Command{
	Use:     "set pdu port password",
	Args:    cobra.ExactArgs(3),
	Short:   "Set the password of one outlet",
	Example: `  pdusim password set 1 3 A01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pdu, port, err := parseOutlet(args[0], args[1])
		if err != nil {
			return err
		}
		return passwordStore().Set(pdu, port, args[2])
	},
}

var passwordGetCmd = &cobra.Command{
	Use:   "get pdu port",
	Args:  cobra.ExactArgs(2),
	Short: "Print the password of one outlet",
	RunE: func(cmd *cobra.Command, args []string) error {
		pdu, port, err := parseOutlet(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(passwordStore().Get(pdu, port))
		return nil
	},
}

var passwordListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "List every outlet password",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := passwordStore().List()
		if err != nil {
			return err
		}
		if passwordFormat == format.FORMAT_LIST {
			for _, e := range entries {
				fmt.Printf("%d.%d %s (updated %s)\n", e.PDU, e.Port, e.Password, e.Updated.Format(time.UnixDate))
			}
			return nil
		}
		out, err := format.Marshal(entries, passwordFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	passwordListCmd.Flags().VarP(&passwordFormat, "format", "F", "Set the output format (list|json|yaml)")
	passwordCmd.AddCommand(passwordSetCmd, passwordGetCmd, passwordListCmd)
	rootCmd.AddCommand(passwordCmd)
}
