package cmd

import (
	"fmt"
	"os"

	"github.com/OpenCHAMI/pdusim/internal/format"
	"github.com/OpenCHAMI/pdusim/internal/nodedir"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mappingFormat format.DataFormat = format.FORMAT_LIST

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage which VM is plugged into which outlet",
	Example: `  // plug vm-compute-1 on datastore1 into outlet 2 of PDU 1
  pdusim mapping add datastore1 vm-compute-1 1.2

  // unplug it again, or drop the whole datastore
  pdusim mapping delete datastore1 vm-compute-1
  pdusim mapping delete datastore1`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) <= 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

func loadMapping() (*nodedir.MappingFile, error) {
	return nodedir.Load(afero.NewOsFs(), viper.GetString("nodes.mapping-file"))
}

var mappingAddCmd = &cobra.Command{
	Use:   "add datastore node pdu.port",
	Args:  cobra.ExactArgs(3),
	Short: "Bind a VM to an outlet",
	RunE: func(cmd *cobra.Command, args []string) error {
		pdu, port, err := nodedir.ParsePort(args[2])
		if err != nil {
			return err
		}
		m, err := loadMapping()
		if err != nil {
			return err
		}
		return m.Update(args[0], args[1], pdu, port)
	},
}

var mappingDeleteCmd = &cobra.Command{
	Use:   "delete datastore [node]",
	Args:  cobra.RangeArgs(1, 2),
	Short: "Remove a VM binding, or every binding of a datastore",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMapping()
		if err != nil {
			return err
		}
		node := ""
		if len(args) > 1 {
			node = args[1]
		}
		return m.Delete(args[0], node)
	},
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "List every VM binding",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMapping()
		if err != nil {
			return err
		}
		bindings := m.List()
		if mappingFormat == format.FORMAT_LIST {
			for _, b := range bindings {
				fmt.Printf("%s/%s -> %d.%d\n", b.Datastore, b.Node, b.PDU, b.Port)
			}
			return nil
		}
		out, err := format.Marshal(bindings, mappingFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	mappingListCmd.Flags().VarP(&mappingFormat, "format", "F", "Set the output format (list|json|yaml)")
	mappingCmd.AddCommand(mappingAddCmd, mappingDeleteCmd, mappingListCmd)
	rootCmd.AddCommand(mappingCmd)
}
