package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/OpenCHAMI/pdusim/internal/format"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/OpenCHAMI/pdusim/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	oidFormat format.DataFormat = format.FORMAT_LIST
	oidTag    bool
)

var oidCmd = &cobra.Command{
	Use:   "oid",
	Short: "Inspect and seed the OID store shared with the SNMP engine",
	Run: func(cmd *cobra.Command, args []string) {
		// show the help for oid and exit
		if len(args) <= 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
}

var oidInitCmd = &cobra.Command{
	Use:   "init",
	Args:  cobra.NoArgs,
	Short: "Create the sqlite snmprec table and seed the outlet rows of the vendor",
	Example: `  pdusim oid init --vendor hawk -d /var/lib/pdusim/snmprec.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("oid.database")
		if err := util.MakeParentDirectory(path); err != nil {
			return err
		}
		store, err := oidstore.CreateSQLiteIfNotExists(path, viper.GetString("oid.table"))
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := pdu.SeedRecords(bridgeConfig())
		if err != nil {
			return err
		}
		if err := store.Insert(records...); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("records", len(records)).Msg("seeded oid store")
		return nil
	},
}

var oidGetCmd = &cobra.Command{
	Use:   "get oid",
	Args:  cobra.ExactArgs(1),
	Short: "Print the value (or tag) stored for an OID",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := oidstore.Open(oidParams())
		if err != nil {
			return err
		}
		defer store.Close()

		var v string
		if oidTag {
			v, err = store.QueryTag(args[0])
		} else {
			v, err = store.QueryValue(args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var oidSetCmd = &cobra.Command{
	Use:   "set oid value",
	Args:  cobra.ExactArgs(2),
	Short: "Overwrite the value (or tag) stored for an OID",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := oidstore.Open(oidParams())
		if err != nil {
			return err
		}
		defer store.Close()

		if oidTag {
			return store.UpdateTag(args[0], args[1])
		}
		return store.UpdateValue(args[0], args[1])
	},
}

var oidListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Args:  cobra.MaximumNArgs(1),
	Short: "List the rows of the sqlite snmprec table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := oidstore.NewSQLiteStore(viper.GetString("oid.database"), viper.GetString("oid.table"))
		if err != nil {
			return err
		}
		defer store.Close()

		prefix := ""
		if len(args) > 0 {
			prefix = strings.TrimSuffix(args[0], ".")
		}
		records, err := store.Records(prefix)
		if err != nil {
			return err
		}
		if oidFormat == format.FORMAT_LIST {
			for _, r := range records {
				fmt.Printf("%s|%s|%s (%s)\n", r.OID, r.Tag, r.Value, r.MaxAccess)
			}
			return nil
		}
		b, err := format.Marshal(records, oidFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	oidGetCmd.Flags().BoolVar(&oidTag, "tag", false, "Read the tag instead of the value")
	oidSetCmd.Flags().BoolVar(&oidTag, "tag", false, "Write the tag instead of the value")
	oidListCmd.Flags().VarP(&oidFormat, "format", "F", "Set the output format (list|json|yaml)")

	oidCmd.AddCommand(oidInitCmd, oidGetCmd, oidSetCmd, oidListCmd)
	rootCmd.AddCommand(oidCmd)
}
