package cmd

import (
	"fmt"

	"github.com/OpenCHAMI/pdusim/internal/format"
	"github.com/OpenCHAMI/pdusim/internal/version"
	"github.com/spf13/cobra"
)

var versionFormat format.DataFormat = format.FORMAT_LIST

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if versionFormat == format.FORMAT_LIST {
			fmt.Println(info)
			return nil
		}
		b, err := format.Marshal(info, versionFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	versionCmd.Flags().VarP(&versionFormat, "format", "F", "Set the output format (list|json|yaml)")
	rootCmd.AddCommand(versionCmd)
}
