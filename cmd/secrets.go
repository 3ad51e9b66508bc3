package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
)

var (
	secretsStoreFormat    string // slightly different from format.DataFormat
	secretsStoreInputFile string
)

var secretsCmd = &cobra.Command{
	Use: "secrets",
	Example: `  // generate new key and set environment variable
  export PDUSIM_MASTER_KEY=$(pdusim secrets generatekey)

  // store the ESXi login used by the esxi driver
  pdusim secrets store 10.0.0.5 root:password

  // store fallback credentials for every virtual BMC
  pdusim secrets store default admin:password -f bmc-secrets.json

  // list stored ids
  pdusim secrets list`,
	Short: "Manage credentials for hypervisors and virtual BMCs",
	Long: "Manage the credentials the power drivers log in with. Secrets are keyed by ESXi host,\n" +
		"Redfish endpoint or BMC address, with 'default' as the fallback. This requires generating\n" +
		"a key and setting the '" + secrets.MASTER_KEY_ENV + "' environment variable.",
}

var secretsGenerateKeyCmd = &cobra.Command{
	Use:   "generatekey",
	Args:  cobra.NoArgs,
	Short: "Generates a new 32-byte master key (in hex).",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			return fmt.Errorf("failed to generate master key: %w", err)
		}
		fmt.Printf("%s\n", key)
		return nil
	},
}

var secretsStoreCmd = &cobra.Command{
	Use:   "store secretID <basic(default)|json|base64>",
	Args:  cobra.RangeArgs(1, 2),
	Short: "Stores the given credentials under secretID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			secretID    = args[0]
			secretValue string
		)

		// require either the args or input file
		if len(args) > 1 {
			if secretsStoreInputFile != "" {
				return fmt.Errorf("cannot use -i/--input-file with positional argument")
			}
			// use args[1] here because args[0] is the secretID
			secretValue = args[1]
		} else if secretsStoreInputFile != "" {
			b, err := os.ReadFile(secretsStoreInputFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			secretValue = strings.TrimSpace(string(b))
		} else {
			return fmt.Errorf("no input data or file")
		}

		creds, err := parseCredentials(secretValue, secretsStoreFormat)
		if err != nil {
			return err
		}
		value, err := creds.Marshal()
		if err != nil {
			return err
		}

		store, err := secrets.OpenStore(afero.NewOsFs(), viper.GetString("secrets.file"))
		if err != nil {
			return err
		}
		if err := store.StoreSecretByID(secretID, value); err != nil {
			return fmt.Errorf("failed to store secret by ID: %w", err)
		}
		log.Info().Str("id", secretID).Msg("stored credentials")
		return nil
	},
}

// parseCredentials decodes value in one of the accepted input formats.
func parseCredentials(value string, inFormat string) (secrets.Credentials, error) {
	var creds secrets.Credentials
	switch inFormat {
	case "basic", "": // format: $username:$password
		// passwords may contain ':'
		values := strings.SplitN(value, ":", 2)
		if len(values) != 2 {
			return creds, fmt.Errorf("expected [username:password] format")
		}
		creds.Username, creds.Password = values[0], values[1]
		return creds, nil
	case "base64": // format: ($encoded_base64_string)
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return creds, fmt.Errorf("error decoding base64 data: %w", err)
		}
		return parseCredsJSON(string(decoded))
	case "json": // format: {"username": $username, "password": $password}
		return parseCredsJSON(value)
	default:
		return creds, fmt.Errorf("unknown input format %q", inFormat)
	}
}

// parseCredsJSON requires both "username" and "password" properties.
func parseCredsJSON(val string) (secrets.Credentials, error) {
	var (
		fields map[string]string
		creds  secrets.Credentials
	)
	if err := json.Unmarshal([]byte(val), &fields); err != nil {
		return creds, fmt.Errorf("value is not valid JSON: %w", err)
	}
	username, validUsername := fields["username"]
	password, validPassword := fields["password"]
	if !validUsername || !validPassword {
		return creds, fmt.Errorf("value is missing username or password")
	}
	return secrets.Credentials{Username: username, Password: password}, nil
}

var secretsRetrieveCmd = &cobra.Command{
	Use:   "retrieve secretID",
	Args:  cobra.ExactArgs(1),
	Short: "Prints the credentials stored under secretID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(afero.NewOsFs(), viper.GetString("secrets.file"))
		if err != nil {
			return err
		}
		secretValue, err := store.GetSecretByID(args[0])
		if err != nil {
			return fmt.Errorf("error retrieving secret: %w", err)
		}
		fmt.Printf("Secret for %s: %s\n", args[0], secretValue)
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "Lists all the secret IDs and their encrypted values.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(afero.NewOsFs(), viper.GetString("secrets.file"))
		if err != nil {
			return err
		}
		stored, err := store.ListSecrets()
		if err != nil {
			return fmt.Errorf("error listing secrets: %w", err)
		}
		ids := maps.Keys(stored)
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("%s: %s\n", id, stored[id])
		}
		return nil
	},
}

var secretsRemoveCmd = &cobra.Command{
	Use:   "remove secretIDs...",
	Args:  cobra.MinimumNArgs(1),
	Short: "Remove secrets by IDs from secret store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.OpenStore(afero.NewOsFs(), viper.GetString("secrets.file"))
		if err != nil {
			return err
		}
		for _, secretID := range args {
			if err := store.RemoveSecretByID(secretID); err != nil {
				return fmt.Errorf("failed to remove secret %s: %w", secretID, err)
			}
		}
		return nil
	},
}

func init() {
	secretsStoreCmd.Flags().StringVarP(&secretsStoreFormat, "format", "F", "basic", "Set the input format for the secret (basic|json|base64).")
	secretsStoreCmd.Flags().StringVarP(&secretsStoreInputFile, "input-file", "i", "", "Set the file to read as input.")

	secretsCmd.AddCommand(secretsGenerateKeyCmd)
	secretsCmd.AddCommand(secretsStoreCmd)
	secretsCmd.AddCommand(secretsRetrieveCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsRemoveCmd)

	rootCmd.AddCommand(secretsCmd)
}
