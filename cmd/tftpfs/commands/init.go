package commands

import (
	"fmt"

	"github.com/marmos91/tftpfs/internal/cli/output"
	"github.com/marmos91/tftpfs/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample TFTPFS configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tftpfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tftpfs init

  # Initialize with custom path
  tftpfs init --config /etc/tftpfs/config.yaml

  # Force overwrite existing config
  tftpfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, true)
	printer.Success(fmt.Sprintf("Configuration file created at: %s", configPath))
	printer.Println("\nNext steps:")
	printer.Println("  1. Edit the configuration file and set server.root to the directory to serve")
	printer.Println("  2. Start the server with: tftpfs start")
	printer.Printf("  3. Or specify custom config: tftpfs start --config %s\n", configPath)
	printer.Println()
	printer.Warning("The default port 69 requires elevated privileges on most systems.")
	printer.Warning("Set server.port to an unprivileged port (e.g. 6969) for local testing.")

	return nil
}
