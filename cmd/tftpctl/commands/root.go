// Package commands implements the CLI commands for the tftpctl client.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	serverAddr   string
	outputFormat string
	noColor      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tftpctl",
	Short: "TFTPFS Control - TFTP transfer client",
	Long: `tftpctl is the command-line TFTP client for tftpfs.

It downloads and uploads files over TFTP (RFC 1350) and negotiates
block size and transfer size options (RFC 2347/2348/2349) with
servers that support them.

Use "tftpctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/tftpfs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "127.0.0.1:69", "TFTP server address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
}
