// Command agoncoredemo is a small cobra-based CLI exercising the MCP
// fabric and provider translators end-to-end. It is glue over the
// library, not new core surface.
//
// Grounded on the teacher's cmd/agon/main.go + internal/cli/root.go cobra
// wiring (PersistentFlags bound through viper, a package-level rootCmd,
// Execute()'s os.Exit(1) on error).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "agoncoredemo",
	Short: "agoncoredemo — demonstrates the MCP client fabric and LLM provider translators",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "MCP server configuration file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(chatCmd)
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
