package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/coreflux/agoncore/internal/mcpconfig"
	"github.com/coreflux/agoncore/internal/mcpmanager"
	"github.com/coreflux/agoncore/internal/toolindex"
)

var serversVerbose bool

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "manage configured MCP servers",
}

var serversStartCmd = &cobra.Command{
	Use:   "start",
	Short: "start every enabled server from a configuration file and print their tool aliases",
	RunE:  runServersStart,
}

var serversPingCmd = &cobra.Command{
	Use:   "ping <id>",
	Short: "start one configured server and print its status after the handshake (no separate ping request is sent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersPing,
}

func init() {
	serversStartCmd.Flags().BoolVar(&serversVerbose, "verbose", false, "pretty-print each server's parsed configuration before starting it")
	serversCmd.AddCommand(serversStartCmd)
	serversCmd.AddCommand(serversPingCmd)
}

func loadServerConfigs() ([]mcpconfig.ServerConfig, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("--config is required")
	}
	file, err := os.Open(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	return mcpconfig.ParseServers(file)
}

func runServersStart(cmd *cobra.Command, args []string) error {
	servers, err := loadServerConfigs()
	if err != nil {
		return err
	}

	index := toolindex.New()
	manager := mcpmanager.New("agoncoredemo", index)

	ctx := context.Background()
	for _, cfg := range servers {
		if !cfg.Enabled {
			continue
		}
		if serversVerbose {
			pp.Println(cfg)
		}
		if err := manager.StartServer(ctx, cfg); err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "server %q failed to start: %v\n", cfg.ID, err)
			continue
		}
		color.New(color.FgGreen).Printf("server %q ready\n", cfg.ID)
	}

	for _, alias := range index.AllAliases() {
		fmt.Println(alias)
	}
	return nil
}

func runServersPing(cmd *cobra.Command, args []string) error {
	servers, err := loadServerConfigs()
	if err != nil {
		return err
	}

	id := args[0]
	var target mcpconfig.ServerConfig
	found := false
	for _, cfg := range servers {
		if cfg.ID == id {
			target = cfg
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("server %q not found in config", id)
	}

	index := toolindex.New()
	manager := mcpmanager.New("agoncoredemo", index)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := manager.StartServer(ctx, target); err != nil {
		return fmt.Errorf("start %q: %w", id, err)
	}
	status, _ := manager.Status(id)
	fmt.Printf("server %q status=%s\n", id, status)
	return nil
}
