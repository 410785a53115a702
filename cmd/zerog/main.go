package main

import (
	"flag"
	"log/slog"
	"os"
)

func main() {
	mode := flag.String("mode", "rpc", "Run mode (rpc|json)")
	configPath := flag.String("config", "", "Config file path (default ~/.zerog/config.json)")
	workspace := flag.String("workspace", "", "Workspace root (overrides config)")
	debugAddr := flag.String("http", "", "Enable HTTP debug server on specified address (e.g., ':6060')")
	autoApprove := flag.Bool("yes", false, "Auto-approve every tool call (json mode only)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	switch *mode {
	case "rpc":
		if err := runRPC(*configPath, *workspace, *debugAddr, *debug); err != nil {
			slog.Error("rpc error", "error", err)
			os.Exit(1)
		}
	case "json":
		goals := flag.Args()
		if err := runJSON(*configPath, *workspace, *debugAddr, goals, *autoApprove, *debug); err != nil {
			slog.Error("json error", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("invalid mode", "mode", *mode, "valid_modes", "rpc|json")
		os.Exit(1)
	}
}
