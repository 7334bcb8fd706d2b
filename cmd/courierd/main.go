package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"courier/internal/config"
	"courier/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
