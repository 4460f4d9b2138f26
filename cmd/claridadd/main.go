package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/daemon"
	"github.com/claridad-app/claridad/internal/session"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "daemon instance name (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	instance := cfg.InstanceName(*instanceFlag)
	if err := session.ValidateName(instance); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: instance, Config: cfg}),
	)

	app.Run()
}
