package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/daemon"
	"github.com/claridad-app/claridad/internal/session"
	"github.com/claridad-app/claridad/internal/tui"
	"go.uber.org/fx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
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

	socketPath := session.SocketPath(instance)

	// Check daemon health; auto-start if needed.
	if !daemonServing(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", instance)
		if err := startDaemon(instance); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	var app *tui.App
	fxApp := fx.New(
		fx.NopLogger,
		tui.Module(tui.Params{SessionName: instance, Config: cfg}),
		fx.Populate(&app),
	)
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := app.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = fxApp.Stop(stopCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// daemonServing checks if a daemon is running and serving on the socket.
func daemonServing(socketPath string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := daemon.CheckHealth(ctx, socketPath)
	return err == nil && status == healthpb.HealthCheckResponse_SERVING
}

func startDaemon(instance string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	claridadd := filepath.Join(filepath.Dir(executable), "claridadd")

	if _, err := os.Stat(claridadd); err != nil {
		claridadd = "claridadd"
	}

	cmd := exec.Command(claridadd, "--instance", instance)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon's health service until it reports SERVING.
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemonServing(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
