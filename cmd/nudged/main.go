package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nudgeloop/internal/core"
	"nudgeloop/pkg/systemd"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	// A missing default config is fine: run with built-in defaults. An
	// explicitly given path must exist.
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err != nil {
			if !isFlagSet("config") && os.IsNotExist(err) {
				cfgPath = ""
			} else {
				fmt.Fprintln(os.Stderr, "fatal:", err)
				os.Exit(1)
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := core.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	systemd.NotifyReady()
	go systemd.WatchdogLoop(ctx)

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	reason := core.StopReasonSignal
	if err := app.Err(); err != nil {
		reason = core.StopReasonFatal
		fmt.Fprintln(os.Stderr, "fatal:", err)
	}

	systemd.NotifyStopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = app.Stop(stopCtx, reason)

	if app.Err() != nil {
		os.Exit(1)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
