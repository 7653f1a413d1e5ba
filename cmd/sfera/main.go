package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/the-cubic-cat/sfera/internal/app"
	"github.com/the-cubic-cat/sfera/internal/telemetry"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address; empty disables the server")
	flag.BoolVar(&cfg.Headless, "headless", false, "read commands from stdin instead of starting the terminal UI")
	flag.BoolVar(&cfg.ReadOnly, "read-only", false, "refuse commands from network clients")
	flag.StringVar(&cfg.Script, "script", "", "command script to run at startup")
	flag.BoolVar(&cfg.EmptyScene, "empty", false, "start without the demo scene")
	flag.StringVar(&cfg.Logging.Console.FilePath, "log", "", "write console events to this file (default sfera.log with the terminal UI)")
	flag.Parse()

	cfg = app.ApplyEnv(cfg, os.Getenv, telemetry.WrapLogger(log.Default()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
