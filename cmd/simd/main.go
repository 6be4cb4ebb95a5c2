package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"main/internal/obs"
	"main/internal/ops"
	"main/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	agentName := flag.String("agent", "", "Run only this agent in-process (used by child processes)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopProfiler, err := obs.StartProfiler(loaded.Profile)
	if err != nil {
		log.Fatalf("start profiler: %v", err)
	}
	defer func() {
		_ = stopProfiler()
	}()

	if *agentName != "" {
		if _, err := scheduler.RunAgent(ctx, loaded, *agentName); err != nil {
			log.Fatalf("agent %s: %v", *agentName, err)
		}
		return
	}
	if err := scheduler.Run(ctx, *configPath, loaded); err != nil {
		log.Fatalf("run: %v", err)
	}
}
