package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/qqncnc/VPS-Traffic-Guardian/pkg/guardian"
)

func main() {
	cfg, err := guardian.LoadConfig("./config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := guardian.New(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("guardian exited: %v", err)
	}
}
