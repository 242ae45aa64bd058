package main

import (
	"context"
	"log"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/app/bootstrap"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/application"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, "configs/default.yaml", string(application.RoleResponder))
	if err != nil {
		log.Fatalf("bootstrap responder runtime: %v", err)
	}
	if err := runtime.Run(ctx); err != nil {
		log.Fatalf("run responder: %v", err)
	}
}
