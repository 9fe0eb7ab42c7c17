// Package main seeds an owner's task libraries with the starter deck.
//
// Libraries that already hold data are left alone unless --force is given.
//
// Usage:
//
//	go run ./cmd/seed --owner alice
//	go run ./cmd/seed --owner alice --force --storage-driver badger
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/deck"
	"github.com/listenupapp/tasksync-server/internal/di/providers"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/service"
	"github.com/listenupapp/tasksync-server/internal/share"
)

func main() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	cfgFlags := config.BindFlags(fs)
	owner := fs.String("owner", "", "Owner to seed (required)")
	force := fs.Bool("force", false, "Overwrite libraries that already exist")
	_ = fs.Parse(os.Args[1:])

	if *owner == "" {
		log.Fatal("--owner is required")
	}

	cfg, err := cfgFlags.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(logger.Config{Level: logger.ParseLevel(cfg.Logger.Level), Environment: cfg.App.Environment})

	ctx := context.Background()
	st, err := providers.OpenStore(ctx, cfg.Storage, lg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Reseeding a shared library must evict its cached snapshot like the server does.
	cache := providers.OpenCache(ctx, cfg.Cache, lg)
	defer func() { _ = cache.Shutdown() }()

	tasks := service.NewTaskService(st, share.NewRegistry(st, cache, lg.Logger), lg.Logger)

	seeded, skipped := 0, 0
	for _, seed := range deck.Defaults {
		ref := service.LibraryRef{
			Owner:    *owner,
			TaskType: string(seed.TaskType),
			Category: string(seed.Category),
		}

		current, err := tasks.Read(ctx, service.ReadRequest{LibraryRef: ref})
		if err != nil {
			log.Fatalf("Failed to read %s/%s: %v", seed.TaskType, seed.Category, err)
		}
		if current.Version > 0 && !*force {
			fmt.Printf("  %-12s %-6s exists at v%d, skipping\n", seed.TaskType, seed.Category, current.Version)
			skipped++
			continue
		}

		state, err := tasks.Update(ctx, service.UpdateRequest{LibraryRef: ref, Tasks: seed.Tasks})
		if err != nil {
			log.Fatalf("Failed to seed %s/%s: %v", seed.TaskType, seed.Category, err)
		}
		fmt.Printf("  %-12s %-6s %d tasks at v%d\n", seed.TaskType, seed.Category, len(state.Tasks), state.Version)
		seeded++
	}

	fmt.Printf("\nSeeded %d libraries for %s (%d skipped)\n", seeded, *owner, skipped)
}
