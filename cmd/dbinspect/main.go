// Package main prints the task libraries held by a record store.
//
// Usage:
//
//	go run ./cmd/dbinspect
//	go run ./cmd/dbinspect --owner alice --tasks
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/di/providers"
	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/store"
)

func main() {
	fs := flag.NewFlagSet("dbinspect", flag.ExitOnError)
	cfgFlags := config.BindFlags(fs)
	owner := fs.String("owner", "", "Only show this owner's libraries")
	showTasks := fs.Bool("tasks", false, "Print every task")
	_ = fs.Parse(os.Args[1:])

	cfg, err := cfgFlags.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(logger.Config{Level: logger.ParseLevel("warn"), Environment: cfg.App.Environment})
	ctx := context.Background()

	st, err := providers.OpenStore(ctx, cfg.Storage, lg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	var libs []*domain.TaskLibrary
	if *owner != "" {
		libs, err = st.ListByOwner(ctx, *owner)
	} else {
		err = st.Scan(ctx, func(rec *domain.TaskLibrary) error {
			libs = append(libs, rec)
			return nil
		})
		store.SortLibraries(libs)
	}
	if err != nil {
		log.Fatalf("Error reading store: %v", err)
	}

	fmt.Println("=== Store Inspection ===")
	fmt.Printf("Driver: %s\n\n", cfg.Storage.Driver)

	owners := map[string]int{}
	totalTasks, shared := 0, 0
	for _, lib := range libs {
		owners[lib.Owner]++
		totalTasks += len(lib.Tasks)
		if lib.Shared {
			shared++
		}

		marker := ""
		if lib.Shared {
			marker = " [shared]"
		}
		fmt.Printf("%s  v%d  rev %d  %d tasks  modified %s%s\n",
			lib.Key(), lib.Version, lib.Revision, len(lib.Tasks),
			lib.LastModified.Format(time.RFC3339), marker)

		if *showTasks {
			for i, task := range lib.Tasks {
				fmt.Printf("    [%d] %s\n", i, task)
			}
		}
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Owners: %d\n", len(owners))
	fmt.Printf("Libraries: %d (%d shared)\n", len(libs), shared)
	fmt.Printf("Total tasks: %d\n", totalTasks)
	if len(libs) > 0 {
		fmt.Printf("Average tasks per library: %.1f\n", float64(totalTasks)/float64(len(libs)))
	}
}
