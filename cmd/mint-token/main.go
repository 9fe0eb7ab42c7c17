// Package main mints an access token for an owner, for local testing and
// for operators provisioning clients by hand.
//
// Usage:
//
//	go run ./cmd/mint-token --owner alice
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/listenupapp/tasksync-server/internal/auth"
	"github.com/listenupapp/tasksync-server/internal/config"
)

func main() {
	fs := flag.NewFlagSet("mint-token", flag.ExitOnError)
	cfgFlags := config.BindFlags(fs)
	owner := fs.String("owner", "", "Owner the token identifies (required)")
	_ = fs.Parse(os.Args[1:])

	if *owner == "" {
		log.Fatal("--owner is required")
	}

	cfg, err := cfgFlags.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	key := cfg.Auth.AccessTokenKey
	if key == "" {
		key, err = auth.LoadOrGenerateKey(cfg.Storage.DataPath)
		if err != nil {
			log.Fatalf("Failed to load auth key: %v", err)
		}
	}

	tokens, err := auth.NewTokenService(key, cfg.Auth.AccessTokenDuration)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	token, err := tokens.GenerateAccessToken(*owner)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Token for %s, valid for %s:\n", *owner, tokens.AccessTokenDuration())
	fmt.Println(token)
}
