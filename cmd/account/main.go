// Package main provides a CLI for creating accounts and resetting passwords.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment only")
	action := flag.String("action", "create", "action: create or set-password")
	name := flag.String("name", "", "account name (required)")
	password := flag.String("password", "", "account password (required)")
	flag.Parse()

	if *name == "" || *password == "" {
		flag.Usage()
		os.Exit(1)
	}
	if !postgres.ValidAccountName(*name) {
		log.Fatalf("invalid account name %q: 1-%d characters, no ':'", *name, postgres.MaxAccountNameLength)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewAccountRepository(pool.DB())

	switch *action {
	case "create":
		acct, err := repo.Create(ctx, *name, *password)
		if err != nil {
			log.Fatalf("creating account %q: %v", *name, err)
		}
		fmt.Fprintf(os.Stdout, "created account %s (#%d) [%s]\n", acct.Name, acct.ID, time.Since(start))
	case "set-password":
		if err := repo.SetPassword(ctx, *name, *password); err != nil {
			log.Fatalf("setting password for %q: %v", *name, err)
		}
		fmt.Fprintf(os.Stdout, "password updated for %s [%s]\n", *name, time.Since(start))
	default:
		log.Fatalf("invalid action %q: must be 'create' or 'set-password'", *action)
	}
}
