package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	if cfg.StorageBackend == config.BackendMemory {
		log.Fatal("authctl needs a persistent storage backend")
	}

	storage, err := server.OpenStorage(ctx, cfg, logging.NewJSON(os.Stderr, cfg.LogLevel))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer storage.Close()

	app := authctl.NewApp(storage.Repos, cryptox.NewArgon2id(cryptox.DefaultParams), os.Stdout)
	if err := app.Run(ctx, authctl.CommandArgs(os.Args[1:])); err != nil {
		if !errors.Is(err, authctl.ErrUsage) {
			log.Printf("%v", err)
		}
		storage.Close()
		os.Exit(1)
	}

}
