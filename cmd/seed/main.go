package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_engine/internal/modules/config"
	storage "signal_engine/internal/modules/storage/service"
	strategy "signal_engine/internal/modules/strategy/service"
	"signal_engine/pkg/logger"
)

const defaultSeedFile = "configs/seed.yaml"

// importSeed переносит сид-файл в sqlite. Стратегии проходят ту же
// проверку, что и при загрузке движком.
func importSeed(ctx context.Context, seedPath, dbPath string) error {
	seed, err := storage.OpenYAML(seedPath, 0)
	if err != nil {
		return errors.Wrap(err, "open seed")
	}
	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return errors.Wrap(err, "open sqlite")
	}
	defer db.Close()

	engine, err := strategy.NewEngine(zap.NewNop(), 64)
	if err != nil {
		return err
	}

	strategies, instruments, creds := seed.All()
	for _, st := range strategies {
		if err := engine.Validate(st); err != nil {
			return errors.Wrapf(err, "strategy %q rejected", st.Name)
		}
		if _, err := db.AddStrategy(ctx, st); err != nil {
			return errors.Wrapf(err, "strategy %q", st.Name)
		}
	}
	for _, in := range instruments {
		if _, err := db.AddInstrument(ctx, in); err != nil {
			return errors.Wrapf(err, "instrument %q", in.Symbol)
		}
	}
	for _, c := range creds {
		if err := db.PutCredentials(ctx, c); err != nil {
			return errors.Wrapf(err, "credentials %s", c.Broker)
		}
	}
	logger.Info("strategies: %d, instruments: %d, credentials: %d", len(strategies), len(instruments), len(creds))
	return nil
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if _, err := logger.New(cfg.Service.Name+"-seed", cfg.Log.Level); err != nil {
		panic(err)
	}
	if cfg.Storage.Driver != "sqlite" {
		logger.Fatal("seed import supports sqlite only, storage.driver is %q", cfg.Storage.Driver)
	}

	seedPath := defaultSeedFile
	if len(os.Args) > 1 {
		seedPath = os.Args[1]
	}
	if err := importSeed(context.Background(), seedPath, cfg.Storage.Path); err != nil {
		logger.Fatal("import %s: %v", seedPath, err)
	}
	logger.Info("seed imported into %s", cfg.Storage.Path)
}
