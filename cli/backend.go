package main

import (
	"context"
	"fmt"

	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/config"
	"github.com/jicksta/case-ballots/redisstore"
	"github.com/jicksta/case-ballots/sqlite"
)

// openStore opens the backend named in cfg. The returned func closes it.
func openStore(ctx context.Context, cfg *config.Config) (ballots.RecordStore, func(), error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return ballots.NewMemoryStore(ballots.WithIDPolicy(policy)), func() {}, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, sqlite.WithIDPolicy(policy))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		store := redisstore.New(client, cfg.RedisPrefix, redisstore.WithIDPolicy(policy))
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
