// Copyright 2026 civicledger
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"
	"time"

	"civicledger/internal/ledger"
	"civicledger/internal/ledgersync"
	"civicledger/internal/storage/cache"
	"civicledger/internal/storage/record"
	"civicledger/internal/verify"
	"civicledger/pkg/config"
	"civicledger/pkg/log"
	"civicledger/pkg/secrets"
)

// Container 进程级依赖集合，api 与 worker 共用同一套组装
type Container struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   record.Store
	Cache   cache.Cache
	Ledger  *ledger.Client
	Sync    *ledgersync.Orchestrator
	Verify  *verify.Engine
	Works   *WorksService
	Secrets secrets.Store
}

// Bootstrap 按配置组装全部依赖
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Container, error) {
	sec, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init secrets: %w", err)
	}

	store, err := record.NewStore(ctx, cfg.Storage.Record)
	if err != nil {
		return nil, fmt.Errorf("init record store: %w", err)
	}

	c, err := cache.New(cfg.Storage.Cache)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	client := ledger.NewClient(ctx, cfg.Ledger, sec, logger)
	sync := ledgersync.NewOrchestrator(store, client, logger)
	verifier := verify.NewEngine(store, client, logger)

	ttl := 30 * time.Second
	if cfg.Storage.Cache.TTL != "" {
		if d, err := time.ParseDuration(cfg.Storage.Cache.TTL); err == nil {
			ttl = d
		}
	}
	works := NewWorksService(store, client, sync, verifier, c, ttl, logger)

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Cache:   c,
		Ledger:  client,
		Sync:    sync,
		Verify:  verifier,
		Works:   works,
		Secrets: sec,
	}, nil
}

// Close 释放持有的连接
func (c *Container) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}
