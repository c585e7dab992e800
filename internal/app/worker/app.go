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

// Package worker 后台同步进程：周期扫描未上账与失败的记录并重试。
// API 进程只在写入时触发一次同步，补偿循环全部在这里。
package worker

import (
	"context"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	works "civicledger/internal/app"
	"civicledger/pkg/log"
	"civicledger/pkg/tracing"
)

// App Worker 应用
type App struct {
	container    *works.Container
	logger       *log.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int

	tracerProvider *sdktrace.TracerProvider
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// NewApp 创建新的 Worker 应用
func NewApp(container *works.Container) *App {
	cfg := container.Config.Worker
	pollInterval := 15 * time.Second
	if d, err := time.ParseDuration(cfg.PollInterval); err == nil && d > 0 {
		pollInterval = d
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &App{
		container:    container,
		logger:       container.Logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Start 启动扫描循环
func (a *App) Start() error {
	if !a.container.Ledger.Enabled() {
		a.logger.Info("账本未启用，worker 空转")
	}

	// 可选：启用链路追踪，账本写入与核验 span 由此导出
	tcfg := a.container.Config.Tracing
	if tcfg.Enabled && tcfg.Endpoint != "" {
		serviceName := tcfg.ServiceName
		if serviceName == "" {
			serviceName = "civicledger-worker"
		}
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: tcfg.Endpoint,
			Insecure:       tcfg.Insecure,
		})
		if err != nil {
			a.logger.Warn("链路追踪初始化失败", "error", err)
		} else {
			a.tracerProvider = tp
			a.logger.Info("链路追踪已启用",
				"service_name", serviceName, "endpoint", tcfg.Endpoint)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("worker 应用启动成功",
		"poll_interval", a.pollInterval.String(),
		"batch_size", a.batchSize,
		"max_attempts", a.maxAttempts)
	return nil
}

func (a *App) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep 处理一批待同步记录；超过最大重试次数的记录留在原状态，
// 等人工处理或核验端点暴露
func (a *App) sweep(ctx context.Context) {
	if !a.container.Ledger.Enabled() {
		return
	}
	pending, err := a.container.Store.ListPendingSync(ctx, a.batchSize)
	if err != nil {
		a.logger.Error("扫描待同步记录失败", "error", err)
		return
	}
	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		if rec.Attempts >= a.maxAttempts {
			a.logger.Warn("记录超过最大重试次数，跳过",
				"record_type", rec.RecordType, "id", rec.RecordID, "attempts", rec.Attempts)
			continue
		}
		if err := a.container.Sync.SyncOne(ctx, rec); err != nil {
			a.logger.Warn("重试同步失败",
				"record_type", rec.RecordType, "id", rec.RecordID, "error", err)
		}
	}
}

// Shutdown 关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 worker 应用")
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.tracerProvider != nil {
		_ = a.tracerProvider.Shutdown(ctx)
	}
	a.container.Close()
	a.logger.Info("worker 应用关闭成功")
	return nil
}
