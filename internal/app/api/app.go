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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	httpapi "civicledger/internal/api/http"
	"civicledger/internal/api/http/middleware"
	works "civicledger/internal/app"
	"civicledger/pkg/auth"
	"civicledger/pkg/secrets"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用，装配 HTTP Router、Handler、Middleware
type App struct {
	container    *works.Container
	router       *httpapi.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用，由 cmd/api 调用
func NewApp(container *works.Container) (*App, error) {
	handler := httpapi.NewHandler(container.Works, container.Logger)
	router := httpapi.NewRouter(handler, middleware.NewMiddleware(), container.Config.API)
	router.SetAudit(middleware.NewAuditMiddleware(middleware.NewLogAuditStore(container.Logger)))

	mwCfg := container.Config.API.Middleware
	if mwCfg.Auth && mwCfg.JWTKey != "" {
		timeout := parseDuration(mwCfg.JWTTimeout, time.Hour)
		maxRefresh := parseDuration(mwCfg.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(mwCfg.JWTKey), timeout, maxRefresh,
			credentialChecker(container.Secrets))
		if err != nil {
			container.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			container.Logger.Info("JWT 认证已启用")
		}
	}

	return &App{
		container: container,
		router:    router,
	}, nil
}

// credentialChecker 用 Secret Store 校验登录凭证，
// key 约定为 auth/users/<actor_id>，值为 "<password>:<role>"
func credentialChecker(sec secrets.Store) middleware.CredentialChecker {
	return func(ctx context.Context, actorID, password string) (auth.Role, error) {
		stored, err := sec.Get(ctx, "auth/users/"+actorID)
		if err != nil {
			return "", err
		}
		pw, role, ok := strings.Cut(stored, ":")
		if !ok || pw == "" || pw != password {
			return "", fmt.Errorf("invalid credentials for %s", actorID)
		}
		if role == "" {
			role = string(auth.RoleCitizen)
		}
		return auth.Role(role), nil
	}
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.container.Config
	a.container.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 pkg/log 配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint != "" {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "civicledger-api"
		}
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(cfg.Tracing.Endpoint),
		}
		if cfg.Tracing.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
		a.container.Logger.Info("链路追踪已启用",
			"service_name", serviceName, "endpoint", cfg.Tracing.Endpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}

	return a.hertz.Run()
}

// Shutdown 优雅关闭，传入 ctx 以支持超时
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.container.Close()
	return nil
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
