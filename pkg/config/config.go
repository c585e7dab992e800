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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Worker  WorkerConfig  `mapstructure:"worker"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Record RecordConfig `mapstructure:"record"`
	Cache  CacheConfig  `mapstructure:"cache"`
}

// RecordConfig 权威记录存储配置
type RecordConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// CacheConfig 缓存配置（账本快照读缓存）
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      string `mapstructure:"ttl"` // 如 "30s"，空则默认 30s
}

// LedgerConfig 账本端点配置；每个部署仅一个端点与一个签名身份
type LedgerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Type            string `mapstructure:"type"`              // memory | rpc
	Endpoint        string `mapstructure:"endpoint"`          // JSON-RPC 端点，type=rpc 时必填
	ContractAddress string `mapstructure:"contract_address"`  // 合约地址，type=rpc 时必填
	ChainID         int64  `mapstructure:"chain_id"`          // 链标识，签名域分隔
	SignerAddress   string `mapstructure:"signer_address"`    // 签名身份地址
	SignerKeySecret string `mapstructure:"signer_key_secret"` // secrets.Store 中私钥的 key 名，绝不直接放私钥
	RequestTimeout  string `mapstructure:"request_timeout"`   // 单次账本调用超时，空则默认 10s
	ConfirmTimeout  string `mapstructure:"confirm_timeout"`   // 等待确认超时，空则默认 30s
	SubmitRate      int    `mapstructure:"submit_rate"`       // 每秒提交上限，<=0 则默认 5
	SubmitBurst     int    `mapstructure:"submit_burst"`      // 提交突发上限，<=0 则默认 1
	FeeCapUnits     int64  `mapstructure:"fee_cap_units"`     // 单笔费用上限（最小面额），<=0 不限制
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // vault | env | memory
	Vault    VaultSecretConfig `mapstructure:"vault"`
}

// VaultSecretConfig Vault 配置
type VaultSecretConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

// WorkerConfig 同步重试 Worker 配置
type WorkerConfig struct {
	PollInterval string `mapstructure:"poll_interval"` // 扫描间隔，如 "15s"，空则默认 15s
	BatchSize    int    `mapstructure:"batch_size"`    // 每轮处理的记录数，<=0 则默认 20
	MaxAttempts  int    `mapstructure:"max_attempts"`  // 单条记录最大重试次数，<=0 则默认 5
}

// Load 加载配置：configs/config.yaml（或 CIVICLEDGER_CONFIG 指定路径），
// 环境变量前缀 CIVICLEDGER 覆盖
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path := os.Getenv("CIVICLEDGER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CIVICLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可缺省，仅依赖默认值与环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.record.type", "memory")
	v.SetDefault("storage.cache.type", "memory")
	v.SetDefault("ledger.type", "memory")
	v.SetDefault("ledger.request_timeout", "10s")
	v.SetDefault("ledger.confirm_timeout", "30s")
	v.SetDefault("ledger.submit_rate", 5)
	v.SetDefault("ledger.submit_burst", 1)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("worker.poll_interval", "15s")
	v.SetDefault("worker.batch_size", 20)
	v.SetDefault("worker.max_attempts", 5)
}

// Validate 基本一致性校验；fail closed：账本启用但关键项缺失视为配置错误
func (c *Config) Validate() error {
	if c.Storage.Record.Type == "postgres" && c.Storage.Record.DSN == "" {
		return fmt.Errorf("storage.record.dsn required when type=postgres")
	}
	if c.Ledger.Enabled && c.Ledger.Type == "rpc" {
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger.endpoint required when ledger enabled with type=rpc")
		}
		if c.Ledger.ContractAddress == "" {
			return fmt.Errorf("ledger.contract_address required when ledger enabled with type=rpc")
		}
		if c.Ledger.SignerKeySecret == "" {
			return fmt.Errorf("ledger.signer_key_secret required when ledger enabled with type=rpc")
		}
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"api.timeout", c.API.Timeout},
		{"ledger.request_timeout", c.Ledger.RequestTimeout},
		{"ledger.confirm_timeout", c.Ledger.ConfirmTimeout},
		{"worker.poll_interval", c.Worker.PollInterval},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.value)
		}
	}
	return nil
}

// RequestTimeout 解析后的单次调用超时
func (l LedgerConfig) GetRequestTimeout() time.Duration {
	if d, err := time.ParseDuration(l.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// GetConfirmTimeout 解析后的确认等待超时
func (l LedgerConfig) GetConfirmTimeout() time.Duration {
	if d, err := time.ParseDuration(l.ConfirmTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}
