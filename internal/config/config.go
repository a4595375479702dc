package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aegis-core/pkg/logger"
)

// Config 描述了 Aegis Core 在启动阶段需要加载的全部配置。
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Web3       Web3Config       `json:"web3" yaml:"web3"`
	RateLimit  RateLimitConfig  `json:"rate_limit" yaml:"rate_limit"`
	Settlement SettlementConfig `json:"settlement" yaml:"settlement"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Logging    logger.Config    `json:"logging" yaml:"logging"`
}

// ServerConfig 控制 API 服务的监听地址与超时。
type ServerConfig struct {
	Address         string   `json:"address" yaml:"address"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig 描述令牌签发参数。
type AuthConfig struct {
	JWTSecret string   `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  Duration `json:"token_ttl" yaml:"token_ttl"`
}

// StorageConfig 描述关系型存储。driver 为 memory 时不连接数据库，仅用于本地调试。
type StorageConfig struct {
	Driver          string   `json:"driver" yaml:"driver"`
	DSN             string   `json:"dsn" yaml:"dsn"`
	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	AutoMigrate     bool     `json:"auto_migrate" yaml:"auto_migrate"`
}

// Web3Config 包含访问区块链节点与签名所需的信息。
type Web3Config struct {
	RPCURL           string   `json:"rpc_url" yaml:"rpc_url"`
	PrivateKey       string   `json:"private_key" yaml:"private_key"`
	IdentityContract string   `json:"identity_contract" yaml:"identity_contract"`
	ConfirmTimeout   Duration `json:"confirm_timeout" yaml:"confirm_timeout"`
	PollInterval     Duration `json:"poll_interval" yaml:"poll_interval"`
}

// RateLimitConfig 控制 API 入口的限流策略。
type RateLimitConfig struct {
	Driver            string      `json:"driver" yaml:"driver"`
	RequestsPerSecond float64     `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int         `json:"burst" yaml:"burst"`
	PerClient         bool        `json:"per_client" yaml:"per_client"`
	Redis             RedisConfig `json:"redis" yaml:"redis"`
}

// SettlementConfig 控制结算报文 (pacs.008) 的投递目标。
type SettlementConfig struct {
	Driver     string         `json:"driver" yaml:"driver"`
	Currency   string         `json:"currency" yaml:"currency"`
	DebtorName string         `json:"debtor_name" yaml:"debtor_name"`
	Redis      RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 为 Redis 连接参数。
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// RabbitMQConfig 为 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL   string `json:"url" yaml:"url"`
	Queue string `json:"queue" yaml:"queue"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	// Address 非空时指标使用独立端口，不挂载在 API 路由上。
	Address string `json:"address" yaml:"address"`
}

// Duration 允许在配置文件中使用 "2m"、"500ms" 这类写法，同时兼容整数秒。
type Duration time.Duration

// Std 返回标准库 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("无效的时长 %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("无效的时长类型 %T", raw)
	}
	return nil
}

// 默认值与原有部署保持一致：本地 Hardhat 节点与首个部署合约地址。
const (
	DefaultAddress          = ":3000"
	DefaultRPCURL           = "http://127.0.0.1:8545"
	DefaultIdentityContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	DefaultTokenTTL         = time.Hour
	DefaultConfirmTimeout   = 2 * time.Minute
	DefaultPollInterval     = time.Second
	DefaultMaxOpenConns     = 5
	DefaultRequestsPerSec   = 100
)

// Load 解析指定路径的配置文件，根据扩展名选择 JSON 或 YAML，
// 随后应用环境变量覆盖与默认值。path 为空时只使用环境变量与默认值。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(content, &cfg)
		default:
			err = json.Unmarshal(content, &cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖敏感字段，密钥不应写在配置文件中。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	first := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := first("AEGIS_RPC_URL", "RPC_URL"); ok {
		c.Web3.RPCURL = v
	}
	if v, ok := first("AEGIS_PRIVATE_KEY", "PRIVATE_KEY"); ok {
		c.Web3.PrivateKey = v
	}
	if v, ok := first("AEGIS_IDENTITY_CONTRACT", "CONTRACT_ADDRESS"); ok {
		c.Web3.IdentityContract = v
	}
	if v, ok := first("AEGIS_DATABASE_DSN"); ok {
		c.Storage.DSN = v
		if c.Storage.Driver == "" {
			c.Storage.Driver = "mysql"
		}
	}
	if v, ok := first("AEGIS_JWT_SECRET", "JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := first("AEGIS_LISTEN_ADDRESS"); ok {
		c.Server.Address = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(5 * time.Second)
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = Duration(DefaultTokenTTL)
	}

	if c.Storage.Driver == "" {
		if c.Storage.DSN != "" {
			c.Storage.Driver = "mysql"
		} else {
			c.Storage.Driver = "memory"
		}
	}
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Storage.MaxIdleConns <= 0 {
		c.Storage.MaxIdleConns = c.Storage.MaxOpenConns
	}
	if c.Storage.ConnMaxLifetime == 0 {
		c.Storage.ConnMaxLifetime = Duration(30 * time.Minute)
	}

	if c.Web3.RPCURL == "" {
		c.Web3.RPCURL = DefaultRPCURL
	}
	if c.Web3.IdentityContract == "" {
		c.Web3.IdentityContract = DefaultIdentityContract
	}
	if c.Web3.ConfirmTimeout == 0 {
		c.Web3.ConfirmTimeout = Duration(DefaultConfirmTimeout)
	}
	if c.Web3.PollInterval == 0 {
		c.Web3.PollInterval = Duration(DefaultPollInterval)
	}

	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = "memory"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = DefaultRequestsPerSec
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.Redis.Key == "" {
		c.RateLimit.Redis.Key = "aegis:ratelimit"
	}

	if c.Settlement.Driver == "" {
		c.Settlement.Driver = "none"
	}
	if c.Settlement.Currency == "" {
		c.Settlement.Currency = "ETH"
	}
	if c.Settlement.Redis.Key == "" {
		c.Settlement.Redis.Key = "aegis:settlement:pacs008"
	}
	if c.Settlement.RabbitMQ.Queue == "" {
		c.Settlement.RabbitMQ.Queue = "aegis.settlement.pacs008"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

// Validate 在启动前检查必填项，缺失时直接失败，不提供降级启动。
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret 未配置 (AEGIS_JWT_SECRET)"))
	}
	if strings.TrimSpace(c.Web3.PrivateKey) == "" {
		errs = append(errs, errors.New("web3.private_key 未配置 (AEGIS_PRIVATE_KEY)"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn 未配置 (AEGIS_DATABASE_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver))
	}
	switch c.RateLimit.Driver {
	case "memory", "none":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			errs = append(errs, errors.New("rate_limit.redis.addr 未配置"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的限流驱动: %s", c.RateLimit.Driver))
	}
	switch c.Settlement.Driver {
	case "none", "memory":
	case "redis":
		if c.Settlement.Redis.Addr == "" {
			errs = append(errs, errors.New("settlement.redis.addr 未配置"))
		}
	case "rabbitmq":
		if c.Settlement.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("settlement.rabbitmq.url 未配置"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的结算驱动: %s", c.Settlement.Driver))
	}
	return errors.Join(errs...)
}
