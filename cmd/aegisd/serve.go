package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"aegis-core/internal/api"
	"aegis-core/internal/auth"
	"aegis-core/internal/compliance"
	"aegis-core/internal/config"
	"aegis-core/internal/dispatch"
	"aegis-core/internal/observability/metrics"
	"aegis-core/internal/ratelimit"
	"aegis-core/internal/settlement"
	"aegis-core/internal/storage/mysql"
	"aegis-core/internal/web3/ethereum"
	"aegis-core/pkg/logger"
)

// loadConfig 读取配置、初始化日志并校验必填项。
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}
	return cfg, nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("aegisd")
	ctx := c.Context

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if stores.closer != nil {
		closers = append(closers, stores.closer)
	}

	session, err := ethereum.NewSession(ctx, ethereum.Config{
		RPCURL:         cfg.Web3.RPCURL,
		PrivateKey:     cfg.Web3.PrivateKey,
		ConfirmTimeout: cfg.Web3.ConfirmTimeout.Std(),
		PollInterval:   cfg.Web3.PollInterval.Std(),
	})
	if err != nil {
		return fmt.Errorf("初始化链会话失败: %w", err)
	}
	defer session.Close()
	log.Info("链会话已建立", "address", session.Address().Hex(), "chain_id", session.ChainID().String())

	identity, err := dispatch.ParseAddress("identity_contract", cfg.Web3.IdentityContract)
	if err != nil {
		return err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithObserver(metrics.ChainObserver{})}
	sink, err := openSettlementSink(ctx, cfg.Settlement)
	if err != nil {
		return err
	}
	if sink != nil {
		closers = append(closers, sink)
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(settlement.NewRecorder(sink, settlement.RecorderConfig{
			Currency:   cfg.Settlement.Currency,
			DebtorName: cfg.Settlement.DebtorName,
		})))
	}
	dispatcher, err := dispatch.New(session, identity, dispatchOpts...)
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(auth.Config{Secret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL.Std()})
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(stores.users, issuer)
	if err != nil {
		return err
	}
	complianceSvc, err := compliance.NewService(stores.entities)
	if err != nil {
		return err
	}

	limiter, limiterCloser, err := openLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	if limiterCloser != nil {
		closers = append(closers, limiterCloser)
	}

	server, err := api.NewServer(api.Options{
		Address:         cfg.Server.Address,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
		MetricsEnabled:  cfg.Metrics.Enabled && cfg.Metrics.Address == "",
		MetricsPath:     cfg.Metrics.Path,
		Limiter:         limiter,
		PerClientLimit:  cfg.RateLimit.PerClient,
	}, authSvc, dispatcher, complianceSvc, stores.health)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address, cfg.Metrics.Path); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务异常退出", "address", cfg.Metrics.Address, "error", err)
			}
		}()
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("aegisd 已退出")
	return nil
}

func migrateAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	if cfg.Storage.Driver != "mysql" {
		return fmt.Errorf("migrate 仅支持 mysql 存储，当前为 %s", cfg.Storage.Driver)
	}
	dbCfg := mysqlConfig(cfg.Storage)
	dbCfg.AutoMigrate = false
	store, err := mysql.Open(c.Context, dbCfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(c.Context); err != nil {
		return err
	}
	logger.Named("aegisd").Info("数据库迁移完成")
	return nil
}

type storeSet struct {
	users    auth.Store
	entities compliance.Store
	health   api.HealthChecker
	closer   io.Closer
}

// openStores 初始化存储，失败即终止启动。
func openStores(ctx context.Context, cfg *config.Config) (*storeSet, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Named("aegisd").Warn("使用内存存储，重启后数据丢失")
		return &storeSet{users: auth.NewMemoryStore(), entities: compliance.NewMemoryStore()}, nil
	case "mysql":
		store, err := mysql.Open(ctx, mysqlConfig(cfg.Storage))
		if err != nil {
			return nil, fmt.Errorf("初始化存储失败: %w", err)
		}
		return &storeSet{users: store, entities: store, health: store, closer: store}, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func mysqlConfig(cfg config.StorageConfig) mysql.Config {
	return mysql.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
		AutoMigrate:     cfg.AutoMigrate,
	}
}

// openSettlementSink 返回 nil 表示未启用结算报文。
func openSettlementSink(ctx context.Context, cfg config.SettlementConfig) (settlement.Sink, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return settlement.NewMemorySink(), nil
	case "redis":
		return settlement.NewRedisSink(ctx, settlement.RedisSinkConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
	case "rabbitmq":
		return settlement.NewRabbitMQSink(settlement.RabbitMQSinkConfig{
			URL:   cfg.RabbitMQ.URL,
			Queue: cfg.RabbitMQ.Queue,
		})
	default:
		return nil, fmt.Errorf("未知的结算投递驱动: %s", cfg.Driver)
	}
}

// openLimiter 返回 nil Limiter 表示关闭限流。
func openLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, io.Closer, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil, nil
	case "", "memory":
		return ratelimit.NewMemoryLimiter(cfg.RequestsPerSecond, cfg.Burst, 0), nil, nil
	case "redis":
		l, err := ratelimit.NewRedisLimiter(ctx, ratelimit.RedisConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Key,
		}, cfg.RequestsPerSecond, cfg.Burst)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	default:
		return nil, nil, fmt.Errorf("未知的限流驱动: %s", cfg.Driver)
	}
}
