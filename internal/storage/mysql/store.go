package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// Store 是基于 MySQL 的持久化层，同时实现 auth.Store 与 compliance.Store。
type Store struct {
	db *sql.DB
}

// Open 建立连接池；AutoMigrate 为真时执行内嵌迁移。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, db, nil); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Store{db: db}, nil
}

// Migrate 执行尚未应用的迁移。
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, nil)
}

// Ping 检查数据库连通性，供健康检查使用。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("MySQL 不可用: %w", err)
	}
	return nil
}

// Close 释放连接池。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
