package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aegis-core/internal/auth"
)

var _ auth.Store = (*Store)(nil)

const (
	selectUserSQL = `SELECT id, username, password_hash, role, disabled, created_at FROM users WHERE username = ?`
	insertUserSQL = `INSERT INTO users (username, password_hash, role, disabled, created_at) VALUES (?, ?, ?, ?, ?)`
)

// FindUserByUsername 实现 auth.Store。
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, selectUserSQL, strings.TrimSpace(username))
	var (
		user      auth.User
		disabled  int
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &disabled, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	user.Disabled = disabled == 1
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &user, nil
}

// CreateUser 实现 auth.Store，用户名冲突时返回 auth.ErrUserExists。
func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, insertUserSQL, user.Username, user.PasswordHash, user.Role, boolToInt(user.Disabled), now.Unix())
	if err != nil {
		if isDuplicateKey(err) {
			return auth.ErrUserExists
		}
		return fmt.Errorf("保存用户失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取用户ID失败: %w", err)
	}
	user.ID = id
	user.CreatedAt = now.Truncate(time.Second)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
