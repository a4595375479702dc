package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aegis-core/internal/compliance"
)

var _ compliance.Store = (*Store)(nil)

const (
	insertEntitySQL = `INSERT INTO legal_entities (hash_id, jurisdiction, kyc_level, on_chain_id, created_at) VALUES (?, ?, ?, ?, ?)`
	listEntitiesSQL = `SELECT id, hash_id, jurisdiction, kyc_level, on_chain_id, created_at
    FROM legal_entities ORDER BY created_at DESC, id DESC`
)

// CreateEntity 实现 compliance.Store。created_at 以毫秒存储。
func (s *Store) CreateEntity(ctx context.Context, entity *compliance.Entity) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx, insertEntitySQL, entity.HashID, entity.Jurisdiction, entity.KYCLevel, entity.OnChainID, now.UnixMilli())
	if err != nil {
		if isDuplicateKey(err) {
			return compliance.ErrEntityExists
		}
		return fmt.Errorf("保存实体失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取实体ID失败: %w", err)
	}
	entity.ID = id
	entity.CreatedAt = now
	return nil
}

// ListEntities 实现 compliance.Store，按创建时间倒序。
func (s *Store) ListEntities(ctx context.Context) ([]compliance.Entity, error) {
	rows, err := s.db.QueryContext(ctx, listEntitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("查询实体失败: %w", err)
	}
	defer rows.Close()

	entities := make([]compliance.Entity, 0)
	for rows.Next() {
		var (
			entity    compliance.Entity
			onChainID sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&entity.ID, &entity.HashID, &entity.Jurisdiction, &entity.KYCLevel, &onChainID, &createdAt); err != nil {
			return nil, fmt.Errorf("解析实体失败: %w", err)
		}
		if onChainID.Valid {
			v := onChainID.String
			entity.OnChainID = &v
		}
		entity.CreatedAt = time.UnixMilli(createdAt).UTC()
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历实体失败: %w", err)
	}
	return entities, nil
}
