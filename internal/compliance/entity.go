package compliance

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEntityExists 表示 hash_id 已被登记。
var ErrEntityExists = errors.New("legal entity already registered")

// Entity 是一条合规登记记录。
type Entity struct {
	ID           int64     `json:"id"`
	HashID       string    `json:"hashId"`
	Jurisdiction string    `json:"jurisdiction"`
	KYCLevel     int16     `json:"kycLevel"`
	OnChainID    *string   `json:"onChainId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterRequest 是登记接口的入参。
type RegisterRequest struct {
	HashID       string `json:"hashId"`
	Jurisdiction string `json:"jurisdiction"`
	KYCLevel     int16  `json:"kycLevel"`
}

// Store 抽象实体的持久化，实现需并发安全。
type Store interface {
	CreateEntity(ctx context.Context, entity *Entity) error
	ListEntities(ctx context.Context) ([]Entity, error)
}

func (r RegisterRequest) normalised() RegisterRequest {
	return RegisterRequest{
		HashID:       strings.TrimSpace(r.HashID),
		Jurisdiction: strings.TrimSpace(r.Jurisdiction),
		KYCLevel:     r.KYCLevel,
	}
}
