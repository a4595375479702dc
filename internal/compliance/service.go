package compliance

import (
	"context"
	"errors"
	"log/slog"

	apperrors "aegis-core/internal/errors"
	"aegis-core/pkg/logger"
)

// Service 负责合规实体的登记与查询。
type Service struct {
	store Store
	log   *slog.Logger
}

// NewService 创建合规服务。
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("compliance service requires a store")
	}
	return &Service{store: store, log: logger.Named("compliance")}, nil
}

// Register 校验并登记一个法律实体。KYC 等级必须为正数。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Entity, error) {
	req = req.normalised()
	if req.KYCLevel <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "Invalid KYC Level",
			apperrors.WithMetadata("field", "kycLevel"))
	}
	if req.HashID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "hashId is required",
			apperrors.WithMetadata("field", "hashId"))
	}
	if req.Jurisdiction == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "jurisdiction is required",
			apperrors.WithMetadata("field", "jurisdiction"))
	}

	entity := &Entity{HashID: req.HashID, Jurisdiction: req.Jurisdiction, KYCLevel: req.KYCLevel}
	if err := s.store.CreateEntity(ctx, entity); err != nil {
		if errors.Is(err, ErrEntityExists) {
			return nil, apperrors.Wrap(apperrors.CodeConflict, err, "legal entity already registered")
		}
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "登记实体失败")
	}
	s.log.Info("legal entity registered", "id", entity.ID, "jurisdiction", entity.Jurisdiction, "kyc_level", entity.KYCLevel)
	return entity, nil
}

// List 返回全部实体，按创建时间倒序。
func (s *Service) List(ctx context.Context) ([]Entity, error) {
	entities, err := s.store.ListEntities(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "查询实体失败")
	}
	if entities == nil {
		entities = []Entity{}
	}
	return entities, nil
}
