package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "aegis-core/internal/errors"
)

func TestRegisterRejectsNonPositiveKYC(t *testing.T) {
	store := NewMemoryStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	for _, level := range []int16{0, -1} {
		_, err := svc.Register(context.Background(), RegisterRequest{HashID: "h", Jurisdiction: "CH", KYCLevel: level})
		require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
		e, _ := apperrors.From(err)
		require.Equal(t, "Invalid KYC Level", e.Message())
	}

	entities, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestRegisterRequiresFields(t *testing.T) {
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterRequest{Jurisdiction: "CH", KYCLevel: 1})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	_, err = svc.Register(context.Background(), RegisterRequest{HashID: "h", Jurisdiction: " ", KYCLevel: 1})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	svc, err := NewService(store)
	require.NoError(t, err)

	for _, hash := range []string{"first", "second", "third"} {
		entity, err := svc.Register(context.Background(), RegisterRequest{HashID: hash, Jurisdiction: "SG", KYCLevel: 2})
		require.NoError(t, err)
		require.NotZero(t, entity.ID)
		require.Nil(t, entity.OnChainID)
	}

	entities, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 3)
	require.Equal(t, "third", entities[0].HashID)
	require.Equal(t, "first", entities[2].HashID)
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)
	req := RegisterRequest{HashID: "dup", Jurisdiction: "DE", KYCLevel: 1}
	_, err = svc.Register(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), req)
	require.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	require.True(t, errors.Is(err, ErrEntityExists))
}

type failingStore struct{}

func (failingStore) CreateEntity(context.Context, *Entity) error { return errors.New("db down") }
func (failingStore) ListEntities(context.Context) ([]Entity, error) {
	return nil, errors.New("db down")
}

func TestStorageFailuresAreCoded(t *testing.T) {
	svc, err := NewService(failingStore{})
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), RegisterRequest{HashID: "h", Jurisdiction: "CH", KYCLevel: 1})
	require.Equal(t, apperrors.CodeStorageFailure, apperrors.CodeOf(err))
	_, err = svc.List(context.Background())
	require.Equal(t, apperrors.CodeStorageFailure, apperrors.CodeOf(err))
}
