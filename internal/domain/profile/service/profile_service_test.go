package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"farm_community/internal/domain/profile/model"
	"farm_community/internal/pkg/apperr"
	"farm_community/internal/pkg/events"
	"farm_community/pkg/cache"
	baseModel "farm_community/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockProfileRepository is a mock of ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Profile, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]model.Profile), args.Error(1)
}

func (m *MockProfileRepository) AddPoints(ctx context.Context, id string, delta int64) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

func profile(id, name, role string) model.Profile {
	return model.Profile{BaseModel: baseModel.BaseModel{ID: id}, DisplayName: name, Role: role}
}

func TestLookup_BatchesMissesIntoOneQuery(t *testing.T) {
	ctx := context.Background()
	repo := new(MockProfileRepository)
	c := cache.NewMemoryCache()
	svc := NewProfileService(repo, c, time.Minute)

	repo.On("FindByIDs", ctx, []string{"u1", "u2", "ghost"}).
		Return([]model.Profile{profile("u1", "Asha", "expert"), profile("u2", "Ben", "farmer")}, nil).Once()

	infos, err := svc.Lookup(ctx, []string{"u1", "u2", "u1", "ghost", "u2"})
	require.NoError(t, err)
	assert.Len(t, infos, 3)
	assert.True(t, infos["u1"].IsExpert())
	assert.Equal(t, "Ben", infos["u2"].DisplayName)
	assert.Equal(t, model.UnknownAuthor("ghost"), infos["ghost"])

	// 第二次查询命中缓存，只有缺失的作者回源
	repo.On("FindByIDs", ctx, []string{"ghost"}).Return([]model.Profile{}, nil).Once()
	infos, err = svc.Lookup(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", infos["u1"].DisplayName)
	repo.AssertExpectations(t)
}

func TestLookup_Empty(t *testing.T) {
	repo := new(MockProfileRepository)
	svc := NewProfileService(repo, cache.NewMemoryCache(), time.Minute)

	infos, err := svc.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
	repo.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
}

func TestLookup_StoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(MockProfileRepository)
	svc := NewProfileService(repo, cache.NewMemoryCache(), time.Minute)

	repo.On("FindByIDs", ctx, []string{"u1"}).Return([]model.Profile(nil), errors.New("connection reset"))

	_, err := svc.Lookup(ctx, []string{"u1"})
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestGetProfile_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(MockProfileRepository)
	svc := NewProfileService(repo, cache.NewMemoryCache(), time.Minute)

	repo.On("GetByID", ctx, "nobody").Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.GetProfile(ctx, "nobody")
	assert.True(t, apperr.IsNotFound(err))
}

func TestApplyEvent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		ev    events.Event
		user  string
		delta int64
	}{
		{"Post", events.Event{Type: events.TypePostCreated, ActorID: "u1"}, "u1", PointsPost},
		{"Comment", events.Event{Type: events.TypeCommentCreated, ActorID: "u2"}, "u2", PointsComment},
		{"Expert answer", events.Event{Type: events.TypeCommentCreated, ActorID: "u3", Expert: true}, "u3", PointsComment + PointsExpertAnswer},
		{"Reaction", events.Event{Type: events.TypeReactionApplied, ActorID: "u4", OwnerID: "u1"}, "u1", PointsReaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockProfileRepository)
			svc := NewProfileService(repo, cache.NewMemoryCache(), time.Minute)
			repo.On("AddPoints", ctx, tt.user, tt.delta).Return(nil).Once()

			assert.NoError(t, svc.ApplyEvent(ctx, tt.ev))
			repo.AssertExpectations(t)
		})
	}

	t.Run("Self reaction earns nothing", func(t *testing.T) {
		repo := new(MockProfileRepository)
		svc := NewProfileService(repo, cache.NewMemoryCache(), time.Minute)

		assert.NoError(t, svc.ApplyEvent(ctx, events.Event{Type: events.TypeReactionApplied, ActorID: "u1", OwnerID: "u1"}))
		repo.AssertNotCalled(t, "AddPoints", mock.Anything, mock.Anything, mock.Anything)
	})
}
