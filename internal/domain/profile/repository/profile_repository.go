package repository

import (
	"context"

	"farm_community/internal/domain/profile/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 接口定义
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// FindByIDs 一次查询取回多个资料，不存在的 ID 直接缺席
	FindByIDs(ctx context.Context, ids []string) ([]model.Profile, error)
	// AddPoints 累加积分，资料不存在时以普通农户身份创建
	AddPoints(ctx context.Context, id string, delta int64) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建新的仓库实例
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Profile, error) {
	var list []model.Profile
	if len(ids) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *profileRepository) AddPoints(ctx context.Context, id string, delta int64) error {
	p := &model.Profile{Role: model.RoleFarmer, Points: delta}
	p.ID = id
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"points": gorm.Expr("profiles.points + ?", delta)}),
	}).Create(p).Error
}
