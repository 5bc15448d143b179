package repository

import (
	"context"

	"farm_community/internal/domain/community/model"

	"gorm.io/gorm"
)

type ViewRepository interface {
	Create(ctx context.Context, v *model.View) error
	CountByPost(ctx context.Context, postID string) (int64, error)
}

type viewRepository struct {
	db *gorm.DB
}

func NewViewRepository(db *gorm.DB) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) Create(ctx context.Context, v *model.View) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *viewRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.View{}).Where("post_id = ?", postID).Count(&total).Error
	return total, err
}
