package repository

import (
	"context"

	"farm_community/internal/domain/community/model"

	"gorm.io/gorm"
)

// PostQuery 帖子列表过滤条件，空字段不参与过滤
type PostQuery struct {
	Category string
	Tag      string
	AuthorID string
}

// PostRepository 帖子与附件
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	// GetByID 连同附件一起返回
	GetByID(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, q PostQuery, offset, limit int) ([]model.Post, int64, error)
	Updates(ctx context.Context, id string, fields map[string]interface{}) error
	// Delete 返回删除的行数，评论/点赞/浏览/附件由数据库级联删除
	Delete(ctx context.Context, id string) (int64, error)
	IncrementCommentCount(ctx context.Context, id string, delta int) error
	CreateAttachment(ctx context.Context, a *model.Attachment) error
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Omit("Attachments").Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, q PostQuery, offset, limit int) ([]model.Post, int64, error) {
	var posts []model.Post
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Post{})
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Tag != "" {
		tx = tx.Where("? = ANY(tags)", q.Tag)
	}
	if q.AuthorID != "" {
		tx = tx.Where("author_id = ?", q.AuthorID)
	}

	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return posts, 0, nil
	}

	err := tx.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	return posts, total, err
}

func (r *postRepository) Updates(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).Updates(fields).Error
}

func (r *postRepository) Delete(ctx context.Context, id string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Post{})
	return res.RowsAffected, res.Error
}

func (r *postRepository) IncrementCommentCount(ctx context.Context, id string, delta int) error {
	// UpdateColumn 不触碰 updated_at
	return r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).
		UpdateColumn("comment_count", gorm.Expr("comment_count + ?", delta)).Error
}

func (r *postRepository) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}
