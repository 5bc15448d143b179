package repository

import (
	"context"

	"farm_community/internal/domain/community/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReactionCount 单个目标某类点赞的数量
type ReactionCount struct {
	TargetID     string
	ReactionType string
	Total        int64
}

type ReactionRepository interface {
	// Toggle 在一个事务内切换点赞：删除已有行，否则插入；返回切换后是否处于已点赞状态
	Toggle(ctx context.Context, r *model.Reaction) (bool, error)
	Count(ctx context.Context, targetID, reactionType string) (int64, error)
	Exists(ctx context.Context, targetID, userID, reactionType string) (bool, error)
	CountByTargets(ctx context.Context, targetIDs []string) ([]ReactionCount, error)
	ListByUser(ctx context.Context, targetIDs []string, userID string) ([]model.Reaction, error)
}

type reactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

func (r *reactionRepository) Toggle(ctx context.Context, re *model.Reaction) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND target_id = ? AND reaction_type = ?", re.UserID, re.TargetID, re.ReactionType).
			Delete(&model.Reaction{})
		if res.Error != nil {
			return res.Error
		}

		delta := 0
		if res.RowsAffected > 0 {
			delta = -1
		} else {
			// 并发切换抢先插入时 DO NOTHING，结果仍为已点赞
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(re)
			if ins.Error != nil {
				return ins.Error
			}
			applied = true
			if ins.RowsAffected > 0 {
				delta = 1
			}
		}

		if delta != 0 && re.TargetKind == model.TargetPost {
			return tx.Model(&model.Post{}).Where("id = ?", re.TargetID).
				UpdateColumn("reaction_count", gorm.Expr("reaction_count + ?", delta)).Error
		}
		return nil
	})
	return applied, err
}

func (r *reactionRepository) Count(ctx context.Context, targetID, reactionType string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Reaction{}).
		Where("target_id = ? AND reaction_type = ?", targetID, reactionType).
		Count(&total).Error
	return total, err
}

func (r *reactionRepository) Exists(ctx context.Context, targetID, userID, reactionType string) (bool, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Reaction{}).
		Where("target_id = ? AND user_id = ? AND reaction_type = ?", targetID, userID, reactionType).
		Limit(1).Count(&total).Error
	return total > 0, err
}

func (r *reactionRepository) CountByTargets(ctx context.Context, targetIDs []string) ([]ReactionCount, error) {
	var rows []ReactionCount
	if len(targetIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).Model(&model.Reaction{}).
		Select("target_id, reaction_type, COUNT(*) AS total").
		Where("target_id IN ?", targetIDs).
		Group("target_id, reaction_type").
		Scan(&rows).Error
	return rows, err
}

func (r *reactionRepository) ListByUser(ctx context.Context, targetIDs []string, userID string) ([]model.Reaction, error) {
	var list []model.Reaction
	if len(targetIDs) == 0 || userID == "" {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("target_id IN ? AND user_id = ?", targetIDs, userID).
		Find(&list).Error
	return list, err
}
