package service

import (
	"context"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/repository"
	"farm_community/internal/pkg/apperr"
	"farm_community/internal/pkg/events"
	"farm_community/pkg/metrics"
)

type ReactionService interface {
	// ToggleReaction 返回切换后是否处于已点赞状态
	ToggleReaction(ctx context.Context, targetID, targetKind, userID, reactionType string) (bool, error)
	CountReactions(ctx context.Context, targetID, reactionType string) (int64, error)
	HasUserReacted(ctx context.Context, targetID, userID, reactionType string) (bool, error)
	// Summaries 两次查询汇总多个目标的点赞，viewerID 为空时不返回 Mine
	Summaries(ctx context.Context, targetIDs []string, viewerID string) (map[string]ReactionSummary, error)
}

type reactionService struct {
	repo        repository.ReactionRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	feed        ChangePublisher
	dispatcher  *Dispatcher
	metrics     *metrics.MetricsCollector
}

func NewReactionService(
	repo repository.ReactionRepository,
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	feed ChangePublisher,
	dispatcher *Dispatcher,
	collector *metrics.MetricsCollector,
) ReactionService {
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &reactionService{
		repo:        repo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		feed:        feed,
		dispatcher:  dispatcher,
		metrics:     collector,
	}
}

func (s *reactionService) ToggleReaction(ctx context.Context, targetID, targetKind, userID, reactionType string) (bool, error) {
	if !model.ValidTargetKind(targetKind) {
		return false, apperr.Validation("unknown target kind %q", targetKind)
	}
	if !model.ValidReactionType(reactionType) {
		return false, apperr.Validation("unknown reaction type %q", reactionType)
	}
	if userID == "" {
		return false, apperr.Validation("user is required")
	}

	postID, ownerID, err := s.resolveTarget(ctx, targetID, targetKind)
	if err != nil {
		return false, err
	}

	applied, err := s.repo.Toggle(ctx, &model.Reaction{
		PostID:       postID,
		TargetID:     targetID,
		TargetKind:   targetKind,
		UserID:       userID,
		ReactionType: reactionType,
	})
	if err != nil {
		return false, apperr.Transient("toggle reaction", err)
	}
	s.metrics.ReactionToggled(targetKind, applied)

	op := realtime.OpDelete
	if applied {
		op = realtime.OpInsert
		s.dispatcher.Emit(events.Event{
			Type:     events.TypeReactionApplied,
			ActorID:  userID,
			OwnerID:  ownerID,
			PostID:   postID,
			TargetID: targetID,
		})
	}
	publishChange(ctx, s.feed, realtime.Change{PostID: postID, Table: "reactions", Op: op, RowID: targetID})

	return applied, nil
}

// resolveTarget 返回目标所属帖子与内容作者
func (s *reactionService) resolveTarget(ctx context.Context, targetID, targetKind string) (string, string, error) {
	if targetKind == model.TargetPost {
		post, err := s.postRepo.GetByID(ctx, targetID)
		if err != nil {
			return "", "", apperr.FromStore("post not found", err)
		}
		return post.ID, post.AuthorID, nil
	}
	comment, err := s.commentRepo.GetByID(ctx, targetID)
	if err != nil {
		return "", "", apperr.FromStore("comment not found", err)
	}
	return comment.PostID, comment.AuthorID, nil
}

func (s *reactionService) CountReactions(ctx context.Context, targetID, reactionType string) (int64, error) {
	if !model.ValidReactionType(reactionType) {
		return 0, apperr.Validation("unknown reaction type %q", reactionType)
	}
	n, err := s.repo.Count(ctx, targetID, reactionType)
	if err != nil {
		return 0, apperr.Transient("count reactions", err)
	}
	return n, nil
}

func (s *reactionService) HasUserReacted(ctx context.Context, targetID, userID, reactionType string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ok, err := s.repo.Exists(ctx, targetID, userID, reactionType)
	if err != nil {
		return false, apperr.Transient("check reaction", err)
	}
	return ok, nil
}

func (s *reactionService) Summaries(ctx context.Context, targetIDs []string, viewerID string) (map[string]ReactionSummary, error) {
	result := make(map[string]ReactionSummary, len(targetIDs))
	for _, id := range targetIDs {
		result[id] = ReactionSummary{Counts: map[string]int64{}}
	}
	if len(targetIDs) == 0 {
		return result, nil
	}

	counts, err := s.repo.CountByTargets(ctx, targetIDs)
	if err != nil {
		return nil, apperr.Transient("summarize reactions", err)
	}
	for _, c := range counts {
		if sum, ok := result[c.TargetID]; ok {
			sum.Counts[c.ReactionType] = c.Total
		}
	}

	if viewerID == "" {
		return result, nil
	}
	mine, err := s.repo.ListByUser(ctx, targetIDs, viewerID)
	if err != nil {
		return nil, apperr.Transient("summarize reactions", err)
	}
	for _, r := range mine {
		if sum, ok := result[r.TargetID]; ok {
			sum.Mine = append(sum.Mine, r.ReactionType)
			result[r.TargetID] = sum
		}
	}
	return result, nil
}
