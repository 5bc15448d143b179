package service

import (
	"context"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/repository"
	"farm_community/internal/pkg/apperr"
	"farm_community/internal/pkg/events"
	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"
	"farm_community/pkg/utils"

	"go.uber.org/zap"
)

const previewRunes = 60

type CommentService interface {
	// LoadTree 一次查询全部评论，一次批量解析作者，在内存中组装
	LoadTree(ctx context.Context, postID string) ([]Thread, error)
	// LoadTreeForViewer 在评论树上附加点赞汇总及当前用户的点赞状态
	LoadTreeForViewer(ctx context.Context, postID, viewerID string) ([]Thread, error)
	SubmitComment(ctx context.Context, postID, authorID, body string, parentID *string) (*model.Comment, error)
}

type commentService struct {
	repo       repository.CommentRepository
	postRepo   repository.PostRepository
	posts      PostService
	reactions  ReactionService
	authors    AuthorDirectory
	feed       ChangePublisher
	dispatcher *Dispatcher
	metrics    *metrics.MetricsCollector
}

func NewCommentService(
	repo repository.CommentRepository,
	postRepo repository.PostRepository,
	posts PostService,
	reactions ReactionService,
	authors AuthorDirectory,
	feed ChangePublisher,
	dispatcher *Dispatcher,
	collector *metrics.MetricsCollector,
) CommentService {
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &commentService{
		repo:       repo,
		postRepo:   postRepo,
		posts:      posts,
		reactions:  reactions,
		authors:    authors,
		feed:       feed,
		dispatcher: dispatcher,
		metrics:    collector,
	}
}

func (s *commentService) LoadTree(ctx context.Context, postID string) ([]Thread, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, apperr.FromStore("post not found", err)
	}

	comments, err := s.repo.ListByPost(ctx, postID)
	if err != nil {
		return nil, apperr.Transient("load comments", err)
	}

	authors, err := s.authors.Lookup(ctx, distinctAuthors(comments))
	if err != nil {
		return nil, err
	}
	return BuildTree(comments, authors), nil
}

func (s *commentService) LoadTreeForViewer(ctx context.Context, postID, viewerID string) ([]Thread, error) {
	threads, err := s.LoadTree(ctx, postID)
	if err != nil || s.reactions == nil || len(threads) == 0 {
		return threads, err
	}

	var ids []string
	for _, t := range threads {
		ids = append(ids, t.ID)
		for _, r := range t.Replies {
			ids = append(ids, r.ID)
		}
	}
	summaries, err := s.reactions.Summaries(ctx, ids, viewerID)
	if err != nil {
		// 点赞汇总只是装饰，失败时返回不带汇总的树
		logger.Log.Warn("load reaction summaries", zap.String("post", postID), zap.Error(err))
		return threads, nil
	}

	for i := range threads {
		threads[i].Reactions = summaryFor(summaries, threads[i].ID)
		for j := range threads[i].Replies {
			threads[i].Replies[j].Reactions = summaryFor(summaries, threads[i].Replies[j].ID)
		}
	}
	return threads, nil
}

func (s *commentService) SubmitComment(ctx context.Context, postID, authorID, body string, parentID *string) (*model.Comment, error) {
	body = utils.Sanitize(body)
	if body == "" {
		return nil, apperr.Validation("comment body is required")
	}
	if authorID == "" {
		return nil, apperr.Validation("author is required")
	}

	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.FromStore("post not found", err)
	}

	var parent *model.Comment
	if parentID != nil && *parentID != "" {
		parent, err = s.repo.GetByID(ctx, *parentID)
		if err != nil {
			return nil, apperr.FromStore("parent comment not found", err)
		}
		// 父评论必须属于同一个帖子
		if parent.PostID != postID {
			return nil, apperr.Validation("parent comment belongs to another post")
		}
	}

	comment := &model.Comment{
		PostID:           postID,
		AuthorID:         authorID,
		Body:             body,
		IsExpertResponse: s.isExpert(ctx, authorID),
	}
	if parent != nil {
		pid := parent.ID
		comment.ParentID = &pid
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, apperr.Transient("create comment", err)
	}
	s.metrics.CommentCreated(parent != nil)

	// 计数与插入不在同一事务，失败只记录日志，下次全量加载时以评论行为准
	if err := s.posts.IncrementCommentCount(ctx, postID, 1); err != nil {
		logger.Log.Warn("increment comment count", zap.String("post", postID), zap.Error(err))
	}
	publishChange(ctx, s.feed, realtime.Change{PostID: postID, Table: "comments", Op: realtime.OpInsert, RowID: comment.ID})

	s.dispatcher.Emit(events.Event{
		Type:     events.TypeCommentCreated,
		ActorID:  authorID,
		OwnerID:  post.AuthorID,
		PostID:   postID,
		TargetID: comment.ID,
		Expert:   comment.IsExpertResponse,
	})
	s.notifyRecipient(post, parent, comment)

	return comment, nil
}

func (s *commentService) isExpert(ctx context.Context, authorID string) bool {
	infos, err := s.authors.Lookup(ctx, []string{authorID})
	if err != nil {
		logger.Log.Warn("resolve comment author", zap.String("author", authorID), zap.Error(err))
		return false
	}
	return infos[authorID].IsExpert()
}

// notifyRecipient 回复通知父评论作者，一级评论通知帖子作者；不通知自己
func (s *commentService) notifyRecipient(post *model.Post, parent, comment *model.Comment) {
	recipient, title := post.AuthorID, "New comment on your post"
	if parent != nil {
		recipient, title = parent.AuthorID, "New reply to your comment"
	}
	if recipient == comment.AuthorID {
		return
	}
	s.dispatcher.Notify(recipient, title, preview(comment.Body), map[string]string{
		"postId":    post.ID,
		"commentId": comment.ID,
	})
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewRunes {
		return body
	}
	return string(r[:previewRunes]) + "..."
}

func summaryFor(summaries map[string]ReactionSummary, id string) *ReactionSummary {
	if sum, ok := summaries[id]; ok {
		return &sum
	}
	return &ReactionSummary{Counts: map[string]int64{}}
}
