package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/repository"
	"farm_community/internal/pkg/apperr"
	"farm_community/internal/pkg/events"
	"farm_community/internal/pkg/uploader"
	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"
	"farm_community/pkg/utils"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	maxTags      = 10
	maxTagLength = 32
	maxTitleLen  = 200
)

type PostService interface {
	CreatePost(ctx context.Context, authorID string, in CreatePostInput) (*model.Post, []AttachmentFailure, error)
	UpdatePost(ctx context.Context, id, callerID string, patch PostPatch) (*model.Post, error)
	DeletePost(ctx context.Context, id, callerID string) error
	IncrementCommentCount(ctx context.Context, id string, delta int) error
	GetPost(ctx context.Context, id string) (*PostDetail, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, int64, error)
	AddAttachments(ctx context.Context, id, callerID string, files []FileInput) ([]model.Attachment, []AttachmentFailure, error)
}

// PostOptions 上传相关参数
type PostOptions struct {
	UploadConcurrency int
	MaxUploadBytes    int64
}

type postService struct {
	repo       repository.PostRepository
	views      repository.ViewRepository
	uploader   uploader.Uploader
	dispatcher *Dispatcher
	feed       ChangePublisher
	metrics    *metrics.MetricsCollector
	opts       PostOptions
}

func NewPostService(
	repo repository.PostRepository,
	views repository.ViewRepository,
	up uploader.Uploader,
	dispatcher *Dispatcher,
	feed ChangePublisher,
	collector *metrics.MetricsCollector,
	opts PostOptions,
) PostService {
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 5
	}
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &postService{
		repo:       repo,
		views:      views,
		uploader:   up,
		dispatcher: dispatcher,
		feed:       feed,
		metrics:    collector,
		opts:       opts,
	}
}

func (s *postService) CreatePost(ctx context.Context, authorID string, in CreatePostInput) (*model.Post, []AttachmentFailure, error) {
	if authorID == "" {
		return nil, nil, apperr.Validation("author is required")
	}
	title, err := cleanTitle(in.Title)
	if err != nil {
		return nil, nil, err
	}
	body := utils.Sanitize(in.Body)
	if body == "" {
		return nil, nil, apperr.Validation("body is required")
	}
	category, err := NormalizeCategory(in.Category)
	if err != nil {
		return nil, nil, err
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return nil, nil, err
	}

	post := &model.Post{
		AuthorID: authorID,
		Title:    title,
		Body:     body,
		Category: category,
		Tags:     pq.StringArray(tags),
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, nil, apperr.Transient("create post", err)
	}
	s.metrics.PostCreated()

	// 附件失败不回滚帖子，作为警告返回
	attachments, failures := s.upload(ctx, post.ID, in.Files)
	post.Attachments = attachments

	s.dispatcher.Emit(events.Event{Type: events.TypePostCreated, ActorID: authorID, OwnerID: authorID, PostID: post.ID})
	return post, failures, nil
}

func (s *postService) UpdatePost(ctx context.Context, id, callerID string, patch PostPatch) (*model.Post, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("post not found", err)
	}
	if post.AuthorID != callerID {
		return nil, apperr.Authorization("only the author can edit this post")
	}

	fields := make(map[string]interface{})
	if patch.Title != nil {
		title, err := cleanTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		fields["title"] = title
	}
	if patch.Body != nil {
		body := utils.Sanitize(*patch.Body)
		if body == "" {
			return nil, apperr.Validation("body is required")
		}
		fields["body"] = body
	}
	if patch.Category != nil {
		category, err := NormalizeCategory(*patch.Category)
		if err != nil {
			return nil, err
		}
		fields["category"] = category
	}
	if patch.Tags != nil {
		tags, err := NormalizeTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		fields["tags"] = pq.StringArray(tags)
	}
	if len(fields) == 0 {
		return post, nil
	}

	if err := s.repo.Updates(ctx, id, fields); err != nil {
		return nil, apperr.Transient("update post", err)
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("post not found", err)
	}
	publishChange(ctx, s.feed, realtime.Change{PostID: id, Table: "posts", Op: realtime.OpUpdate, RowID: id})
	return updated, nil
}

func (s *postService) DeletePost(ctx context.Context, id, callerID string) error {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperr.FromStore("post not found", err)
	}
	if post.AuthorID != callerID {
		return apperr.Authorization("only the author can delete this post")
	}

	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperr.Transient("delete post", err)
	}
	if n == 0 {
		return apperr.NotFound("post not found")
	}
	publishChange(ctx, s.feed, realtime.Change{PostID: id, Table: "posts", Op: realtime.OpDelete, RowID: id})
	return nil
}

func (s *postService) IncrementCommentCount(ctx context.Context, id string, delta int) error {
	if err := s.repo.IncrementCommentCount(ctx, id, delta); err != nil {
		return apperr.Transient("increment comment count", err)
	}
	return nil
}

func (s *postService) GetPost(ctx context.Context, id string) (*PostDetail, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("post not found", err)
	}
	detail := &PostDetail{Post: *post}
	if s.views != nil {
		n, err := s.views.CountByPost(ctx, id)
		if err != nil {
			logger.Log.Warn("count views", zap.String("post", id), zap.Error(err))
		}
		detail.ViewCount = n
	}
	return detail, nil
}

func (s *postService) ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, int64, error) {
	q := repository.PostQuery{AuthorID: filter.AuthorID}
	if filter.Category != "" {
		category, err := NormalizeCategory(filter.Category)
		if err != nil {
			return nil, 0, err
		}
		q.Category = category
	}
	q.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))

	offset, limit := filter.GetPageOffset()
	posts, total, err := s.repo.List(ctx, q, offset, limit)
	if err != nil {
		return nil, 0, apperr.Transient("list posts", err)
	}
	return posts, total, nil
}

func (s *postService) AddAttachments(ctx context.Context, id, callerID string, files []FileInput) ([]model.Attachment, []AttachmentFailure, error) {
	if len(files) == 0 {
		return nil, nil, apperr.Validation("no files uploaded")
	}
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperr.FromStore("post not found", err)
	}
	if post.AuthorID != callerID {
		return nil, nil, apperr.Authorization("only the author can add attachments")
	}

	attachments, failures := s.upload(ctx, id, files)
	return attachments, failures, nil
}

type uploadResult struct {
	attachment *model.Attachment
	failure    *AttachmentFailure
}

// upload 并发上传附件并写入元数据，结果保持输入顺序
func (s *postService) upload(ctx context.Context, postID string, files []FileInput) ([]model.Attachment, []AttachmentFailure) {
	if len(files) == 0 {
		return nil, nil
	}

	results := make([]uploadResult, len(files))

	var wg sync.WaitGroup
	// 限制并发数，避免过多协程
	sem := make(chan struct{}, s.opts.UploadConcurrency)

	for i, f := range files {
		wg.Add(1)
		go func(index int, f FileInput) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			a, err := s.uploadOne(ctx, postID, f)
			s.metrics.AttachmentUploaded(err == nil)
			if err != nil {
				logger.Log.Warn("attachment upload failed",
					zap.String("post", postID), zap.String("file", f.Name), zap.Error(err))
				results[index] = uploadResult{failure: &AttachmentFailure{FileName: f.Name, Reason: err.Error()}}
				return
			}
			// 直接按索引赋值，保证顺序
			results[index] = uploadResult{attachment: a}
		}(i, f)
	}
	wg.Wait()

	var (
		attachments []model.Attachment
		failures    []AttachmentFailure
	)
	for _, r := range results {
		if r.attachment != nil {
			attachments = append(attachments, *r.attachment)
		} else if r.failure != nil {
			failures = append(failures, *r.failure)
		}
	}
	return attachments, failures
}

func (s *postService) uploadOne(ctx context.Context, postID string, f FileInput) (*model.Attachment, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	if s.opts.MaxUploadBytes > 0 && f.Size > s.opts.MaxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", s.opts.MaxUploadBytes)
	}
	if f.Open == nil {
		return nil, fmt.Errorf("file content missing")
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	url, err := s.uploader.Upload(ctx, uploader.ObjectKey("community/"+postID, f.Name), rc, f.Size, f.ContentType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	a := &model.Attachment{
		PostID:   postID,
		FileURL:  url,
		FileType: f.ContentType,
		FileName: f.Name,
		Size:     f.Size,
	}
	if err := s.repo.CreateAttachment(ctx, a); err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	return a, nil
}

func cleanTitle(raw string) (string, error) {
	title := utils.Sanitize(raw)
	if title == "" {
		return "", apperr.Validation("title is required")
	}
	if len([]rune(title)) > maxTitleLen {
		return "", apperr.Validation("title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

// NormalizeCategory 空值归为 general，未知分类返回校验错误
func NormalizeCategory(raw string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(raw))
	if c == "" {
		return model.CategoryGeneral, nil
	}
	if !model.ValidCategory(c) {
		return "", apperr.Validation("unknown category %q", raw)
	}
	return c, nil
}

// NormalizeTags 去空白、转小写、去重，保留首次出现顺序
func NormalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		if len([]rune(t)) > maxTagLength {
			return nil, apperr.Validation("tag %q is longer than %d characters", t, maxTagLength)
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > maxTags {
		return nil, apperr.Validation("at most %d tags are allowed", maxTags)
	}
	return tags, nil
}
