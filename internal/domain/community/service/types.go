package service

import (
	"context"
	"io"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/realtime"
	profileModel "farm_community/internal/domain/profile/model"
	"farm_community/pkg/utils"
)

// AuthorDirectory 批量解析作者展示信息
type AuthorDirectory interface {
	Lookup(ctx context.Context, ids []string) (map[string]profileModel.AuthorInfo, error)
}

// ChangePublisher 提交后广播变更，驱动实时订阅刷新
type ChangePublisher interface {
	Publish(ctx context.Context, ch realtime.Change) error
}

// FileInput 待上传的附件
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// AttachmentFailure 上传失败的附件，帖子本身已保存
type AttachmentFailure struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// CreatePostInput 发帖参数
type CreatePostInput struct {
	Title    string
	Body     string
	Category string
	Tags     []string
	Files    []FileInput
}

// PostPatch 可修改字段，nil 表示不修改
type PostPatch struct {
	Title    *string   `json:"title"`
	Body     *string   `json:"body"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
}

// PostFilter 帖子列表查询
type PostFilter struct {
	utils.Pagination
	Category string `form:"category"`
	Tag      string `form:"tag"`
	AuthorID string `form:"author"`
}

// PostDetail 帖子详情
type PostDetail struct {
	model.Post
	ViewCount int64 `json:"viewCount"`
}

// ReactionSummary 单个目标的点赞汇总
type ReactionSummary struct {
	Counts map[string]int64 `json:"counts"`
	Mine   []string         `json:"mine,omitempty"` // 当前用户已点的类型
}

// CommentView 带作者信息的评论
type CommentView struct {
	model.Comment
	Author    profileModel.AuthorInfo `json:"author"`
	Reactions *ReactionSummary        `json:"reactions,omitempty"`
}

// Thread 一级评论及其下全部回复 (按创建时间升序)
type Thread struct {
	CommentView
	Replies []CommentView `json:"replies"`
}
