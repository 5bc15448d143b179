package model

import (
	baseModel "farm_community/pkg/model"

	"github.com/lib/pq"
)

// 帖子分类
const (
	CategoryGeneral      = "general"
	CategoryQuestion     = "question"
	CategoryCropAdvice   = "crop_advice"
	CategoryPestDisease  = "pest_disease"
	CategoryMarket       = "market"
	CategoryWeather      = "weather"
	CategorySuccessStory = "success_story"
)

var categories = map[string]struct{}{
	CategoryGeneral:      {},
	CategoryQuestion:     {},
	CategoryCropAdvice:   {},
	CategoryPestDisease:  {},
	CategoryMarket:       {},
	CategoryWeather:      {},
	CategorySuccessStory: {},
}

// ValidCategory 判断分类是否合法
func ValidCategory(c string) bool {
	_, ok := categories[c]
	return ok
}

// 点赞目标与类型
const (
	TargetPost    = "post"
	TargetComment = "comment"

	ReactionLike    = "like"
	ReactionHelpful = "helpful"
)

// ReactionTypes 按展示顺序排列的点赞类型
var ReactionTypes = []string{ReactionLike, ReactionHelpful}

func ValidReactionType(t string) bool {
	return t == ReactionLike || t == ReactionHelpful
}

func ValidTargetKind(k string) bool {
	return k == TargetPost || k == TargetComment
}

// Post 讨论帖
type Post struct {
	baseModel.BaseModel
	AuthorID      string         `gorm:"type:uuid;index;not null" json:"authorId"`
	Title         string         `gorm:"size:200;not null" json:"title"`
	Body          string         `gorm:"type:text;not null" json:"body"`
	Category      string         `gorm:"size:32;index;default:'general'" json:"category"`
	Tags          pq.StringArray `gorm:"type:text[]" json:"tags"`
	CommentCount  int64          `gorm:"default:0" json:"commentCount"`  // 反规范化计数，最终一致
	ReactionCount int64          `gorm:"default:0" json:"reactionCount"` // 仅统计帖子本身的点赞

	// 关联
	Attachments []Attachment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// Attachment 帖子附件，文件存放在对象存储
type Attachment struct {
	baseModel.AppendOnlyModel
	PostID   string `gorm:"type:uuid;index;not null" json:"postId"`
	FileURL  string `json:"fileUrl"`
	FileType string `gorm:"size:128" json:"fileType"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// Comment 评论，创建后不再修改，随帖子级联删除
type Comment struct {
	baseModel.AppendOnlyModel
	PostID           string  `gorm:"type:uuid;index;not null" json:"postId"`
	AuthorID         string  `gorm:"type:uuid;not null" json:"authorId"`
	Body             string  `gorm:"type:text;not null" json:"body"`
	ParentID         *string `gorm:"column:parent_comment_id;type:uuid" json:"parentId"` // 为空表示一级评论
	IsExpertResponse bool    `gorm:"default:false" json:"isExpertResponse"`
}

// Reaction 点赞，(user_id, target_id, reaction_type) 唯一
type Reaction struct {
	baseModel.AppendOnlyModel
	PostID       string `gorm:"type:uuid;index;not null" json:"postId"` // 所属帖子，用于实时推送过滤
	TargetID     string `gorm:"type:uuid;uniqueIndex:uk_reaction;not null" json:"targetId"`
	TargetKind   string `gorm:"size:16;not null" json:"targetKind"`
	UserID       string `gorm:"type:uuid;uniqueIndex:uk_reaction;not null" json:"userId"`
	ReactionType string `gorm:"size:16;uniqueIndex:uk_reaction;not null" json:"reactionType"`
}

// View 浏览记录，只追加
type View struct {
	baseModel.AppendOnlyModel
	PostID    string  `gorm:"type:uuid;index;not null" json:"postId"`
	ViewerID  *string `gorm:"type:uuid" json:"viewerId"` // 匿名浏览为空
	SessionID string  `gorm:"size:64" json:"sessionId"`
}
