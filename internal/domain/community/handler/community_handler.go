package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/service"
	"farm_community/internal/pkg/middleware"
	"farm_community/pkg/response"
	"farm_community/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookie = "community_sid"
	sessionHeader = "X-Session-ID"
)

type CommunityHandler struct {
	posts     service.PostService
	comments  service.CommentService
	reactions service.ReactionService
	views     service.ViewService
	notifier  *realtime.Notifier
	live      *liveOptions
}

func NewCommunityHandler(
	posts service.PostService,
	comments service.CommentService,
	reactions service.ReactionService,
	views service.ViewService,
	notifier *realtime.Notifier,
	allowedOrigins []string,
) *CommunityHandler {
	return &CommunityHandler{
		posts:     posts,
		comments:  comments,
		reactions: reactions,
		views:     views,
		notifier:  notifier,
		live:      newLiveOptions(allowedOrigins),
	}
}

// CreatePostInput 发帖输入 (JSON 或 multipart 表单)
type CreatePostInput struct {
	Title    string   `json:"title" form:"title"`
	Body     string   `json:"body" form:"body"`
	Category string   `json:"category" form:"category"`
	Tags     []string `json:"tags" form:"tags"`
}

// CommentInput 评论输入
type CommentInput struct {
	Body     string  `json:"body" binding:"required"`
	ParentID *string `json:"parentId"`
}

// ReactionInput 点赞输入
type ReactionInput struct {
	TargetID   string `json:"targetId" binding:"required"`
	TargetKind string `json:"targetKind" binding:"required,oneof=post comment"`
	Type       string `json:"type" binding:"required,oneof=like helpful"`
}

// ReactionCountQuery 点赞数查询
type ReactionCountQuery struct {
	TargetID string `form:"targetId" binding:"required"`
	Type     string `form:"type" binding:"required,oneof=like helpful"`
}

// CreatePostResult 发帖结果，附件失败时 warnings 非空
type CreatePostResult struct {
	Post     interface{}                 `json:"post"`
	Warnings []service.AttachmentFailure `json:"warnings,omitempty"`
}

// ListPosts 帖子列表
// @Summary 社区帖子列表 (最新在前)
// @Tags Community
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Param category query string false "分类"
// @Param tag query string false "标签"
// @Success 200 {object} utils.PageResult
// @Router /community/posts [get]
func (h *CommunityHandler) ListPosts(c *gin.Context) {
	var filter service.PostFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	filter.GetPageOffset() // 修正非法分页参数，便于回显

	posts, total, err := h.posts.ListPosts(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, utils.PageResult{
		List:  posts,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// CreatePost 发帖
// @Summary 发帖，multipart 时附件字段为 files
// @Tags Community
// @Accept json,mpfd
// @Produce json
// @Router /community/posts [post]
func (h *CommunityHandler) CreatePost(c *gin.Context) {
	var input CreatePostInput
	var files []service.FileInput

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&input); err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Invalid form data")
			return
		}
		files = fileInputs(form.File["files"])
	} else if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _ := middleware.CurrentUser(c)
	post, warnings, err := h.posts.CreatePost(c.Request.Context(), userID, service.CreatePostInput{
		Title:    input.Title,
		Body:     input.Body,
		Category: input.Category,
		Tags:     input.Tags,
		Files:    files,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, CreatePostResult{Post: post, Warnings: warnings})
}

// GetPost 帖子详情，同时记录一次浏览
// @Summary 帖子详情
// @Tags Community
// @Param id path string true "帖子ID"
// @Router /community/posts/{id} [get]
func (h *CommunityHandler) GetPost(c *gin.Context) {
	id := c.Param("id")

	detail, err := h.posts.GetPost(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	viewerID, _ := middleware.CurrentUser(c)
	h.views.RecordView(c.Request.Context(), id, viewerID, sessionID(c))

	response.Success(c, detail)
}

// UpdatePost 修改帖子 (仅作者)
// @Summary 修改帖子
// @Tags Community
// @Param id path string true "帖子ID"
// @Param input body service.PostPatch true "修改内容"
// @Router /community/posts/{id} [patch]
func (h *CommunityHandler) UpdatePost(c *gin.Context) {
	var patch service.PostPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _ := middleware.CurrentUser(c)
	post, err := h.posts.UpdatePost(c.Request.Context(), c.Param("id"), userID, patch)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, post)
}

// DeletePost 删除帖子 (仅作者)
// @Summary 删除帖子
// @Tags Community
// @Param id path string true "帖子ID"
// @Router /community/posts/{id} [delete]
func (h *CommunityHandler) DeletePost(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	if err := h.posts.DeletePost(c.Request.Context(), c.Param("id"), userID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, "success")
}

// AddAttachments 编辑时追加附件
func (h *CommunityHandler) AddAttachments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Invalid form data")
		return
	}

	userID, _ := middleware.CurrentUser(c)
	added, warnings, err := h.posts.AddAttachments(c.Request.Context(), c.Param("id"), userID, fileInputs(form.File["files"]))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"attachments": added, "warnings": warnings})
}

// GetComments 评论树
// @Summary 获取帖子评论树
// @Tags Community
// @Param id path string true "帖子ID"
// @Router /community/posts/{id}/comments [get]
func (h *CommunityHandler) GetComments(c *gin.Context) {
	viewerID, _ := middleware.CurrentUser(c)
	threads, err := h.comments.LoadTreeForViewer(c.Request.Context(), c.Param("id"), viewerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, threads)
}

// AddComment 发表评论或回复
// @Summary 发表评论
// @Tags Community
// @Param id path string true "帖子ID"
// @Param input body CommentInput true "评论内容"
// @Router /community/posts/{id}/comments [post]
func (h *CommunityHandler) AddComment(c *gin.Context) {
	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _ := middleware.CurrentUser(c)
	comment, err := h.comments.SubmitComment(c.Request.Context(), c.Param("id"), userID, input.Body, input.ParentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, comment)
}

// ToggleReaction 点赞/取消点赞
// @Summary 切换点赞
// @Tags Community
// @Param input body ReactionInput true "点赞目标"
// @Router /community/reactions [post]
func (h *CommunityHandler) ToggleReaction(c *gin.Context) {
	var input ReactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID, _ := middleware.CurrentUser(c)
	applied, err := h.reactions.ToggleReaction(c.Request.Context(), input.TargetID, input.TargetKind, userID, input.Type)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"applied": applied})
}

// CountReactions 点赞数及当前用户是否已点
// @Summary 点赞数
// @Tags Community
// @Router /community/reactions/count [get]
func (h *CommunityHandler) CountReactions(c *gin.Context) {
	var q ReactionCountQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	ctx := c.Request.Context()
	count, err := h.reactions.CountReactions(ctx, q.TargetID, q.Type)
	if err != nil {
		response.FromError(c, err)
		return
	}

	userID, _ := middleware.CurrentUser(c)
	reacted, err := h.reactions.HasUserReacted(ctx, q.TargetID, userID, q.Type)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"count": count, "reacted": reacted})
}

// sessionID 取浏览会话 ID，没有时下发新的 cookie
func sessionID(c *gin.Context) string {
	if sid := c.GetHeader(sessionHeader); sid != "" {
		return sid
	}
	if sid, err := c.Cookie(sessionCookie); err == nil && sid != "" {
		return sid
	}
	sid := uuid.New().String()
	c.SetCookie(sessionCookie, sid, 0, "/", "", false, true)
	return sid
}

func fileInputs(headers []*multipart.FileHeader) []service.FileInput {
	files := make([]service.FileInput, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.FileInput{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}
