package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/repository"
	profileModel "farm_community/internal/domain/profile/model"
	"farm_community/pkg/cache"
	"farm_community/pkg/metrics"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// memoryStore 内存版仓储，语义与 Postgres 实现一致 (唯一索引、级联删除、计数自增)
type memoryStore struct {
	mu          sync.Mutex
	seq         int64
	base        time.Time
	posts       map[string]*model.Post
	attachments []model.Attachment
	comments    []model.Comment
	reactions   map[string]model.Reaction
	views       []model.View
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		base:      time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		posts:     make(map[string]*model.Post),
		reactions: make(map[string]model.Reaction),
	}
}

func (m *memoryStore) now() time.Time {
	m.seq++
	return m.base.Add(time.Duration(m.seq) * time.Millisecond)
}

func reactionKey(userID, targetID, reactionType string) string {
	return userID + "|" + targetID + "|" + reactionType
}

type memPostRepo struct{ *memoryStore }

func (r memPostRepo) Create(ctx context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	post.CreatedAt = r.now()
	post.UpdatedAt = post.CreatedAt
	cp := *post
	cp.Attachments = nil
	r.posts[post.ID] = &cp
	return nil
}

func (r memPostRepo) GetByID(ctx context.Context, id string) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	for _, a := range r.attachments {
		if a.PostID == id {
			cp.Attachments = append(cp.Attachments, a)
		}
	}
	return &cp, nil
}

func (r memPostRepo) List(ctx context.Context, q repository.PostQuery, offset, limit int) ([]model.Post, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Post
	for _, p := range r.posts {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.AuthorID != "" && p.AuthorID != q.AuthorID {
			continue
		}
		if q.Tag != "" && !contains(p.Tags, q.Tag) {
			continue
		}
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	total := int64(len(list))
	if offset >= len(list) {
		return []model.Post{}, total, nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end], total, nil
}

func (r memPostRepo) Updates(ctx context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "title":
			p.Title = v.(string)
		case "body":
			p.Body = v.(string)
		case "category":
			p.Category = v.(string)
		case "tags":
			p.Tags = v.(pq.StringArray)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	p.UpdatedAt = r.now()
	return nil
}

func (r memPostRepo) Delete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return 0, nil
	}
	delete(r.posts, id)

	// 级联删除
	var comments []model.Comment
	for _, c := range r.comments {
		if c.PostID != id {
			comments = append(comments, c)
		}
	}
	r.comments = comments
	for k, re := range r.reactions {
		if re.PostID == id {
			delete(r.reactions, k)
		}
	}
	return 1, nil
}

func (r memPostRepo) IncrementCommentCount(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[id]; ok {
		p.CommentCount += int64(delta)
	}
	return nil
}

func (r memPostRepo) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New().String()
	a.CreatedAt = r.now()
	r.attachments = append(r.attachments, *a)
	return nil
}

type memCommentRepo struct{ *memoryStore }

func (r memCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = r.now()
	r.comments = append(r.comments, *c)
	return nil
}

func (r memCommentRepo) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.comments {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memCommentRepo) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Comment
	for _, c := range r.comments {
		if c.PostID == postID {
			list = append(list, c)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

type memReactionRepo struct{ *memoryStore }

func (r memReactionRepo) Toggle(ctx context.Context, re *model.Reaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reactionKey(re.UserID, re.TargetID, re.ReactionType)
	delta := int64(1)
	applied := true
	if _, ok := r.reactions[key]; ok {
		delete(r.reactions, key)
		delta, applied = -1, false
	} else {
		re.ID = uuid.New().String()
		re.CreatedAt = r.now()
		r.reactions[key] = *re
	}
	if re.TargetKind == model.TargetPost {
		if p, ok := r.posts[re.TargetID]; ok {
			p.ReactionCount += delta
		}
	}
	return applied, nil
}

func (r memReactionRepo) Count(ctx context.Context, targetID, reactionType string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, re := range r.reactions {
		if re.TargetID == targetID && re.ReactionType == reactionType {
			n++
		}
	}
	return n, nil
}

func (r memReactionRepo) Exists(ctx context.Context, targetID, userID, reactionType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.reactions[reactionKey(userID, targetID, reactionType)]
	return ok, nil
}

func (r memReactionRepo) CountByTargets(ctx context.Context, targetIDs []string) ([]repository.ReactionCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[[2]string]int64)
	for _, re := range r.reactions {
		if contains(targetIDs, re.TargetID) {
			counts[[2]string{re.TargetID, re.ReactionType}]++
		}
	}
	var rows []repository.ReactionCount
	for k, n := range counts {
		rows = append(rows, repository.ReactionCount{TargetID: k[0], ReactionType: k[1], Total: n})
	}
	return rows, nil
}

func (r memReactionRepo) ListByUser(ctx context.Context, targetIDs []string, userID string) ([]model.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Reaction
	for _, re := range r.reactions {
		if re.UserID == userID && contains(targetIDs, re.TargetID) {
			list = append(list, re)
		}
	}
	return list, nil
}

type memViewRepo struct {
	*memoryStore
	fail bool
}

func (r *memViewRepo) Create(ctx context.Context, v *model.View) error {
	if r.fail {
		return errors.New("views table unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = uuid.New().String()
	v.CreatedAt = r.now()
	r.views = append(r.views, *v)
	return nil
}

func (r *memViewRepo) CountByPost(ctx context.Context, postID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, v := range r.views {
		if v.PostID == postID {
			n++
		}
	}
	return n, nil
}

// staticAuthors 固定作者目录，记录调用次数以验证批量查询
type staticAuthors struct {
	mu      sync.Mutex
	infos   map[string]profileModel.AuthorInfo
	calls   int
	lastIDs []string
}

func (a *staticAuthors) Lookup(ctx context.Context, ids []string) (map[string]profileModel.AuthorInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastIDs = append([]string(nil), ids...)
	out := make(map[string]profileModel.AuthorInfo, len(ids))
	for _, id := range ids {
		if info, ok := a.infos[id]; ok {
			out[id] = info
		} else {
			out[id] = profileModel.UnknownAuthor(id)
		}
	}
	return out, nil
}

// recordingFeed 记录发布的变更
type recordingFeed struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (f *recordingFeed) Publish(ctx context.Context, ch realtime.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, ch)
	return nil
}

func (f *recordingFeed) tables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.changes {
		out = append(out, c.Table+":"+c.Op)
	}
	return out
}

// fakeUploader 内容为 "fail" 时上传失败
type fakeUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if string(b) == "fail" {
		return "", errors.New("bucket unavailable")
	}
	u.mu.Lock()
	u.keys = append(u.keys, key)
	u.mu.Unlock()
	return "https://cdn.example.com/" + key, nil
}

func file(name, content string) FileInput {
	return FileInput{
		Name:        name,
		ContentType: "image/jpeg",
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// testEnv 组装完整的社区服务
type testEnv struct {
	store     *memoryStore
	feed      *recordingFeed
	authors   *staticAuthors
	uploader  *fakeUploader
	viewRepo  *memViewRepo
	dedup     *cache.MemoryCache
	posts     PostService
	comments  CommentService
	reactions ReactionService
	views     ViewService
}

func newTestEnv() *testEnv {
	store := newMemoryStore()
	collector := metrics.NewMetricsCollector(prometheus.NewRegistry())
	env := &testEnv{
		store: store,
		feed:  &recordingFeed{},
		authors: &staticAuthors{infos: map[string]profileModel.AuthorInfo{
			"u1": {ID: "u1", DisplayName: "Ravi", Role: profileModel.RoleFarmer},
			"u2": {ID: "u2", DisplayName: "Dr. Mehta", Role: profileModel.RoleExpert},
			"u3": {ID: "u3", DisplayName: "Lena", Role: profileModel.RoleFarmer},
		}},
		uploader: &fakeUploader{},
		viewRepo: &memViewRepo{memoryStore: store},
		dedup:    cache.NewMemoryCache(),
	}

	dispatcher := NewDispatcher(nil, nil, nil)
	postRepo := memPostRepo{store}
	commentRepo := memCommentRepo{store}

	env.posts = NewPostService(postRepo, env.viewRepo, env.uploader, dispatcher, env.feed, collector,
		PostOptions{UploadConcurrency: 2, MaxUploadBytes: 1 << 20})
	env.reactions = NewReactionService(memReactionRepo{store}, postRepo, commentRepo, env.feed, dispatcher, collector)
	env.comments = NewCommentService(commentRepo, postRepo, env.posts, env.reactions, env.authors, env.feed, dispatcher, collector)
	env.views = NewViewService(env.viewRepo, env.dedup, time.Minute, collector)
	return env
}
