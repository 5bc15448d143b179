package handler

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"farm_community/internal/domain/community/service"
	"farm_community/internal/pkg/apperr"
	"farm_community/pkg/logger"
	"farm_community/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// 实时消息类型
const (
	LiveTree    = "tree"
	LiveDeleted = "deleted"
)

// LiveMessage 推送给客户端的消息
type LiveMessage struct {
	Type    string           `json:"type"`
	PostID  string           `json:"postId"`
	Threads []service.Thread `json:"threads,omitempty"`
}

type liveOptions struct {
	upgrader websocket.Upgrader
}

func newLiveOptions(allowedOrigins []string) *liveOptions {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return &liveOptions{upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}}
}

// latest 容量为 1 的最新值信箱，旧的未发送评论树被新的替换。
// 每次加载开始前取序号，晚开始的加载结果不会被早开始的覆盖。
type latest struct {
	ch   chan LiveMessage
	mu   sync.Mutex
	seq  uint64
	sent uint64
}

func newLatest() *latest {
	return &latest{ch: make(chan LiveMessage, 1)}
}

// ticket 在读取评论树之前调用
func (l *latest) ticket() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// offer 投递 ticket 对应的结果，过期结果丢弃
func (l *latest) offer(ticket uint64, m LiveMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ticket < l.sent {
		return
	}
	l.sent = ticket
	for {
		select {
		case l.ch <- m:
			return
		default:
			select {
			case <-l.ch:
			default:
			}
		}
	}
}

// Live 帖子评论树实时推送 (WebSocket)。
// 先订阅变更再读取当前评论树，此后每次评论或点赞变更推送新的完整评论树。
func (h *CommunityHandler) Live(c *gin.Context) {
	postID := c.Param("id")
	ctx := c.Request.Context()

	box := newLatest()
	sub, err := h.notifier.Subscribe(ctx, postID, func(ctx context.Context) error {
		ticket := box.ticket()
		threads, err := h.comments.LoadTree(ctx, postID)
		if apperr.IsNotFound(err) {
			box.offer(ticket, LiveMessage{Type: LiveDeleted, PostID: postID})
			return nil
		}
		if err != nil {
			return err
		}
		box.offer(ticket, LiveMessage{Type: LiveTree, PostID: postID, Threads: threads})
		return nil
	})
	if err != nil {
		logger.Log.Warn("live subscribe failed", zap.String("post", postID), zap.Error(err))
		response.FromError(c, apperr.Transient("subscription unavailable", err))
		return
	}
	defer sub.Unsubscribe()

	ticket := box.ticket()
	threads, err := h.comments.LoadTree(ctx, postID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	box.offer(ticket, LiveMessage{Type: LiveTree, PostID: postID, Threads: threads})

	conn, err := h.live.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		logger.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

// 读循环只处理控制帧，用于发现客户端断开
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// 唯一的写协程
	for {
		select {
		case <-closed:
			return
		case <-sub.Done():
			closeWith(conn, websocket.CloseGoingAway, "subscription dropped, resubscribe")
			return
		case msg := <-box.ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.Type == LiveDeleted {
				closeWith(conn, websocket.CloseNormalClosure, "post deleted")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
