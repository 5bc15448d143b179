package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"farm_community/pkg/utils"

	"github.com/google/uuid"
)

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	users := flag.Int("users", 1000, "concurrent users")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET is required to sign test tokens")
		os.Exit(1)
	}

	tokens := make([]string, *users)
	for i := range tokens {
		tok, err := utils.GenerateToken(secret, uuid.NewString(), "farmer", time.Hour)
		if err != nil {
			fmt.Printf("签发 token 失败: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = tok
	}

	// 1. 发帖
	postID, err := createPost(*baseURL, tokens[0])
	if err != nil {
		fmt.Printf("发帖失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("开始压测：%d 个用户并发点赞与评论 (PostID: %s)...\n", *users, postID)

	// 2. 并发点赞 + 评论，每个用户各一次
	start := time.Now()
	var failed atomic.Int64
	run(tokens, func(i int, tok string) {
		if _, err := toggleLike(*baseURL, tok, postID); err != nil {
			failed.Add(1)
		}
		if err := comment(*baseURL, tok, postID, fmt.Sprintf("stress comment %d", i)); err != nil {
			failed.Add(1)
		}
	})
	duration := time.Since(start)

	likes, err := countLikes(*baseURL, postID)
	if err != nil {
		fmt.Printf("查询点赞数失败: %v\n", err)
	}

	// 3. 再点一次，全部取消
	run(tokens, func(_ int, tok string) {
		if _, err := toggleLike(*baseURL, tok, postID); err != nil {
			failed.Add(1)
		}
	})
	remaining, _ := countLikes(*baseURL, postID)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", *users*2)
	fmt.Printf("QPS: %.2f\n", float64(*users*2)/duration.Seconds())
	fmt.Printf("点赞数: %d (预期: %d)\n", likes, *users)
	fmt.Printf("取消后点赞数: %d (预期: 0)\n", remaining)
	fmt.Printf("失败请求: %d\n", failed.Load())
	fmt.Println("--------------------------------------------------")
}

func run(tokens []string, fn func(i int, tok string)) {
	var wg sync.WaitGroup
	for i, tok := range tokens {
		i, tok := i, tok
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(i, tok)
		}()
	}
	wg.Wait()
}

func createPost(baseURL, token string) (string, error) {
	var result struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	err := call(http.MethodPost, baseURL+"/community/posts", token, map[string]interface{}{
		"title":    "Stress test thread",
		"body":     "Load generated discussion",
		"category": "general",
	}, &result)
	return result.Post.ID, err
}

func toggleLike(baseURL, token, postID string) (bool, error) {
	var result struct {
		Applied bool `json:"applied"`
	}
	err := call(http.MethodPost, baseURL+"/community/reactions", token, map[string]string{
		"targetId":   postID,
		"targetKind": "post",
		"type":       "like",
	}, &result)
	return result.Applied, err
}

func comment(baseURL, token, postID, body string) error {
	return call(http.MethodPost, baseURL+"/community/posts/"+postID+"/comments", token, map[string]string{"body": body}, nil)
}

func countLikes(baseURL, postID string) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	q := url.Values{"targetId": {postID}, "type": {"like"}}
	err := call(http.MethodGet, baseURL+"/community/reactions/count?"+q.Encode(), "", nil, &result)
	return result.Count, err
}

func call(method, target, token string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("%s %s: code %d", method, target, env.Code)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
