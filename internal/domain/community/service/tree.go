package service

import (
	"farm_community/internal/domain/community/model"
	profileModel "farm_community/internal/domain/profile/model"
)

// BuildTree 将按创建时间升序的评论重建为两层结构。
// 任意深度的回复都归到其最顶层的一级评论下；父评论不在集合中的评论作为一级评论；
// 父链成环时，闭合环的那条评论作为一级评论。不会丢弃任何评论。
func BuildTree(comments []model.Comment, authors map[string]profileModel.AuthorInfo) []Thread {
	index := make(map[string]int, len(comments))
	for i := range comments {
		index[comments[i].ID] = i
	}

	const (
		visiting = 1
		resolved = 2
	)
	state := make(map[string]int, len(comments))
	rootOf := make(map[string]string, len(comments))

	var resolve func(id string) string
	resolve = func(id string) string {
		if state[id] == resolved {
			return rootOf[id]
		}
		state[id] = visiting

		c := comments[index[id]]
		root := id
		if c.ParentID != nil {
			parent := *c.ParentID
			if _, ok := index[parent]; ok && parent != id && state[parent] != visiting {
				root = resolve(parent)
			}
		}

		state[id] = resolved
		rootOf[id] = root
		return root
	}

	threads := make([]Thread, 0)
	position := make(map[string]int)
	for i := range comments {
		c := comments[i]
		root := resolve(c.ID)
		view := CommentView{Comment: c, Author: authorFor(authors, c.AuthorID)}
		if root == c.ID {
			if _, placed := position[c.ID]; placed {
				continue
			}
			position[c.ID] = len(threads)
			threads = append(threads, Thread{CommentView: view, Replies: []CommentView{}})
			continue
		}
		if pos, ok := position[root]; ok {
			threads[pos].Replies = append(threads[pos].Replies, view)
			continue
		}
		// 根评论创建时间晚于回复 (时钟偏差)，先占位再补全
		position[root] = len(threads)
		rc := comments[index[root]]
		threads = append(threads, Thread{
			CommentView: CommentView{Comment: rc, Author: authorFor(authors, rc.AuthorID)},
			Replies:     []CommentView{view},
		})
	}

	return threads
}

// distinctAuthors 收集去重后的作者 ID，保持首次出现顺序
func distinctAuthors(comments []model.Comment) []string {
	seen := make(map[string]struct{}, len(comments))
	ids := make([]string, 0, len(comments))
	for i := range comments {
		id := comments[i].AuthorID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func authorFor(authors map[string]profileModel.AuthorInfo, id string) profileModel.AuthorInfo {
	if a, ok := authors[id]; ok {
		return a
	}
	return profileModel.UnknownAuthor(id)
}
