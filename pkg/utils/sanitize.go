package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// 标题、正文、评论均按纯文本存储，客户端负责渲染时转义
var sanitizer = bluemonday.StrictPolicy()

// Sanitize 去掉用户提交内容中的 HTML 标签，还原实体后返回纯文本，并去掉首尾空白
func Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
}
