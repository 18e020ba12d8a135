package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pkghttp "Giorgio/backend/go/pkg/http"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// maxPageBytes 是读取网页正文的上限。
const maxPageBytes = 2 << 20

// maxMarkdownRunes 是返回给模型的 Markdown 最大长度。
const maxMarkdownRunes = 8000

// ErrInvalidURL 表示地址不是 http(s) 绝对地址。
var ErrInvalidURL = errors.New("URL 非法，仅支持 http 和 https")

// PageReader 读取网页并转换为 Markdown。
type PageReader struct {
	client *pkghttp.Client
}

// NewPageReader 基于给定客户端创建页面读取器。生产环境的客户端应由 NewPublicHTTPClient 构造。
func NewPageReader(client *pkghttp.Client) *PageReader {
	return &PageReader{client: client}
}

// Read 下载页面并返回截断后的 Markdown。
func (r *PageReader) Read(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载页面失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &pkghttp.StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("读取页面失败: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body),
		converter.WithDomain(u.Scheme+"://"+u.Host))
	if err != nil {
		return "", fmt.Errorf("转换 Markdown 失败: %w", err)
	}
	return truncateRunes(strings.TrimSpace(md), maxMarkdownRunes), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n\n[...]"
}
