// Package summarycache 把用户摘要以 Markdown 文件缓存在对象存储中。
package summarycache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/google/uuid"
)

const keyPrefix = "user-summaries/"

// Cache 以对象最后修改时间判断缓存是否过期。
type Cache struct {
	blobs BlobStore
	ttl   time.Duration
	now   func() time.Time
}

// New 创建缓存，ttl 通常为一小时。
func New(blobs BlobStore, ttl time.Duration) *Cache {
	return &Cache{blobs: blobs, ttl: ttl, now: time.Now}
}

// Key 返回用户摘要的对象键。
func Key(ownerID string) string {
	return keyPrefix + ownerID + ".md"
}

// IsValid 判断缓存存在且未过期。任何存储错误都视为无效。
func (c *Cache) IsValid(ctx context.Context, ownerID string) bool {
	modified, err := c.blobs.LastModified(ctx, Key(ownerID))
	if err != nil {
		return false
	}
	return c.now().Sub(modified) < c.ttl
}

// Read 读取并解析缓存。不存在或格式错误时返回 false。
func (c *Cache) Read(ctx context.Context, ownerID string) (*models.UserSummary, bool) {
	data, err := c.blobs.Get(ctx, Key(ownerID))
	if err != nil {
		return nil, false
	}
	return Decode(ownerID, string(data))
}

// Write 覆盖写入缓存。
func (c *Cache) Write(ctx context.Context, ownerID string, summary *models.UserSummary) error {
	content := Encode(ownerID, summary, c.now())
	return c.blobs.Put(ctx, Key(ownerID), []byte(content), "text/markdown")
}

// Invalidate 先推进代数再删除缓存，可重复调用。
func (c *Cache) Invalidate(ctx context.Context, ownerID string) error {
	if err := c.blobs.Put(ctx, generationKey(ownerID), []byte(uuid.NewString()), "text/plain"); err != nil {
		return err
	}
	return c.blobs.Delete(ctx, Key(ownerID))
}

func generationKey(ownerID string) string {
	return keyPrefix + ownerID + ".gen"
}

// Generation 返回用户摘要的当前代数，每次 Invalidate 都会改变。
//
// 参数:
//
//	ctx: 上下文
//	ownerID: 用户ID
//
// 返回值:
//
//	string: 代数标识，从未失效过时为空字符串
//	error: 读取对象存储失败时返回
func (c *Cache) Generation(ctx context.Context, ownerID string) (string, error) {
	data, err := c.blobs.Get(ctx, generationKey(ownerID))
	if errors.Is(err, ErrBlobNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteIfCurrent 仅当代数仍为 generation 时写入缓存。写入后再核对一次，
// 期间发生失效则删除刚写入的内容。
//
// 参数:
//
//	ctx: 上下文
//	ownerID: 用户ID
//	summary: 要缓存的摘要
//	generation: 生成摘要之前读取到的代数
//
// 返回值:
//
//	bool: 缓存是否已写入并保留
//	error: 读写对象存储失败时返回
func (c *Cache) WriteIfCurrent(ctx context.Context, ownerID string, summary *models.UserSummary, generation string) (bool, error) {
	current, err := c.Generation(ctx, ownerID)
	if err != nil || current != generation {
		return false, err
	}
	if err := c.Write(ctx, ownerID, summary); err != nil {
		return false, err
	}
	current, err = c.Generation(ctx, ownerID)
	if err != nil || current != generation {
		_ = c.blobs.Delete(ctx, Key(ownerID))
		return false, err
	}
	return true, nil
}

// Encode 生成缓存文件内容。
func Encode(ownerID string, s *models.UserSummary, at time.Time) string {
	categories := s.Categories
	if categories == nil {
		categories = map[string]int{}
	}
	cats, _ := json.Marshal(categories)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# User Summary - %s\n", ownerID)
	fmt.Fprintf(&sb, "Last Updated: %s\n\n", at.UTC().Format(time.RFC3339))
	sb.WriteString("## Summary\n")
	sb.WriteString(s.Summary)
	sb.WriteString("\n\n## Stats\n")
	fmt.Fprintf(&sb, "- Total Memories: %d\n", s.TotalMemories)
	fmt.Fprintf(&sb, "- Categories: %s\n", cats)
	return sb.String()
}

// Decode 解析缓存文件内容，缺少必需段落或统计行格式错误时返回 false。
func Decode(ownerID, content string) (*models.UserSummary, bool) {
	var (
		lines       []string
		summaryIdx  = -1
		statsIdx    = -1
		lastUpdated time.Time
	)
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case summaryIdx < 0 && strings.HasPrefix(line, "## Summary"):
			summaryIdx = len(lines)
		case summaryIdx >= 0 && statsIdx < 0 && strings.HasPrefix(line, "## Stats"):
			statsIdx = len(lines)
		case summaryIdx < 0 && strings.HasPrefix(line, "Last Updated:"):
			lastUpdated, _ = time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, "Last Updated:")))
		}
		lines = append(lines, line)
	}
	if summaryIdx < 0 || statsIdx < 0 {
		return nil, false
	}

	out := &models.UserSummary{
		OwnerID:     ownerID,
		Summary:     strings.TrimSpace(strings.Join(lines[summaryIdx+1:statsIdx], "\n")),
		Categories:  map[string]int{},
		LastUpdated: lastUpdated,
	}
	for _, line := range lines[statsIdx+1:] {
		if _, v, ok := strings.Cut(line, "Total Memories:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, false
			}
			out.TotalMemories = n
		}
		if _, v, ok := strings.Cut(line, "Categories:"); ok {
			if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &out.Categories); err != nil {
				return nil, false
			}
		}
	}
	return out, true
}
