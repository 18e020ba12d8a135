package models

import (
	"strings"
	"time"
)

// MemoryCategory 是长期记忆的分类。
type MemoryCategory string

const (
	CategoryPersonal      MemoryCategory = "personal"
	CategoryPreferences   MemoryCategory = "preferences"
	CategoryWork          MemoryCategory = "work"
	CategoryRelationships MemoryCategory = "relationships"
	CategoryGoals         MemoryCategory = "goals"
	CategoryOther         MemoryCategory = "other"
)

// MemoryCategories 按固定顺序列出所有分类。
var MemoryCategories = []MemoryCategory{
	CategoryPersonal, CategoryPreferences, CategoryWork,
	CategoryRelationships, CategoryGoals, CategoryOther,
}

// ParseCategory 解析分类字符串，未知或空值返回 other。
func ParseCategory(s string) MemoryCategory {
	c := MemoryCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range MemoryCategories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

const (
	DefaultImportance = 5
	MinImportance     = 1
	MaxImportance     = 10

	SourceManual       = "manual"
	SourceConversation = "conversation"
)

// ClampImportance 把重要性限制在 [1,10]。0 视为未设置，取默认值 5。
func ClampImportance(v int) int {
	if v == 0 {
		v = DefaultImportance
	}
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// MemoryRecord 是一条长期记忆。向量由向量库内部持有，不对外暴露。
type MemoryRecord struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId"`
	Content      string         `json:"content"`
	Category     MemoryCategory `json:"category"`
	Importance   int            `json:"importance"`
	Source       string         `json:"source"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastAccessed time.Time      `json:"lastAccessed"`
	AccessCount  int            `json:"accessCount"`
}

// ScoredMemory 是带相似度分数的检索结果。
type ScoredMemory struct {
	MemoryRecord
	Score float64 `json:"score"`
}

// StoreMemoryInput 是写入记忆的参数，零值字段取默认值。
type StoreMemoryInput struct {
	Content    string `json:"content"`
	Category   string `json:"category,omitempty"`
	Importance int    `json:"importance,omitempty"`
	Source     string `json:"source,omitempty"`
}

// SearchOptions 是记忆检索参数。Threshold 为 nil 时使用默认阈值。
type SearchOptions struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Category  string   `json:"category,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// SearchResult 是记忆检索的结果。
type SearchResult struct {
	Memories   []ScoredMemory `json:"memories"`
	TotalCount int            `json:"totalCount"`
	Query      string         `json:"query"`
}

// UserSummary 是由用户全部记忆派生的摘要。
type UserSummary struct {
	OwnerID       string         `json:"ownerId"`
	Summary       string         `json:"summary"`
	TotalMemories int            `json:"totalMemories"`
	Categories    map[string]int `json:"categories"`
	LastUpdated   time.Time      `json:"lastUpdated"`
}

// ExtractionCandidate 是模型从文本中抽取出的候选记忆。
type ExtractionCandidate struct {
	Content    string `json:"content"`
	Category   string `json:"category"`
	Importance int    `json:"importance"`
}

// ExtractionJob 是后台记忆抽取任务，经由工作池或 Kafka 分发。
type ExtractionJob struct {
	OwnerID     string    `json:"owner_id"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	SubmittedAt time.Time `json:"submitted_at"`
}
