package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"Giorgio/backend/go/internal/config"
	"Giorgio/backend/go/internal/embedding"
	"Giorgio/backend/go/internal/llm"
	"Giorgio/backend/go/internal/memory/extractor"
	"Giorgio/backend/go/internal/memory/store"
	"Giorgio/backend/go/internal/memory/summarycache"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/google/uuid"
)

const (
	summaryPrompt = "Crea un breve riassunto delle informazioni chiave su questo utente basandoti sulle seguenti memorie. " +
		"Rispondi solo con il riassunto, massimo 3-4 frasi:\n\n%s"

	EmptySummary = "Nessuna informazione memorizzata per questo utente."
	ErrorSummary = "Errore nella generazione del riassunto utente."

	MemoryDeleted     = "Memoria eliminata con successo"
	MemoryDeleteError = "Errore nell'eliminazione della memoria"
)

// ErrEmptyContent 表示要保存的记忆内容为空。
var ErrEmptyContent = errors.New("记忆内容为空")

// Options 是记忆服务的可调参数。
type Options struct {
	Dimension          int
	SearchLimit        int
	SearchThreshold    float64
	ScrollLimit        int
	SummaryTopN        int
	MinCandidateLength int
}

// OptionsFromConfig 从配置组装参数。
func OptionsFromConfig(mem config.MemoryConfig, dim int) Options {
	return Options{
		Dimension:          dim,
		SearchLimit:        mem.SearchLimit,
		SearchThreshold:    mem.SearchThreshold,
		ScrollLimit:        mem.ScrollLimit,
		SummaryTopN:        mem.SummaryTopN,
		MinCandidateLength: mem.MinCandidateLength,
	}
}

// MemoryService 管理每个用户的长期记忆：写入、检索、摘要、删除和从文本中抽取。
type MemoryService struct {
	vectors   store.VectorStore
	embedder  embedding.Embedding
	cache     *summarycache.Cache
	extractor extractor.Extractor
	llm       llm.LLM
	opts      Options
	now       func() time.Time
}

// NewMemoryService 创建记忆服务。
//
// 参数:
//
//	vectors: 向量存储
//	embedder: 文本向量化
//	cache: 用户摘要缓存
//	ext: 记忆抽取器
//	l: 生成摘要使用的模型
//	opts: 检索与摘要参数
//
// 返回值:
//
//	*MemoryService: 服务实例
func NewMemoryService(vectors store.VectorStore, embedder embedding.Embedding, cache *summarycache.Cache,
	ext extractor.Extractor, l llm.LLM, opts Options) *MemoryService {
	return &MemoryService{
		vectors:   vectors,
		embedder:  embedder,
		cache:     cache,
		extractor: ext,
		llm:       l,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *MemoryService) log(ownerID string) *logger.Logger {
	return logger.New("memory_service", "", ownerID)
}

func (s *MemoryService) ensure(ctx context.Context, ownerID string) (string, error) {
	coll := store.CollectionName(ownerID)
	if err := s.vectors.EnsureCollection(ctx, coll, s.opts.Dimension); err != nil {
		return "", err
	}
	return coll, nil
}

// StoreMemory 写入一条记忆并使摘要缓存失效。
func (s *MemoryService) StoreMemory(ctx context.Context, ownerID string, in models.StoreMemoryInput) (*models.MemoryRecord, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}
	coll, err := s.ensure(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("确保集合存在失败: %w", err)
	}

	source := in.Source
	if source == "" {
		source = models.SourceManual
	}
	now := s.now().UTC()
	rec := &models.MemoryRecord{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Content:      in.Content,
		Category:     models.ParseCategory(in.Category),
		Importance:   models.ClampImportance(in.Importance),
		Source:       source,
		CreatedAt:    now,
		LastAccessed: now,
	}

	vector, err := s.embedder.Embed(ctx, in.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if err := s.vectors.Upsert(ctx, coll, rec, vector); err != nil {
		return nil, fmt.Errorf("写入记忆失败: %w", err)
	}

	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		s.log(ownerID).Err(err).Warn("摘要缓存失效失败")
	}
	return rec, nil
}

// SearchMemories 语义检索记忆。出错时返回空结果并记录日志。
//
// 参数:
//
//	ctx: 请求上下文。
//	ownerID: 用户ID，只返回该用户的记忆。
//	opts: 查询文本、条数上限、相似度阈值和可选分类。
//
// 返回值:
//
//	models.SearchResult: 相似度不低于阈值的命中记忆。
func (s *MemoryService) SearchMemories(ctx context.Context, ownerID string, opts models.SearchOptions) models.SearchResult {
	result := models.SearchResult{Memories: []models.ScoredMemory{}, Query: opts.Query}

	q := store.Query{
		OwnerID:   ownerID,
		Limit:     opts.Limit,
		Threshold: s.opts.SearchThreshold,
		Category:  models.MemoryCategory(strings.ToLower(strings.TrimSpace(opts.Category))),
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.SearchLimit
	}
	if opts.Threshold != nil {
		q.Threshold = *opts.Threshold
	}

	log := s.log(ownerID)
	coll, err := s.ensure(ctx, ownerID)
	if err != nil {
		log.Err(err).Error("检索记忆失败")
		return result
	}
	vector, err := s.embedder.Embed(ctx, opts.Query)
	if err != nil {
		log.Err(err).Error("检索记忆失败")
		return result
	}
	hits, err := s.vectors.Search(ctx, coll, vector, q)
	if err != nil {
		log.Err(err).Error("检索记忆失败")
		return result
	}

	result.Memories = append(result.Memories, hits...)
	result.TotalCount = len(hits)
	return result
}

// GetUserSummary 返回用户摘要，缓存有效时直接读取缓存。
func (s *MemoryService) GetUserSummary(ctx context.Context, ownerID string) models.UserSummary {
	log := s.log(ownerID)
	if s.cache.IsValid(ctx, ownerID) {
		if cached, ok := s.cache.Read(ctx, ownerID); ok {
			log.Debug("使用缓存的用户摘要")
			return *cached
		}
	}

	generation, genErr := s.cache.Generation(ctx, ownerID)
	summary, err := s.buildSummary(ctx, ownerID)
	if err != nil {
		log.Err(err).Error("生成用户摘要失败")
		return models.UserSummary{
			OwnerID:     ownerID,
			Summary:     ErrorSummary,
			Categories:  map[string]int{},
			LastUpdated: s.now(),
		}
	}

	if genErr != nil {
		log.Err(genErr).Warn("读取摘要代数失败，跳过缓存")
		return summary
	}
	written, err := s.cache.WriteIfCurrent(ctx, ownerID, &summary, generation)
	if err != nil {
		log.Err(err).Warn("写入摘要缓存失败")
	} else if !written {
		log.Debug("生成期间记忆已变化，不缓存摘要")
	}
	return summary
}

func (s *MemoryService) buildSummary(ctx context.Context, ownerID string) (models.UserSummary, error) {
	out := models.UserSummary{OwnerID: ownerID, Categories: map[string]int{}, LastUpdated: s.now()}

	records, err := s.fetchSorted(ctx, ownerID, s.opts.ScrollLimit)
	if err != nil {
		return out, err
	}
	if len(records) == 0 {
		out.Summary = EmptySummary
		return out, nil
	}

	top := records
	if len(top) > s.opts.SummaryTopN {
		top = top[:s.opts.SummaryTopN]
	}
	lines := make([]string, 0, len(top))
	for _, r := range top {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Category, r.Content))
	}

	text, err := llm.Complete(ctx, s.llm, fmt.Sprintf(summaryPrompt, strings.Join(lines, "\n")))
	if err != nil {
		return out, err
	}

	out.Summary = text
	out.TotalMemories = len(records)
	for _, r := range records {
		out.Categories[string(r.Category)]++
	}
	return out, nil
}

// fetchSorted 读取记忆并按重要性降序、创建时间降序排列。
func (s *MemoryService) fetchSorted(ctx context.Context, ownerID string, limit int) ([]models.MemoryRecord, error) {
	coll, err := s.ensure(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	records, err := s.vectors.Scroll(ctx, coll, ownerID, limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Importance != records[j].Importance {
			return records[i].Importance > records[j].Importance
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ListMemories 列出用户的记忆，排序与摘要一致。
func (s *MemoryService) ListMemories(ctx context.Context, ownerID string, limit int) ([]models.MemoryRecord, error) {
	if limit <= 0 || limit > s.opts.ScrollLimit {
		limit = s.opts.ScrollLimit
	}
	return s.fetchSorted(ctx, ownerID, limit)
}

// DeleteMemory 删除一条记忆并使摘要缓存失效。
func (s *MemoryService) DeleteMemory(ctx context.Context, ownerID, memoryID string) models.DeleteOutcome {
	log := s.log(ownerID)
	if strings.TrimSpace(memoryID) == "" {
		return models.DeleteOutcome{Success: false, Message: MemoryDeleteError}
	}
	if err := s.vectors.Delete(ctx, store.CollectionName(ownerID), ownerID, memoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.WithPayload(map[string]interface{}{"memory_id": memoryID}).Warn("记忆不存在或不属于该用户")
		} else {
			log.Err(err).Error("删除记忆失败")
		}
		return models.DeleteOutcome{Success: false, Message: MemoryDeleteError}
	}
	if err := s.cache.Invalidate(ctx, ownerID); err != nil {
		log.Err(err).Warn("摘要缓存失效失败")
	}
	return models.DeleteOutcome{Success: true, Message: MemoryDeleted}
}

// ExtractMemoriesFromText 从文本中抽取候选记忆并逐条保存，单条失败会被跳过。
func (s *MemoryService) ExtractMemoriesFromText(ctx context.Context, ownerID, text, source string) []models.MemoryRecord {
	log := s.log(ownerID)
	stored := []models.MemoryRecord{}

	candidates, err := s.extractor.Extract(ctx, text)
	if err != nil {
		log.Err(err).Warn("抽取记忆失败")
		return stored
	}
	if source == "" {
		source = models.SourceConversation
	}

	for _, c := range candidates {
		if utf8.RuneCountInString(strings.TrimSpace(c.Content)) <= s.opts.MinCandidateLength {
			continue
		}
		rec, err := s.StoreMemory(ctx, ownerID, models.StoreMemoryInput{
			Content:    c.Content,
			Category:   c.Category,
			Importance: models.ClampImportance(c.Importance),
			Source:     source,
		})
		if err != nil {
			log.Err(err).Warn("保存抽取的记忆失败")
			continue
		}
		stored = append(stored, *rec)
	}
	return stored
}

// HandleExtractionJob 处理后台抽取任务，供工作池和 Kafka 消费者共用。
func (s *MemoryService) HandleExtractionJob(ctx context.Context, job models.ExtractionJob) int {
	stored := s.ExtractMemoriesFromText(ctx, job.OwnerID, job.Text, job.Source)
	s.log(job.OwnerID).WithPayload(map[string]interface{}{
		"source": job.Source,
		"stored": len(stored),
	}).Info("后台记忆抽取完成")
	return len(stored)
}
