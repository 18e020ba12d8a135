package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"Giorgio/backend/go/internal/llm"
	"Giorgio/backend/go/internal/models"
)

const extractionPrompt = `Analizza il seguente testo e estrai informazioni rilevanti sull'utente che potrebbero essere utili da ricordare in future conversazioni.

Cerca informazioni come:
- Nome, età, professione
- Preferenze e interessi
- Obiettivi e progetti
- Relazioni importanti
- Fatti personali significativi

Rispondi in formato JSON array con oggetti che hanno:
- content: l'informazione estratta (frase completa)
- category: una delle seguenti: personal, preferences, work, relationships, goals, other
- importance: numero da 1 a 10

Testo da analizzare:
%s

Estrai solo informazioni concrete e specifiche. Se non trovi informazioni rilevanti, rispondi con un array vuoto.`

var fencePattern = regexp.MustCompile("```(?:json)?\\n?")

// LLMExtractor 通过一次模型调用完成抽取。
type LLMExtractor struct {
	llm llm.LLM
}

// NewLLMExtractor 创建基于模型的抽取器。
func NewLLMExtractor(l llm.LLM) *LLMExtractor {
	return &LLMExtractor{llm: l}
}

// Extract 返回模型给出的候选记忆，未做长度过滤和归一化。
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]models.ExtractionCandidate, error) {
	reply, err := llm.Complete(ctx, e.llm, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return nil, err
	}
	return ParseCandidates(reply)
}

// ParseCandidates 去掉 Markdown 代码块标记后解析 JSON 数组。
func ParseCandidates(reply string) ([]models.ExtractionCandidate, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(reply, ""))
	if cleaned == "" {
		return nil, nil
	}
	var raw []rawCandidate
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析抽取结果失败: %w", err)
	}
	out := make([]models.ExtractionCandidate, 0, len(raw))
	for _, c := range raw {
		out = append(out, models.ExtractionCandidate{
			Content:    c.Content,
			Category:   c.Category,
			Importance: importanceOf(c.Importance),
		})
	}
	return out, nil
}

// rawCandidate 的 importance 可能是小数或字符串。
type rawCandidate struct {
	Content    string `json:"content"`
	Category   string `json:"category"`
	Importance any    `json:"importance"`
}

// importanceOf 四舍五入为整数，无法识别时返回 0，由调用方归一化。
func importanceOf(v any) int {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(-100, math.Min(100, f))))
}
