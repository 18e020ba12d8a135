package tools

import (
	"context"
	"fmt"
	"strings"

	"Giorgio/backend/go/internal/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func categoryEnum() []string {
	out := make([]string, 0, len(models.MemoryCategories))
	for _, c := range models.MemoryCategories {
		out = append(out, string(c))
	}
	return out
}

func (r *Registry) memoryTools(ownerID string) []server.ServerTool {
	mem := r.deps.Memory

	store := server.ServerTool{
		Tool: mcp.NewTool("store_memory",
			mcp.WithDescription("Store important information about the user for future reference"),
			mcp.WithString("content", mcp.Required(), mcp.Description("The information to store about the user")),
			mcp.WithString("category", mcp.Required(), mcp.Enum(categoryEnum()...), mcp.Description("Category of the information")),
			mcp.WithNumber("importance", mcp.Required(), mcp.Min(1), mcp.Max(10), mcp.Description("Importance level from 1 to 10")),
			mcp.WithString("source", mcp.Description("Source of the information (e.g., conversation, profile)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			content := trimmedArg(req, "content")
			if content == "" {
				return failure("Errore: il contenuto della memoria è obbligatorio"), nil
			}
			source := trimmedArg(req, "source")
			if source == "" {
				source = models.SourceConversation
			}
			importance := req.GetInt("importance", models.DefaultImportance)
			if importance < models.MinImportance {
				importance = models.MinImportance
			}
			rec, err := mem.StoreMemory(ctx, ownerID, models.StoreMemoryInput{
				Content:    content,
				Category:   trimmedArg(req, "category"),
				Importance: importance,
				Source:     source,
			})
			if err != nil {
				return failure("Errore nel salvataggio della memoria: %v", err), nil
			}
			return text(fmt.Sprintf("✅ Memoria salvata con successo!\n📝 **%s**\n🏷️ Categoria: %s\n⭐ Importanza: %d/10\nID: %s",
				rec.Content, rec.Category, rec.Importance, rec.ID)), nil
		},
	}

	search := server.ServerTool{
		Tool: mcp.NewTool("search_memory",
			mcp.WithDescription("AUTOMATICALLY search for stored information about the user. Use this tool proactively when the user asks questions that might relate to their personal information, preferences, or past conversations. Examples: when user asks about their name, preferences, work, family, goals, etc."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query to find relevant information about the user (extract key terms from user question)")),
			mcp.WithNumber("limit", mcp.Min(1), mcp.Max(20), mcp.Description("Maximum number of results to return (default: 5)")),
			mcp.WithString("category", mcp.Enum(categoryEnum()...), mcp.Description("Filter by specific category if relevant")),
			mcp.WithNumber("threshold", mcp.Min(0), mcp.Max(1), mcp.Description("Minimum similarity threshold (default: 0.6 for broader search)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query := trimmedArg(req, "query")
			if query == "" {
				return failure("Query di ricerca vuota"), nil
			}
			limit := req.GetInt("limit", 0)
			if limit <= 0 {
				limit = r.deps.SearchLimit
			}
			threshold := req.GetFloat("threshold", 0)
			if threshold <= 0 {
				threshold = r.deps.SearchThreshold
			}
			res := mem.SearchMemories(ctx, ownerID, models.SearchOptions{
				Query:     query,
				Limit:     limit,
				Category:  trimmedArg(req, "category"),
				Threshold: &threshold,
			})
			if len(res.Memories) == 0 {
				return text(fmt.Sprintf("🔍 Nessuna informazione trovata per la query: \"%s\"", query)), nil
			}
			items := make([]string, 0, len(res.Memories))
			for i, m := range res.Memories {
				var score, category string
				if m.Score != 0 {
					score = fmt.Sprintf(" (similarità: %.1f%%)", m.Score*100)
				}
				if m.Category != "" {
					category = " 🏷️ " + string(m.Category)
				}
				items = append(items, fmt.Sprintf("%d. **%s**%s\n   %s | ⭐ %d/10 | 📅 %s",
					i+1, m.Content, score, category, m.Importance, itDate(m.CreatedAt)))
			}
			return text(fmt.Sprintf("🧠 Informazioni trovate per \"%s\" (%d risultati):\n\n%s",
				query, res.TotalCount, strings.Join(items, "\n\n"))), nil
		},
	}

	summary := server.ServerTool{
		Tool: mcp.NewTool("get_user_summary",
			mcp.WithDescription("Get a comprehensive summary of what is known about the user"),
			mcp.WithString("request", mcp.Required(), mcp.Description("Request for user summary (any text)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			s := mem.GetUserSummary(ctx, ownerID)
			if s.TotalMemories == 0 {
				return text("📝 Non ho ancora memorizzato informazioni specifiche su di te. Durante le nostre conversazioni, raccoglierò e salverò informazioni importanti per offrirti un servizio più personalizzato."), nil
			}
			return text(fmt.Sprintf("👤 **Riassunto utente**\n\n%s\n\n📊 **Statistiche memorie:**\n- Totale informazioni: %d\n- Categorie: %s\n- Ultimo aggiornamento: %s",
				s.Summary, s.TotalMemories, formatCategories(s.Categories), itDate(s.LastUpdated))), nil
		},
	}

	extract := server.ServerTool{
		Tool: mcp.NewTool("extract_memories_from_text",
			mcp.WithDescription("Extract and store important user information from conversation text"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text from which to extract user information")),
			mcp.WithString("source", mcp.Description("Source of the text (e.g., conversation, profile)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			body := trimmedArg(req, "text")
			if body == "" {
				return failure("Testo vuoto fornito per l'estrazione"), nil
			}
			source := trimmedArg(req, "source")
			if source == "" {
				source = models.SourceConversation
			}
			records := mem.ExtractMemoriesFromText(ctx, ownerID, body, source)
			if len(records) == 0 {
				return text("📝 Nessuna nuova informazione significativa estratta dal testo."), nil
			}
			items := make([]string, 0, len(records))
			for i, m := range records {
				items = append(items, fmt.Sprintf("%d. **%s** (%s, ⭐%d/10)", i+1, m.Content, m.Category, m.Importance))
			}
			return text(fmt.Sprintf("🧠 Estratte e salvate %d nuove informazioni:\n\n%s", len(records), strings.Join(items, "\n"))), nil
		},
	}

	return []server.ServerTool{store, search, summary, extract}
}

// formatCategories 按固定分类顺序输出 "personal: 2, work: 1"，未知分类排在最后。
func formatCategories(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, c := range models.MemoryCategories {
		if n, ok := counts[string(c)]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d", c, n))
			seen[string(c)] = true
		}
	}
	for c, n := range counts {
		if !seen[c] {
			parts = append(parts, fmt.Sprintf("%s: %d", c, n))
		}
	}
	return strings.Join(parts, ", ")
}
