package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"Giorgio/backend/go/internal/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const variationSelector16 = '\uFE0F'

// splitEmoji 把 "🛒 Spesa" 拆成 ("🛒", "Spesa")。名称开头不是单个表情符号
// 加空白时原样返回。
func splitEmoji(name string) (string, string) {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !isEmojiRune(r) {
		return "", name
	}
	if next, n := utf8.DecodeRuneInString(name[size:]); next == variationSelector16 {
		size += n
	}
	rest := name[size:]
	trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
	if trimmed == rest || trimmed == "" {
		return "", name
	}
	return name[:size], trimmed
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return unicode.Is(unicode.So, r)
}

func priorityTag(p models.TaskPriority) string {
	if p == "" {
		return ""
	}
	return " [" + strings.ToUpper(string(p)) + "]"
}

func (r *Registry) todoTools(ownerID string) []server.ServerTool {
	store := r.deps.Todos

	create := server.ServerTool{
		Tool: mcp.NewTool("create_todo_list",
			mcp.WithDescription("Create a new todo list"),
			mcp.WithString("name", mcp.Required(), mcp.Description(`Todo list name (with optional emoji, e.g., "🛒 Shopping")`)),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name := trimmedArg(req, "name")
			if name == "" {
				return failure("Errore: il nome della todo list è obbligatorio"), nil
			}
			emoji, listName := splitEmoji(name)
			list, err := store.Create(ctx, ownerID, models.NewTodoList{Name: listName, Emoji: emoji})
			if err != nil {
				return failure("Errore nella creazione della todo list: %v", err), nil
			}
			return text(fmt.Sprintf("✅ Todo list \"%s\" creata con successo! %s\nID: %s\nTasks: %d",
				list.Name, list.Emoji, list.ID, len(list.Tasks))), nil
		},
	}

	getLists := server.ServerTool{
		Tool: mcp.NewTool("get_todo_lists",
			mcp.WithDescription("Get all user todo lists"),
			mcp.WithString("request", mcp.Required(), mcp.Description("List retrieval request (any text)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lists, err := store.FindAll(ctx, ownerID)
			if err != nil {
				return failure("Errore nel recupero delle todo lists: %v", err), nil
			}
			if len(lists) == 0 {
				return text("📝 Non hai ancora creato nessuna todo list. Puoi crearne una usando il comando create_todo_list."), nil
			}
			items := make([]string, 0, len(lists))
			for i, l := range lists {
				emoji := l.Emoji
				if emoji == "" {
					emoji = "📝"
				}
				items = append(items, fmt.Sprintf("%d. %s **%s** (ID: %s)\n   📋 %d %s - Aggiornata: %s",
					i+1, emoji, l.Name, l.ID, len(l.Tasks), plural(len(l.Tasks)), itDate(l.UpdatedAt)))
			}
			return text(fmt.Sprintf("📚 Le tue todo lists (%d):\n\n%s", len(lists), strings.Join(items, "\n\n"))), nil
		},
	}

	addTask := server.ServerTool{
		Tool: mcp.NewTool("add_task",
			mcp.WithDescription("Add a task to a todo list"),
			mcp.WithString("listId", mcp.Required(), mcp.Description("Todo list ID")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("priority", mcp.Required(), mcp.Enum("high", "medium", "low"), mcp.Description("Task priority (high, medium, low)")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			listID, title := trimmedArg(req, "listId"), trimmedArg(req, "title")
			if listID == "" || title == "" {
				return failure("ID lista e titolo task sono obbligatori"), nil
			}
			task := models.Task{Title: title, Priority: models.TaskPriority(trimmedArg(req, "priority"))}
			list, err := store.AddTask(ctx, ownerID, listID, task)
			if err != nil {
				return failure("Errore nell'aggiunta del task: %v", todoErr(err)), nil
			}
			added := list.Tasks[len(list.Tasks)-1]
			return text(fmt.Sprintf("✅ Task aggiunto con successo!\n📝 **%s**%s\n📋 Todo list: %s (%d %s)",
				added.Title, priorityTag(added.Priority), list.Name, len(list.Tasks), plural(len(list.Tasks)))), nil
		},
	}

	toggle := server.ServerTool{
		Tool: mcp.NewTool("toggle_task",
			mcp.WithDescription("Complete or reactivate a task"),
			mcp.WithString("listId", mcp.Required(), mcp.Description("Todo list ID")),
			mcp.WithString("taskId", mcp.Required(), mcp.Description("Task ID to complete or reactivate")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			listID, taskID := trimmedArg(req, "listId"), trimmedArg(req, "taskId")
			if listID == "" || taskID == "" {
				return failure("ID lista e ID task sono obbligatori"), nil
			}
			list, err := store.ToggleTask(ctx, ownerID, listID, taskID)
			if err != nil {
				return failure("Errore nel cambio stato del task: %v", todoErr(err)), nil
			}
			task := list.FindTask(taskID)
			if task == nil {
				return failure("Task con ID \"%s\" non trovato nella todo list.", taskID), nil
			}
			icon, status := "⏳", "riattivato"
			if task.Completed {
				icon, status = "✅", "completato"
			}
			return text(fmt.Sprintf("%s Task %s!\n📝 **%s**%s\n📊 Progresso todo list: %d/%d task completati",
				icon, status, task.Title, priorityTag(task.Priority), list.CompletedCount(), len(list.Tasks))), nil
		},
	}

	getTasks := server.ServerTool{
		Tool: mcp.NewTool("get_tasks",
			mcp.WithDescription("Get tasks from a todo list by name"),
			mcp.WithString("listName", mcp.Required(), mcp.Description("Todo list name to retrieve tasks from")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name := trimmedArg(req, "listName")
			if name == "" {
				return failure("Nome della todo list è obbligatorio"), nil
			}
			list, err := store.FindByName(ctx, ownerID, name)
			if errors.Is(err, models.ErrNotFound) {
				return failure("Todo list con nome \"%s\" non trovata.", name), nil
			}
			if err != nil {
				return failure("Errore nel recupero dei task: %v", err), nil
			}
			if len(list.Tasks) == 0 {
				return text(fmt.Sprintf("📝 Nessun task trovato nella todo list \"%s\".", list.Name)), nil
			}
			items := make([]string, 0, len(list.Tasks))
			for i, t := range list.Tasks {
				icon := "⏳"
				if t.Completed {
					icon = "✅"
				}
				var extra string
				if t.Category != "" {
					extra += " 🏷️ " + t.Category
				}
				if t.DueDate != nil {
					extra += " 📅 " + itDate(*t.DueDate)
				}
				items = append(items, fmt.Sprintf("%d. %s **%s**%s%s\n   ID: %s",
					i+1, icon, t.Title, priorityTag(t.Priority), extra, t.ID))
			}
			total := len(list.Tasks)
			return text(fmt.Sprintf("📋 **%s** - Tasks (%d)\n📊 Progresso: %d/%d completati\n\n%s",
				list.Name, total, list.CompletedCount(), total, strings.Join(items, "\n\n"))), nil
		},
	}

	return []server.ServerTool{create, getLists, addTask, toggle, getTasks}
}

// todoErr 把存储层错误转换为面向用户的意大利语描述。
func todoErr(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "todo list o task non trovato"
	case errors.Is(err, models.ErrInvalidID):
		return "ID non valido"
	default:
		return err.Error()
	}
}
