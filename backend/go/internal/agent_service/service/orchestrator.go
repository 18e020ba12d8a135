// Package service 实现 Giorgio 的对话轮次编排：绑定工具、补充用户上下文、
// 运行推理循环、保存对话并在后台抽取记忆。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"Giorgio/backend/go/internal/agent_service/publisher"
	"Giorgio/backend/go/internal/checkpoint"
	"Giorgio/backend/go/internal/conversation"
	"Giorgio/backend/go/internal/llm"
	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/internal/tools"
	"Giorgio/backend/go/pkg/logger"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ReplyGenerationError = "Errore durante la generazione della risposta."
	ReplyNoMessage       = "Nessuna risposta ricevuta dall'agent."
	ReplyNoText          = "Nessuna risposta testuale."

	ConversationDeleted  = "Conversazione eliminata con successo"
	ConversationNotFound = "Conversazione non trovata"
)

// ToolBuilder 为用户构建工具集。
type ToolBuilder interface {
	Build(ownerID string) []server.ServerTool
}

// SummaryProvider 提供用户摘要。
type SummaryProvider interface {
	GetUserSummary(ctx context.Context, ownerID string) models.UserSummary
}

// Deps 是编排器的依赖。Events、Locker 和 Dispatcher 可以为 nil。
type Deps struct {
	LLM           llm.LLM
	Tools         ToolBuilder
	Memory        SummaryProvider
	Checkpoints   checkpoint.Checkpointer
	Conversations conversation.Store
	Dispatcher    Dispatcher
	Events        publisher.Sink
	Locker        ThreadLocker
}

// Options 控制推理循环。
type Options struct {
	MaxIterations    int
	ToolTimeout      time.Duration
	MinExtractLength int
	SystemPrompt     string
}

// Orchestrator 处理对话轮次。
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewOrchestrator 创建编排器，未设置的选项使用默认值。
//
// 参数:
//
//	deps: 模型、工具、记忆、检查点、对话存储等依赖。
//	opts: 推理循环的迭代上限、抽取阈值等选项。
//
// 返回值:
//
//	*Orchestrator: 编排器实例。
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 30 * time.Second
	}
	if opts.MinExtractLength <= 0 {
		opts.MinExtractLength = 20
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = SystemPrompt
	}
	if deps.Locker == nil {
		deps.Locker = NoopLocker{}
	}
	return &Orchestrator{deps: deps, opts: opts, now: time.Now}
}

type turn struct {
	threadID string
	ownerID  string
	isNew    bool
	log      *logger.Logger
}

func (o *Orchestrator) emit(ctx context.Context, t *turn, status models.TurnStatus, message string, content interface{}) {
	if o.deps.Events == nil {
		return
	}
	o.deps.Events.Publish(ctx, models.TurnEvent{
		ThreadID:  t.threadID,
		OwnerID:   t.ownerID,
		Timestamp: o.now(),
		Status:    status,
		Message:   message,
		Content:   content,
	})
}

// HandleTurn 处理一轮对话，总是返回回复和有效的 threadId，从不返回错误。
//
// 参数:
//
//	ctx: 请求上下文，取消时推理循环随之终止。
//	req: 用户消息、可选的 threadId 和所属用户。
//
// 返回值:
//
//	models.TurnResult: 回复文本和 threadId；线程属于其他用户或推理失败时回复为通用错误提示。
func (o *Orchestrator) HandleTurn(ctx context.Context, req models.TurnRequest) models.TurnResult {
	t := &turn{threadID: req.ThreadID, ownerID: req.OwnerID}
	if t.threadID == "" {
		t.threadID = uuid.NewString()
		t.isNew = true
	}
	t.log = logger.New("giorgio_agent", t.threadID, t.ownerID)
	t.log.WithPayload(map[string]interface{}{"new_conversation": t.isNew}).Info("收到对话轮次")
	o.emit(ctx, t, models.TurnReceived, "Richiesta ricevuta", nil)

	final, err := o.run(ctx, t, req.Message)
	if err != nil {
		t.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "agent_error"}).Error("对话轮次失败")
		o.emit(ctx, t, models.TurnError, err.Error(), nil)
		return models.TurnResult{Reply: ReplyGenerationError, ThreadID: t.threadID}
	}

	reply := ExtractReply(final)
	o.emit(ctx, t, models.TurnReplyExtracted, "Risposta estratta", nil)

	if err := o.deps.Conversations.Append(ctx, t.ownerID, t.threadID, req.Message, reply); err != nil {
		t.log.Err(err).Error("保存对话记录失败")
	}
	o.emit(ctx, t, models.TurnPersisted, "Conversazione salvata", nil)

	o.submitExtraction(ctx, t, req.Message)

	o.emit(ctx, t, models.TurnDone, "Completato", map[string]string{"reply": reply})
	return models.TurnResult{Reply: reply, ThreadID: t.threadID}
}

// run 绑定工具、补充上下文并运行推理循环。返回 nil 消息表示模型没有给出任何消息。
func (o *Orchestrator) run(ctx context.Context, t *turn, message string) (*models.Content, error) {
	unlock, err := o.deps.Locker.Lock(ctx, t.threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 客户端传入的线程若属于其他用户，按不存在处理
	if !t.isNew {
		owner, err := o.deps.Conversations.Owner(ctx, t.threadID)
		if err != nil {
			return nil, fmt.Errorf("读取对话归属失败: %w", err)
		}
		if owner != "" && owner != t.ownerID {
			return nil, models.ErrNotFound
		}
	}

	toolset := o.deps.Tools.Build(t.ownerID)
	o.emit(ctx, t, models.TurnToolsBound, fmt.Sprintf("%d strumenti disponibili", len(toolset)), nil)

	prompt := o.opts.SystemPrompt
	if t.isNew && o.deps.Memory != nil {
		summary := o.deps.Memory.GetUserSummary(ctx, t.ownerID)
		if summary.TotalMemories > 0 {
			prompt = WithUserContext(prompt, summary.Summary)
			o.emit(ctx, t, models.TurnContextAugmented, "Contesto utente aggiunto", nil)
		}
	}

	return o.reason(ctx, t, prompt, toolset, message)
}

func (o *Orchestrator) reason(ctx context.Context, t *turn, prompt string, toolset []server.ServerTool, message string) (*models.Content, error) {
	cp, err := o.deps.Checkpoints.Load(ctx, t.threadID, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("读取检查点失败: %w", err)
	}
	if cp == nil {
		cp = &models.Checkpoint{ThreadID: t.threadID, OwnerID: t.ownerID}
	}
	cp.Contents = append(cp.Contents, models.NewTextContent(models.SpeakerUser, message))

	defs := tools.Definitions(toolset)
	executor := tools.NewExecutor(toolset, o.opts.ToolTimeout)

	for i := 0; i < o.opts.MaxIterations; i++ {
		t.log.WithPayload(map[string]interface{}{"iteration": i + 1}).Debug("推理循环迭代")
		o.emit(ctx, t, models.TurnReasoning, fmt.Sprintf("Iterazione %d", i+1), nil)

		resp, err := o.deps.LLM.GenerateContent(ctx, &models.GenerateContentRequest{
			SystemInstruction: prompt,
			Contents:          cp.Contents,
			Tools:             defs,
		})
		if err != nil {
			return nil, fmt.Errorf("调用模型失败: %w", err)
		}

		msg := resp.First()
		if msg == nil {
			return nil, o.save(ctx, cp)
		}
		msg.Role = models.SpeakerModel
		cp.Contents = append(cp.Contents, *msg)

		calls := msg.FunctionCalls()
		if len(calls) == 0 {
			return msg, o.save(ctx, cp)
		}

		names := make([]string, 0, len(calls))
		for _, c := range calls {
			names = append(names, c.Name)
		}
		o.emit(ctx, t, models.TurnCallingTool, "Chiamata strumenti", names)

		observation := models.Content{Role: models.SpeakerTool}
		for _, r := range executor.ExecuteAll(ctx, calls) {
			r := r
			observation.Parts = append(observation.Parts, &models.Part{FunctionResponse: &r})
		}
		cp.Contents = append(cp.Contents, observation)
		o.emit(ctx, t, models.TurnObserving, "Risultati degli strumenti ricevuti", nil)

		if err := o.save(ctx, cp); err != nil {
			return nil, err
		}
	}
	return nil, models.ErrMaxIterations
}

func (o *Orchestrator) save(ctx context.Context, cp *models.Checkpoint) error {
	cp.Step++
	cp.UpdatedAt = o.now().UTC()
	if err := o.deps.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("保存检查点失败: %w", err)
	}
	return nil
}

func (o *Orchestrator) submitExtraction(ctx context.Context, t *turn, message string) {
	if o.deps.Dispatcher == nil || utf8.RuneCountInString(message) < o.opts.MinExtractLength {
		return
	}
	job := models.ExtractionJob{
		OwnerID:     t.ownerID,
		Text:        message,
		Source:      "conversation_" + t.threadID,
		SubmittedAt: o.now().UTC(),
	}
	if err := o.deps.Dispatcher.Submit(ctx, job); err != nil {
		t.log.Err(err).Warn("提交记忆抽取任务失败")
		return
	}
	o.emit(ctx, t, models.TurnMemorySubmitted, "Estrazione memorie avviata", nil)
}

// ExtractReply 从最终消息中取出回复文本。
func ExtractReply(final *models.Content) string {
	if final == nil {
		return ReplyNoMessage
	}
	if text := final.Text(); text != "" {
		return text
	}
	return ReplyNoText
}

// ListConversations 返回用户的全部对话。
func (o *Orchestrator) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	return o.deps.Conversations.List(ctx, ownerID)
}

// GetConversation 在对话不存在时返回 models.ErrNotFound。
func (o *Orchestrator) GetConversation(ctx context.Context, threadID, ownerID string) (*models.Conversation, error) {
	conv, err := o.deps.Conversations.Get(ctx, threadID, ownerID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.ErrNotFound
	}
	return conv, nil
}

// DeleteConversation 删除对话记录及其检查点。
func (o *Orchestrator) DeleteConversation(ctx context.Context, threadID, ownerID string) (models.DeleteOutcome, error) {
	deleted, err := o.deps.Conversations.Delete(ctx, threadID, ownerID)
	if err != nil {
		return models.DeleteOutcome{}, err
	}
	if !deleted {
		return models.DeleteOutcome{Success: false, Message: ConversationNotFound}, nil
	}
	if _, err := o.deps.Checkpoints.Load(ctx, threadID, ownerID); err == nil {
		if err := o.deps.Checkpoints.Delete(ctx, threadID); err != nil {
			logger.New("giorgio_agent", threadID, ownerID).Err(err).Warn("删除检查点失败")
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		logger.New("giorgio_agent", threadID, ownerID).Err(err).Warn("读取检查点失败")
	}
	return models.DeleteOutcome{Success: true, Message: ConversationDeleted}, nil
}
