package models

import "time"

// TurnStatus 定义了对话轮次状态机中的各个状态。
type TurnStatus string

const (
	TurnReceived         TurnStatus = "RECEIVED"
	TurnToolsBound       TurnStatus = "TOOLS_BOUND"
	TurnContextAugmented TurnStatus = "CONTEXT_AUGMENTED"
	TurnReasoning        TurnStatus = "REASONING"
	TurnCallingTool      TurnStatus = "CALLING_TOOL"
	TurnObserving        TurnStatus = "OBSERVING"
	TurnReplyExtracted   TurnStatus = "REPLY_EXTRACTED"
	TurnPersisted        TurnStatus = "PERSISTED"
	TurnMemorySubmitted  TurnStatus = "MEMORY_SUBMITTED"
	TurnDone             TurnStatus = "DONE"
	TurnError            TurnStatus = "ERROR"
)

// TurnEvent 是发送到 Kafka 和 WebSocket 的轮次进度事件。
type TurnEvent struct {
	ThreadID  string      `json:"thread_id"`
	OwnerID   string      `json:"owner_id"`
	Timestamp time.Time   `json:"timestamp"`
	Status    TurnStatus  `json:"status"`
	Message   string      `json:"message"`
	Content   interface{} `json:"content,omitempty"`
}
