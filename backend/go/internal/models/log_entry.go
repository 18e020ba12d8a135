package models

// LogEntry 描述结构化日志的统一格式，字段与 pkg/logger 输出的 JSON 键一致。
type LogEntry struct {
	// ServiceName 是产生日志的服务名称，例如 "giorgio-agent"、"memory-worker"。
	ServiceName string `json:"service_name"`

	// TraceID 在对话轮次中等于 threadId。
	TraceID string `json:"trace_id,omitempty"`

	// UserID 在对话轮次中等于 ownerId。
	UserID string `json:"user_id,omitempty"`

	RequestInfo *RequestInfo           `json:"request_info,omitempty"`
	Error       *ErrorInfo             `json:"error,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo 存储了关于 HTTP 请求的上下文信息。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`        // 例如 "llm_error"、"vector_store_error"
	StatusCode int    `json:"status_code,omitempty"` // 相关的HTTP状态码
}
