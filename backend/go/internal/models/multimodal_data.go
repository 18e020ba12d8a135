package models

import (
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser  SpeakerRole = "user"  // 用户角色。
	SpeakerModel SpeakerRole = "model" // 模型角色。
	SpeakerTool  SpeakerRole = "tool"  // 工具角色，承载函数调用的结果。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	Parts []*Part     `json:"parts,omitempty"`
	Role  SpeakerRole `json:"role,omitempty"`
}

// NewTextContent 构造只含一个文本部分的消息。
func NewTextContent(role SpeakerRole, text string) Content {
	return Content{Role: role, Parts: []*Part{{Text: text}}}
}

// FunctionCalls 返回消息中所有的函数调用。
func (c *Content) FunctionCalls() []*FunctionCall {
	var calls []*FunctionCall
	for _, p := range c.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// Text 将所有非空文本部分以单个空格连接。
func (c *Content) Text() string {
	var texts []string
	for _, p := range c.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// GenerateContentRequest 是一次模型调用的完整输入。
type GenerateContentRequest struct {
	SystemInstruction string     `json:"systemInstruction,omitempty"`
	Contents          []Content  `json:"contents,omitempty"`
	Tools             []mcp.Tool `json:"tools,omitempty"`
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`
	CreateTime   time.Time `json:"createTime,omitempty"`
	ResponseID   string    `json:"responseId,omitempty"`
	ModelVersion string    `json:"modelVersion,omitempty"`
}

// First 返回第一个候选消息，没有候选时返回 nil。
func (r *GenerateContentResponse) First() *Content {
	if r == nil || len(r.Content) == 0 {
		return nil
	}
	return &r.Content[0]
}

// Part 定义了消息的单个部分。
type Part struct {
	// 可选。指示该部分是否来自模型的思考。
	Thought bool `json:"thought,omitempty"`
	// 可选。内联字节数据。
	InlineData *Blob `json:"inlineData,omitempty"`
	// 可选。基于 URI 的数据。
	FileData *FileData `json:"fileData,omitempty"`
	// 可选。模型请求的函数调用。
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
	// 可选。函数调用的结果，作为下一轮模型调用的上下文。
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	// 可选。文本部分。
	Text string `json:"text,omitempty"`
}

// Blob 包含了内联的二进制数据。
type Blob struct {
	Data     []byte `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// FileData 包含了基于 URI 的文件数据。
type FileData struct {
	FileURI  string `json:"fileUri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// FunctionCall 包含了模型预测的函数调用信息。
type FunctionCall struct {
	// 可选。OpenAI 等提供商返回的调用ID，结果需要带回同一个ID。
	ID   string         `json:"id,omitempty"`
	Args map[string]any `json:"args,omitempty"`
	Name string         `json:"name,omitempty"`
}

// FunctionResponse 包含了函数调用的结果输出。
// Response 使用 "output" 键表示输出，"error" 键表示错误。
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// Output 返回结果中的文本，优先 "output"，其次 "error"。
func (f *FunctionResponse) Output() string {
	if f == nil {
		return ""
	}
	if s, ok := f.Response["output"].(string); ok {
		return s
	}
	if s, ok := f.Response["error"].(string); ok {
		return s
	}
	return ""
}
