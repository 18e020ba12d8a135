package llm

import (
	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

// ConvertMCPToolsToOpenAI 把 MCP 工具定义转换为 OpenAI 的函数工具。
// MCP 的输入 schema 本身就是 JSON Schema，直接透传。
func ConvertMCPToolsToOpenAI(tools []mcp.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  openAISchema(tool.InputSchema),
			},
		})
	}
	return out
}

func openAISchema(in mcp.ToolInputSchema) map[string]interface{} {
	schema := map[string]interface{}{"type": "object"}
	props := in.Properties
	if props == nil {
		props = map[string]any{}
	}
	schema["properties"] = props
	if len(in.Required) > 0 {
		schema["required"] = in.Required
	}
	return schema
}
