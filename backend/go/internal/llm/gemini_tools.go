package llm

import (
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/mark3labs/mcp-go/mcp"
)

// ConvertMCPToolsToGemini 把 MCP 工具定义转换为 Gemini 的 FunctionDeclaration。
func ConvertMCPToolsToGemini(tools []mcp.Tool) ([]*genai.FunctionDeclaration, error) {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(tool.InputSchema.Properties) > 0 {
			params, err := objectSchema(tool.InputSchema.Properties, tool.InputSchema.Required)
			if err != nil {
				return nil, fmt.Errorf("转换工具 '%s' 的参数失败: %w", tool.Name, err)
			}
			decl.Parameters = params
		}
		declarations = append(declarations, decl)
	}
	return declarations, nil
}

func objectSchema(props map[string]any, required []string) (*genai.Schema, error) {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(props)),
		Required:   required,
	}
	for name, raw := range props {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("参数 %s 格式非法", name)
		}
		prop, err := propertySchema(m)
		if err != nil {
			return nil, fmt.Errorf("参数 %s: %w", name, err)
		}
		s.Properties[name] = prop
	}
	return s, nil
}

func propertySchema(m map[string]any) (*genai.Schema, error) {
	typ, _ := m["type"].(string)
	s := &genai.Schema{}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	s.Enum = stringList(m["enum"])

	switch typ {
	case "string":
		s.Type = genai.TypeString
		if len(s.Enum) > 0 {
			s.Format = "enum"
		}
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		if items, ok := m["items"].(map[string]any); ok {
			itemSchema, err := propertySchema(items)
			if err != nil {
				return nil, err
			}
			s.Items = itemSchema
		}
	case "object":
		props, _ := m["properties"].(map[string]any)
		obj, err := objectSchema(props, stringList(m["required"]))
		if err != nil {
			return nil, err
		}
		obj.Description = s.Description
		return obj, nil
	case "":
		return nil, fmt.Errorf("未指定参数类型")
	default:
		return nil, fmt.Errorf("不支持的参数类型: %s", typ)
	}
	return s, nil
}

func stringList(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, x := range vs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
