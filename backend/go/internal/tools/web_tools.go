package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (r *Registry) searchWebTool() server.ServerTool {
	tool := mcp.NewTool("search_web",
		mcp.WithDescription("A search engine optimized for comprehensive, accurate, and trusted results. Useful for when you need to answer questions about current events. Input should be a search query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
	)
	return server.ServerTool{Tool: tool, Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := trimmedArg(req, "query")
		if query == "" {
			return failure("Query di ricerca vuota"), nil
		}
		results, err := r.deps.Search.Search(ctx, query)
		if err != nil {
			return failure("Errore nella ricerca web: %v", err), nil
		}
		raw, err := json.Marshal(results)
		if err != nil {
			return failure("Errore nella ricerca web: %v", err), nil
		}
		return text(string(raw)), nil
	}}
}

func (r *Registry) readWebPageTool() server.ServerTool {
	tool := mcp.NewTool("read_web_page",
		mcp.WithDescription("Download a web page and return its main content as markdown. Use it after search_web when the snippet is not enough."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL of the page")),
	)
	return server.ServerTool{Tool: tool, Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url := trimmedArg(req, "url")
		if url == "" {
			return failure("URL obbligatorio"), nil
		}
		md, err := r.deps.Pages.Read(ctx, url)
		if err != nil {
			return failure("Errore nella lettura della pagina: %v", err), nil
		}
		if md == "" {
			return text("📄 La pagina non contiene testo leggibile."), nil
		}
		return text(md), nil
	}}
}
