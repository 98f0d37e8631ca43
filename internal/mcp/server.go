// Package mcp provides an MCP (Model Context Protocol) server for emb.
// This allows AI agents to compute embeddings and similarities through MCP
// tools instead of CLI commands.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hargabyte/emb/internal/cache"
	"github.com/hargabyte/emb/internal/embedder"
	"github.com/hargabyte/emb/internal/models"
	"github.com/hargabyte/emb/internal/vectors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with emb-specific functionality
type Server struct {
	mcpServer    *server.MCPServer
	engine       embedder.Embedder
	cache        *cache.Cache
	modelName    string
	tools        map[string]bool
	lastActivity time.Time
	timeout      time.Duration
	mu           sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Engine    embedder.Embedder // Embedding engine (required)
	Cache     *cache.Cache      // Embedding cache, enables emb_search (optional)
	ModelName string            // Catalog name of the loaded model
	Tools     []string          // Which tools to expose (empty = all)
	Timeout   time.Duration     // Inactivity timeout (0 = no timeout)
}

// DefaultTools is the default set of tools to expose
var DefaultTools = []string{"emb_embed", "emb_embed_batch", "emb_similarity", "emb_models"}

// AllTools lists all available tools
var AllTools = []string{"emb_embed", "emb_embed_batch", "emb_similarity", "emb_search", "emb_models"}

// New creates a new MCP server for emb
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("mcp server requires an engine")
	}

	mcpServer := server.NewMCPServer(
		"emb",
		embedder.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcpServer:    mcpServer,
		engine:       cfg.Engine,
		cache:        cfg.Cache,
		modelName:    cfg.ModelName,
		tools:        make(map[string]bool),
		lastActivity: time.Now(),
		timeout:      cfg.Timeout,
	}

	// Determine which tools to register
	toolsToRegister := cfg.Tools
	if len(toolsToRegister) == 0 {
		toolsToRegister = DefaultTools
	}

	// Register tools
	for _, toolName := range toolsToRegister {
		if err := s.registerTool(toolName); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", toolName, err)
		}
		s.tools[toolName] = true
	}

	return s, nil
}

// registerTool registers a single tool with the MCP server
func (s *Server) registerTool(name string) error {
	switch name {
	case "emb_embed":
		return s.registerEmbedTool()
	case "emb_embed_batch":
		return s.registerEmbedBatchTool()
	case "emb_similarity":
		return s.registerSimilarityTool()
	case "emb_search":
		return s.registerSearchTool()
	case "emb_models":
		return s.registerModelsTool()
	default:
		return fmt.Errorf("unknown tool: %s", name)
	}
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	// Start timeout checker if timeout is set
	if s.timeout > 0 {
		go s.timeoutChecker()
	}

	return server.ServeStdio(s.mcpServer)
}

// timeoutChecker monitors for inactivity and exits if timeout exceeded
func (s *Server) timeoutChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		elapsed := time.Since(s.lastActivity)
		s.mu.RUnlock()

		if elapsed > s.timeout {
			fmt.Fprintf(os.Stderr, "emb serve: timeout after %v of inactivity\n", s.timeout)
			os.Exit(0)
		}
	}
}

// updateActivity updates the last activity timestamp
func (s *Server) updateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Close closes the server and its resources
func (s *Server) Close() error {
	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}

// ListTools returns the list of registered tools
func (s *Server) ListTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]string, 0, len(s.tools))
	for t := range s.tools {
		tools = append(tools, t)
	}
	return tools
}

// ToolSchema describes a tool's name, description, and parameters.
type ToolSchema struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Parameters  []ParameterSchema `json:"parameters" yaml:"parameters"`
}

// ParameterSchema describes a single tool parameter.
type ParameterSchema struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// toolSchemaRegistry holds the schema definitions for all tools.
// These mirror the mcp.NewTool() definitions in the register*Tool() functions.
var toolSchemaRegistry = map[string]ToolSchema{
	"emb_embed": {
		Name:        "emb_embed",
		Description: "Compute the embedding vector for a single text.",
		Parameters: []ParameterSchema{
			{Name: "text", Type: "string", Description: "Text to embed", Required: true},
		},
	},
	"emb_embed_batch": {
		Name:        "emb_embed_batch",
		Description: "Compute embedding vectors for several texts in one call. The batch succeeds or fails as a whole.",
		Parameters: []ParameterSchema{
			{Name: "texts", Type: "string", Description: "Texts to embed, one per line", Required: true},
		},
	},
	"emb_similarity": {
		Name:        "emb_similarity",
		Description: "Compute the cosine similarity between two texts.",
		Parameters: []ParameterSchema{
			{Name: "text_a", Type: "string", Description: "First text", Required: true},
			{Name: "text_b", Type: "string", Description: "Second text", Required: true},
		},
	},
	"emb_search": {
		Name:        "emb_search",
		Description: "Search previously embedded texts for the nearest neighbors of a query.",
		Parameters: []ParameterSchema{
			{Name: "query", Type: "string", Description: "Query text", Required: true},
			{Name: "limit", Type: "number", Description: "Maximum results (default: 10)"},
		},
	},
	"emb_models": {
		Name:        "emb_models",
		Description: "List the available embedding models and the one currently loaded.",
		Parameters:  []ParameterSchema{},
	},
}

// GetToolSchemas returns schemas for all registered tools.
func (s *Server) GetToolSchemas() []ToolSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schemas := make([]ToolSchema, 0, len(s.tools))
	for name := range s.tools {
		if schema, ok := toolSchemaRegistry[name]; ok {
			schemas = append(schemas, schema)
		}
	}
	return schemas
}

// CallTool dispatches a tool call by name with the given arguments.
// Returns the JSON result string or an error.
func (s *Server) CallTool(name string, args map[string]interface{}) (string, error) {
	s.mu.RLock()
	registered := s.tools[name]
	s.mu.RUnlock()

	if !registered {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	switch name {
	case "emb_embed":
		text, ok := args["text"].(string)
		if !ok {
			return "", fmt.Errorf("text parameter is required")
		}
		return s.executeEmbed(text)

	case "emb_embed_batch":
		texts, ok := args["texts"].(string)
		if !ok || strings.TrimSpace(texts) == "" {
			return "", fmt.Errorf("texts parameter is required")
		}
		return s.executeEmbedBatch(splitLines(texts))

	case "emb_similarity":
		textA, okA := args["text_a"].(string)
		textB, okB := args["text_b"].(string)
		if !okA || !okB {
			return "", fmt.Errorf("text_a and text_b parameters are required")
		}
		return s.executeSimilarity(textA, textB)

	case "emb_search":
		query, ok := args["query"].(string)
		if !ok || query == "" {
			return "", fmt.Errorf("query parameter is required")
		}
		limit := 10
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		return s.executeSearch(query, limit)

	case "emb_models":
		return s.executeModels()

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// splitLines splits newline-separated input into non-empty trimmed lines.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// registerEmbedTool registers the emb_embed tool
func (s *Server) registerEmbedTool() error {
	tool := mcp.NewTool("emb_embed",
		mcp.WithDescription("Compute the embedding vector for a single text."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to embed"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleEmbed)
	return nil
}

// registerEmbedBatchTool registers the emb_embed_batch tool
func (s *Server) registerEmbedBatchTool() error {
	tool := mcp.NewTool("emb_embed_batch",
		mcp.WithDescription("Compute embedding vectors for several texts in one call. The batch succeeds or fails as a whole."),
		mcp.WithString("texts",
			mcp.Required(),
			mcp.Description("Texts to embed, one per line"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleEmbedBatch)
	return nil
}

// registerSimilarityTool registers the emb_similarity tool
func (s *Server) registerSimilarityTool() error {
	tool := mcp.NewTool("emb_similarity",
		mcp.WithDescription("Compute the cosine similarity between two texts."),
		mcp.WithString("text_a",
			mcp.Required(),
			mcp.Description("First text"),
		),
		mcp.WithString("text_b",
			mcp.Required(),
			mcp.Description("Second text"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleSimilarity)
	return nil
}

// registerSearchTool registers the emb_search tool
func (s *Server) registerSearchTool() error {
	tool := mcp.NewTool("emb_search",
		mcp.WithDescription("Search previously embedded texts for the nearest neighbors of a query."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Query text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 10)"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleSearch)
	return nil
}

// registerModelsTool registers the emb_models tool
func (s *Server) registerModelsTool() error {
	tool := mcp.NewTool("emb_models",
		mcp.WithDescription("List the available embedding models and the one currently loaded."),
	)

	s.mcpServer.AddTool(tool, s.handleModels)
	return nil
}

// Tool handlers

func (s *Server) handleEmbed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	text, ok := args["text"].(string)
	if !ok {
		return mcp.NewToolResultError("text parameter is required"), nil
	}

	result, err := s.executeEmbed(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleEmbedBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	texts, ok := args["texts"].(string)
	if !ok || strings.TrimSpace(texts) == "" {
		return mcp.NewToolResultError("texts parameter is required"), nil
	}

	result, err := s.executeEmbedBatch(splitLines(texts))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleSimilarity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	textA, okA := args["text_a"].(string)
	textB, okB := args["text_b"].(string)
	if !okA || !okB {
		return mcp.NewToolResultError("text_a and text_b parameters are required"), nil
	}

	result, err := s.executeSimilarity(textA, textB)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := 10
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	result, err := s.executeSearch(query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	result, err := s.executeModels()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

// Tool implementations

type embedResult struct {
	Model     string    `json:"model"`
	Dims      int       `json:"dims"`
	Embedding []float32 `json:"embedding"`
}

func (s *Server) executeEmbed(text string) (string, error) {
	vec, err := s.engine.Embed(context.Background(), text)
	if err != nil {
		return "", err
	}

	s.cachePut(text, vec)

	return marshalResult(embedResult{
		Model:     s.engine.ModelVersion(),
		Dims:      len(vec),
		Embedding: vec,
	})
}

type embedBatchResult struct {
	Model      string      `json:"model"`
	Count      int         `json:"count"`
	Dims       int         `json:"dims"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (s *Server) executeEmbedBatch(texts []string) (string, error) {
	vecs, err := s.engine.EmbedBatch(context.Background(), texts)
	if err != nil {
		return "", err
	}

	for i, text := range texts {
		s.cachePut(text, vecs[i])
	}

	dims := 0
	if len(vecs) > 0 {
		dims = len(vecs[0])
	}
	return marshalResult(embedBatchResult{
		Model:      s.engine.ModelVersion(),
		Count:      len(vecs),
		Dims:       dims,
		Embeddings: vecs,
	})
}

type similarityResult struct {
	Model      string  `json:"model"`
	Similarity float64 `json:"similarity"`
}

func (s *Server) executeSimilarity(textA, textB string) (string, error) {
	vecs, err := s.engine.EmbedBatch(context.Background(), []string{textA, textB})
	if err != nil {
		return "", err
	}

	return marshalResult(similarityResult{
		Model:      s.engine.ModelVersion(),
		Similarity: vectors.Cosine(vecs[0], vecs[1]),
	})
}

type searchResult struct {
	Model   string                   `json:"model"`
	Query   string                   `json:"query"`
	Results []cache.SimilarityResult `json:"results"`
}

func (s *Server) executeSearch(query string, limit int) (string, error) {
	if s.cache == nil {
		return "", fmt.Errorf("search requires the embedding cache, which is disabled")
	}

	vec, err := s.engine.Embed(context.Background(), query)
	if err != nil {
		return "", err
	}

	results, err := s.cache.FindSimilar(vec, s.engine.ModelVersion(), limit)
	if err != nil {
		return "", err
	}

	return marshalResult(searchResult{
		Model:   s.engine.ModelVersion(),
		Query:   query,
		Results: results,
	})
}

type modelInfo struct {
	Name       string `json:"name"`
	HubID      string `json:"hub_id"`
	Dimensions int    `json:"dimensions"`
	Current    bool   `json:"current"`
}

type modelsResult struct {
	Models []modelInfo `json:"models"`
}

func (s *Server) executeModels() (string, error) {
	result := modelsResult{}
	for _, m := range models.All() {
		result.Models = append(result.Models, modelInfo{
			Name:       m.Name,
			HubID:      m.HubID,
			Dimensions: m.Dimensions,
			Current:    m.Name == s.modelName,
		})
	}

	return marshalResult(result)
}

// cachePut stores an embedding in the cache, ignoring failures; the cache
// is an optimization, not a source of truth.
func (s *Server) cachePut(text string, vec []float32) {
	if s.cache == nil {
		return
	}
	hash := embedder.ContentHash(text)
	if err := s.cache.Put(hash, s.engine.ModelVersion(), text, vec); err != nil {
		fmt.Fprintf(os.Stderr, "emb serve: cache put: %v\n", err)
	}
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}
