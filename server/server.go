// Package server exposes the chat backend over HTTP: a health check and a
// streaming chat endpoint that delivers the agent loop's progress as
// newline-delimited JSON.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/sdace9719/mcp-devops/agent"
	"github.com/sdace9719/mcp-devops/config"
	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/llm"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// ChatMessage is one entry of the inbound conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat_stream.
type ChatRequest struct {
	Provider string        `json:"provider"`
	Messages []ChatMessage `json:"messages"`
	// Model optionally overrides the configured default for the provider.
	Model string `json:"model,omitempty"`
}

// Server wires the HTTP surface to the agent loop.
type Server struct {
	cfg        *config.Config
	cache      *registry.Cache
	dispatcher *tools.Dispatcher

	// newClient builds the provider client for a request; swapped out in
	// tests.
	newClient func(ctx context.Context, provider, model string) (llm.Client, error)
}

// New creates a Server over the given configuration and registry.
func New(cfg *config.Config, cache *registry.Cache, client registry.Client) *Server {
	s := &Server{
		cfg:        cfg,
		cache:      cache,
		dispatcher: tools.NewDispatcher(client),
	}
	s.newClient = s.buildClient
	return s
}

// Handler returns the HTTP routing for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat_stream", s.handleChatStream)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// resolveModel picks the request override or the configured default for the
// provider.
func (s *Server) resolveModel(provider, override string) string {
	if override != "" {
		return override
	}
	switch provider {
	case "gpt", "openai":
		return s.cfg.OpenAIModel
	case "gemini":
		return s.cfg.GeminiModel
	case "anthropic":
		return s.cfg.AnthropicModel
	case "bedrock":
		return s.cfg.BedrockModel
	}
	return ""
}

// buildClient instantiates the provider selected by the request. Only
// instantiation is provider-specific; the tool loop is generic.
func (s *Server) buildClient(ctx context.Context, provider, model string) (llm.Client, error) {
	switch provider {
	case "gpt", "openai":
		return llm.NewOpenAIClient(s.cfg.OpenAIKey, model)
	case "gemini":
		return llm.NewGeminiClient(ctx, s.cfg.GeminiKey, model)
	case "anthropic":
		return llm.NewAnthropicClient(s.cfg.AnthropicKey, model)
	case "bedrock":
		return llm.NewBedrockClient(ctx, model)
	case "mock":
		return &llm.MockClient{}, nil
	}
	return nil, errors.New("unknown provider '%s'", provider)
}

// handleChatStream runs one agent turn, streaming each progress event as a
// JSON line and flushing it immediately so the caller can render before the
// turn completes. The stream always ends with exactly one final or error
// record.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages must not be empty", http.StatusBadRequest)
		return
	}
	log.Printf("chat_stream: provider=%s messages=%d", req.Provider, len(req.Messages))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	writeEvent := func(ev agent.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			data, _ = json.Marshal(agent.Event{Type: "error", Error: "serialize: " + err.Error()})
		}
		_, _ = w.Write(append(data, '\n'))
		flusher.Flush()
	}

	model := s.resolveModel(req.Provider, req.Model)
	client, err := s.newClient(r.Context(), req.Provider, model)
	if err != nil {
		log.Printf("chat_stream: provider setup failed: %v", err)
		writeEvent(agent.Event{Type: "error", Error: err.Error()})
		return
	}

	loop := &agent.Loop{
		Client:       client,
		Cache:        s.cache,
		Dispatcher:   s.dispatcher,
		Model:        model,
		MaxToolTurns: s.cfg.MaxToolTurns,
	}

	em := agent.NewEmitter()
	// The request context cancels the loop when the caller disconnects.
	go loop.Run(r.Context(), toSessionMessages(req.Messages), em)

	for ev := range em.Events() {
		writeEvent(ev)
	}
}

// toSessionMessages converts the wire history into session messages,
// dropping roles a caller cannot legitimately submit.
func toSessionMessages(msgs []ChatMessage) []session.Message {
	var out []session.Message
	for _, m := range msgs {
		switch m.Role {
		case "user", "assistant":
			out = append(out, session.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
