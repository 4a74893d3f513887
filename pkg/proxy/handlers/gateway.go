package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"kiroproxy/gateway/pkg/classify"
	"kiroproxy/gateway/pkg/codec"
	"kiroproxy/gateway/pkg/dialect"
	"kiroproxy/gateway/pkg/dialect/chatcompletions"
	"kiroproxy/gateway/pkg/dialect/generatecontent"
	"kiroproxy/gateway/pkg/dialect/messages"
	"kiroproxy/gateway/pkg/modelnames"
	"kiroproxy/gateway/pkg/orchestrator"
	"kiroproxy/gateway/pkg/proxy/middleware"
	"kiroproxy/gateway/pkg/session"
)

// GatewayHandler serves the three protocol dialects named in spec §6,
// all driven by one *orchestrator.Orchestrator.
type GatewayHandler struct {
	Orch *orchestrator.Orchestrator
}

// NewGatewayHandler constructs a GatewayHandler.
func NewGatewayHandler(orch *orchestrator.Orchestrator) *GatewayHandler {
	return &GatewayHandler{Orch: orch}
}

func readBody(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// --- Dialect A: POST /v1/messages -----------------------------------

func (h *GatewayHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := readBody(r)
	if err != nil {
		messages.WriteError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}
	nr, err := messages.ToUpstream(raw)
	if err != nil {
		messages.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	meta := dialect.ResponseMeta{
		ID:             "msg_" + uuid.NewString(),
		RequestedModel: nr.Model,
		ResolvedModel:  modelnames.Resolve(nr.Model),
		Created:        time.Now().Unix(),
	}

	req := orchestrator.Request{
		Dialect:     dialect.KindMessages,
		InboundPath: r.URL.Path,
		Model:       nr.Model,
		UserContent: nr.UserContent,
		History:     nr.History,
		Tools:       nr.Tools,
		Images:      nr.Images,
		SessionKey:  session.DeriveKey(session.TurnsFromField(raw, "messages")),
		Stream:      nr.Stream,
	}

	h.Orch.Run(r.Context(), req, &messagesSink{w: w, flusher: flusherOf(w), meta: meta})
}

type messagesSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	meta    dialect.ResponseMeta
}

func (s *messagesSink) WriteResult(result codec.Result) error {
	resp := messages.FromEvents(result, s.meta)
	s.w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(s.w).Encode(resp)
}

func (s *messagesSink) WriteStream(ctx context.Context, events <-chan *codec.Event) error {
	setSSEHeaders(s.w)
	return messages.StreamEvents(ctx, events, s.meta, s.w, s.flusher)
}

func (s *messagesSink) WriteError(status int, errType classify.Type, message string) {
	messages.WriteError(s.w, status, string(errType), message)
}

// CountTokens implements POST /v1/messages/count_tokens: a simple
// char/4 estimate, per spec §6 — no upstream dispatch involved.
func (h *GatewayHandler) CountTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := readBody(r)
	if err != nil {
		messages.WriteError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}
	nr, err := messages.ToUpstream(raw)
	if err != nil {
		messages.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	total := len(nr.UserContent)
	for _, t := range nr.History {
		total += len(t.Text)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"input_tokens": total / 4})
}

// --- Dialect B: POST /v1/chat/completions, POST /v1/responses -------

func (h *GatewayHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := readBody(r)
	if err != nil {
		chatcompletions.WriteError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}
	nr, err := chatcompletions.ToUpstream(raw)
	if err != nil {
		chatcompletions.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	meta := dialect.ResponseMeta{
		ID:             "chatcmpl-" + middleware.GetRequestID(r.Context()),
		RequestedModel: nr.Model,
		ResolvedModel:  modelnames.Resolve(nr.Model),
		Created:        time.Now().Unix(),
	}

	req := orchestrator.Request{
		Dialect:     dialect.KindChatCompletions,
		InboundPath: r.URL.Path,
		Model:       nr.Model,
		UserContent: nr.UserContent,
		History:     nr.History,
		Tools:       nr.Tools,
		SessionKey:  session.DeriveKey(session.TurnsFromField(raw, "messages")),
		Stream:      nr.Stream,
	}

	h.Orch.Run(r.Context(), req, &chatSink{w: w, flusher: flusherOf(w), meta: meta})
}

type chatSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	meta    dialect.ResponseMeta
}

func (s *chatSink) WriteResult(result codec.Result) error {
	resp := chatcompletions.FromEvents(result, s.meta)
	s.w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(s.w).Encode(resp)
}

func (s *chatSink) WriteStream(ctx context.Context, events <-chan *codec.Event) error {
	setSSEHeaders(s.w)
	return chatcompletions.StreamEvents(ctx, events, s.meta, s.w, s.flusher)
}

func (s *chatSink) WriteError(status int, errType classify.Type, message string) {
	chatcompletions.WriteError(s.w, status, string(errType), message)
}

// --- Dialect C: POST /v1/models/{model}:generateContent --------------

func (h *GatewayHandler) GenerateContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	model, stream := parseGenerateContentPath(r.URL.Path)
	raw, err := readBody(r)
	if err != nil {
		generatecontent.WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "failed to read request body")
		return
	}
	nr, err := generatecontent.ToUpstream(raw, model, stream)
	if err != nil {
		generatecontent.WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	req := orchestrator.Request{
		Dialect:     dialect.KindGenerateContent,
		InboundPath: r.URL.Path,
		Model:       nr.Model,
		UserContent: nr.UserContent,
		History:     nr.History,
		SessionKey:  session.DeriveKey(session.TurnsFromField(raw, "contents")),
		Stream:      nr.Stream,
	}

	h.Orch.Run(r.Context(), req, &generateContentSink{w: w, flusher: flusherOf(w)})
}

// parseGenerateContentPath extracts the model id and stream flag from
// a path of the form ".../models/{model}:generateContent" or
// ".../models/{model}:streamGenerateContent".
func parseGenerateContentPath(path string) (model string, stream bool) {
	segment := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		segment = path[idx+1:]
	}
	switch {
	case strings.HasSuffix(segment, ":streamGenerateContent"):
		return strings.TrimSuffix(segment, ":streamGenerateContent"), true
	case strings.HasSuffix(segment, ":generateContent"):
		return strings.TrimSuffix(segment, ":generateContent"), false
	default:
		return segment, false
	}
}

type generateContentSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *generateContentSink) WriteResult(result codec.Result) error {
	resp := generatecontent.FromEvents(result)
	s.w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(s.w).Encode(resp)
}

func (s *generateContentSink) WriteStream(ctx context.Context, events <-chan *codec.Event) error {
	s.w.Header().Set("Content-Type", "application/json")
	return generatecontent.StreamEvents(ctx, events, s.w, s.flusher)
}

func (s *generateContentSink) WriteError(status int, errType classify.Type, message string) {
	generatecontent.WriteError(s.w, status, string(errType), message)
}

// --- GET /v1/models ----------------------------------------------------

// ModelsHandler serves GET /v1/models: the upstream model list if a
// credential can fetch it, else a fixed fallback, plus duplicates
// prefixed with the pseudo-stream marker (spec §6).
type ModelsHandler struct {
	Orch *orchestrator.Orchestrator
}

func NewModelsHandler(orch *orchestrator.Orchestrator) *ModelsHandler {
	return &ModelsHandler{Orch: orch}
}

var fallbackModels = []string{
	modelnames.Sonnet4, modelnames.Sonnet45, modelnames.Haiku45, modelnames.Opus45,
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := h.fetchUpstreamModels(r.Context())
	if len(names) == 0 {
		names = fallbackModels
	}

	out := make([]map[string]any, 0, len(names)*2)
	for _, n := range names {
		out = append(out, map[string]any{"id": n, "object": "model"})
		out = append(out, map[string]any{"id": modelnames.PseudoStreamPrefix + n, "object": "model"})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": out})
}

func (h *ModelsHandler) fetchUpstreamModels(ctx context.Context) []string {
	cred := h.Orch.Pool.Select("")
	if cred == nil {
		return nil
	}
	data, status, err := h.Orch.Upstream.ProbeModels(ctx, cred.AccessToken(), cred.MachineID, h.Orch.Cfg.AgentMode, h.Orch.Cfg.ClientVersion)
	if err != nil || status != http.StatusOK {
		slog.WarnContext(ctx, "model list probe failed", "status", status, "error", err)
		return nil
	}
	var parsed struct {
		Models []struct {
			ModelID string `json:"modelId"`
		} `json:"models"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.ModelID)
	}
	return names
}

func flusherOf(w http.ResponseWriter) http.Flusher {
	if f, ok := w.(http.Flusher); ok {
		return f
	}
	return nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if f := flusherOf(w); f != nil {
		f.Flush()
	}
}
