package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Config describes how to reach the upstream endpoint.
type Config struct {
	AssistantURL string
	ModelsURL    string
	AgentMode    string // "vibe"; sent as x-amzn-kiro-agent-mode
	ClientVersion string // e.g. "0.8.0", embedded in the user-agent string
	Timeout      time.Duration
}

// Client dispatches requests against the upstream endpoint. TLS
// verification is disabled on its transport only — this never affects
// the gateway's own inbound listener. See design notes: this matches
// observed upstream behavior and is a known, documented compromise,
// not an oversight.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client with a dedicated transport. A fresh transport
// per Client (rather than sharing http.DefaultTransport) keeps the
// InsecureSkipVerify scope limited to upstream traffic.
func New(cfg Config) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // matches upstream's observed cert posture, see design notes
		ForceAttemptHTTP2: true,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// BuildHeaders assembles the header set the upstream requires,
// including the machine-id-fingerprinted user agent.
func BuildHeaders(accessToken, machineID, agentMode, clientVersion string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("x-amzn-codewhisperer-optout", "true")
	h.Set("x-amzn-kiro-agent-mode", agentMode)
	h.Set("x-amz-user-agent", fmt.Sprintf("aws-sdk-js/1.0.27 KiroIDE-%s-%s", clientVersion, machineID))
	h.Set("amz-sdk-invocation-id", uuid.NewString())
	h.Set("amz-sdk-request", "attempt=1; max=3")
	h.Set("Authorization", "Bearer "+accessToken)
	return h
}

// NewConversationRequest builds a fresh upstream Request envelope for
// one call: a new conversation id and agent-continuation id every
// time, per the upstream contract (it is not a persistent session).
func NewConversationRequest(userContent, modelID string, history []HistoryTurn, tools []ToolSchema, toolResults []ToolResult, images []ImageAttachment) Request {
	return Request{
		ConversationState: ConversationState{
			AgentContinuationID: uuid.NewString(),
			AgentTaskType:       AgentTaskTypeVibe,
			ChatTriggerType:     ChatTriggerTypeManual,
			ConversationID:      uuid.NewString(),
			CurrentMessage: CurrentMessage{
				UserInputMessage: UserInputMessage{
					Content: userContent,
					ModelID: modelID,
					Origin:  OriginAIEditor,
					UserInputMessageContext: UserInputMessageContext{
						Tools:       tools,
						ToolResults: toolResults,
					},
					Images: images,
				},
			},
			History: history,
		},
	}
}

// Dispatch sends req to the upstream assistant endpoint and returns
// the raw event-stream body. Callers decode it with pkg/codec, either
// via codec.DecodeAll on the fully read body or by feeding resp.Body
// chunks to a codec.Decoder for true streaming.
func (c *Client) Dispatch(ctx context.Context, req Request, headers http.Header) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AssistantURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	httpReq.Header = headers

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: dispatch: %w", err)
	}
	return resp, nil
}

// ProbeModels issues a lightweight GET against the model-list endpoint,
// used both by the credential pool's health probe and by the GET
// /v1/models fallback. It has its own short timeout independent of
// cfg.Timeout (bounded at 30s end-to-end per the concurrency model).
func (c *Client) ProbeModels(ctx context.Context, accessToken, machineID, agentMode, clientVersion string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ModelsURL+"?origin="+OriginAIEditor, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("upstream: build probe request: %w", err)
	}
	httpReq.Header = BuildHeaders(accessToken, machineID, agentMode, clientVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("upstream: probe: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("upstream: read probe response: %w", err)
	}
	return data, resp.StatusCode, nil
}
