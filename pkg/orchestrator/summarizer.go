package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"kiroproxy/gateway/pkg/codec"
	"kiroproxy/gateway/pkg/credential"
	"kiroproxy/gateway/pkg/dialect"
	"kiroproxy/gateway/pkg/upstream"
)

// UpstreamSummarizer implements history.Summarizer by making a
// synthetic, non-streaming upstream call against the fast model named
// in history.Config.FastModel. It borrows whichever credential the
// pool currently selects for an empty session key — compaction is not
// itself bound to the caller's session affinity.
type UpstreamSummarizer struct {
	Pool      *credential.Pool
	Upstream  *upstream.Client
	FastModel string
	AgentMode string
	ClientVersion string
}

// NewUpstreamSummarizer constructs an UpstreamSummarizer.
func NewUpstreamSummarizer(pool *credential.Pool, up *upstream.Client, fastModel, agentMode, clientVersion string) *UpstreamSummarizer {
	return &UpstreamSummarizer{Pool: pool, Upstream: up, FastModel: fastModel, AgentMode: agentMode, ClientVersion: clientVersion}
}

// Summarize implements history.Summarizer.
func (s *UpstreamSummarizer) Summarize(ctx context.Context, turns []dialect.Turn) (string, error) {
	cred := s.Pool.NextAvailableExcludingSet(nil)
	if cred == nil {
		return "", fmt.Errorf("orchestrator: no credential available to summarize")
	}

	prompt := buildSummarizePrompt(turns)
	req := upstream.NewConversationRequest(prompt, s.FastModel, nil, nil, nil, nil)
	headers := upstream.BuildHeaders(cred.AccessToken(), cred.MachineID, s.AgentMode, s.ClientVersion)

	resp, err := s.Upstream.Dispatch(ctx, req, headers)
	if err != nil {
		return "", fmt.Errorf("orchestrator: summarize dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("orchestrator: summarize endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("orchestrator: read summarize response: %w", err)
	}

	result := codec.DecodeAll(body)
	return strings.Join(result.Texts, ""), nil
}

// buildSummarizePrompt renders the turns being dropped into a single
// prose instruction for the fast model.
func buildSummarizePrompt(turns []dialect.Turn) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation history concisely, preserving any facts, decisions, or open questions a continuation would need:\n\n")
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}
