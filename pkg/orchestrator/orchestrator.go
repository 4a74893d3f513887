// Package orchestrator implements the per-request procedure that ties
// the credential pool, rate limiter, history manager, and upstream
// client together (spec §4.8): select a credential, translate,
// dispatch, classify the outcome, and retry/fail over/surface per the
// decision table in §4.9.
//
// Grounded on pkg/proxy/handlers/chat.go's handleChatRequest/
// handleStreamRequest request lifecycle (select → convert → dispatch
// → log → respond), generalized from a single-provider HTTP proxy
// into the credential-pool failover loop this gateway needs, and on
// digitallysavvy-go-ai's pkg/internal/retry/retry.go for the
// exponential-backoff shape used on transient server errors.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kiroproxy/gateway/pkg/classify"
	"kiroproxy/gateway/pkg/codec"
	"kiroproxy/gateway/pkg/credential"
	"kiroproxy/gateway/pkg/dialect"
	"kiroproxy/gateway/pkg/history"
	"kiroproxy/gateway/pkg/modelnames"
	"kiroproxy/gateway/pkg/ratelimit"
	"kiroproxy/gateway/pkg/upstream"
)

// Config holds the orchestrator's runtime-tunable knobs.
type Config struct {
	MaxRetries int // spec default 2

	// RefreshWindow is how close to expiry (step 3) triggers a
	// pre-emptive, non-fatal refresh attempt. Spec default 5 minutes.
	RefreshWindow time.Duration

	// PseudoStreamInterval paces the buffered-then-chunked emission
	// cadence.
	PseudoStreamInterval time.Duration

	StreamTimeout    time.Duration // default 300s, end-to-end
	NonStreamTimeout time.Duration // default 120s
	BackoffBase      time.Duration // default 500ms
	BackoffFactor    float64       // default 2.0

	AgentMode     string
	ClientVersion string
}

// DefaultConfig returns the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           2,
		RefreshWindow:        5 * time.Minute,
		PseudoStreamInterval: 120 * time.Millisecond,
		StreamTimeout:        300 * time.Second,
		NonStreamTimeout:     120 * time.Second,
		BackoffBase:          500 * time.Millisecond,
		BackoffFactor:        2.0,
		AgentMode:            "vibe",
		ClientVersion:        "0.8.0",
	}
}

// FlowRecord is the per-request observability record emitted at the
// hooks named in spec §3 ("FlowRecord ... not consumed by the core's
// control flow; emitted at defined hooks"). It carries no control-flow
// meaning to the orchestrator itself.
type FlowRecord struct {
	Protocol     dialect.Kind
	InboundPath  string
	CredentialID string
	StartedAt    time.Time
	FinishedAt   time.Time
	Stream       bool
	PseudoStream bool
	PromptChars  int
	ChunkCount   int
	StopReason   string
	ErrorType    classify.Type
	ErrorMessage string
}

// FlowRecorder is the sink FlowRecords are emitted to. Implemented by
// pkg/flowlog.
type FlowRecorder interface {
	Record(ctx context.Context, rec FlowRecord)
}

// nopRecorder discards records; used when no recorder is configured.
type nopRecorder struct{}

func (nopRecorder) Record(context.Context, FlowRecord) {}

// ResponseSink lets the orchestrator stay dialect-agnostic: each
// inbound HTTP handler builds one wrapping its dialect adapter's
// FromEvents/StreamEvents/WriteError functions and its own
// http.ResponseWriter.
type ResponseSink interface {
	// WriteResult consumes a fully decoded Result (used for non-stream
	// and buffered-then-chunked/pseudo-stream dispatch once the whole
	// upstream body has been read) and writes the dialect's response.
	WriteResult(result codec.Result) error
	// WriteStream consumes events as they arrive (true streaming) and
	// writes the dialect's incremental framing. Returning an error mid
	// stream is terminal: bytes have already reached the client.
	WriteStream(ctx context.Context, events <-chan *codec.Event) error
	// WriteError writes a dialect-shaped HTTP error response.
	WriteError(status int, errType classify.Type, message string)
}

// Request is the dialect-agnostic input to Run, already translated by
// the caller's adapter and passed through the history manager is the
// orchestrator's own job (step 5).
type Request struct {
	Dialect     dialect.Kind
	InboundPath string
	Model       string // external name, pre-resolution
	UserContent string
	History     []dialect.Turn
	Tools       []dialect.ToolSpec
	ToolResults []dialect.ToolResult
	Images      []dialect.Image
	SessionKey  string
	Stream      bool
}

// Orchestrator wires the shared singletons one request worker needs.
// All fields are safe for concurrent use by many goroutines; the
// orchestrator itself holds no per-request state.
type Orchestrator struct {
	Pool       *credential.Pool
	Limiter    *ratelimit.Limiter
	History    *history.Manager
	Upstream   *upstream.Client
	Refresher  credential.TokenRefresher // may be nil: refresh step becomes a no-op
	Recorder   FlowRecorder
	Cfg        Config
}

// New constructs an Orchestrator. recorder may be nil (defaults to a
// discarding recorder).
func New(pool *credential.Pool, limiter *ratelimit.Limiter, hist *history.Manager, up *upstream.Client, refresher credential.TokenRefresher, recorder FlowRecorder, cfg Config) *Orchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{Pool: pool, Limiter: limiter, History: hist, Upstream: up, Refresher: refresher, Recorder: recorder, Cfg: cfg}
}

// Run executes the full per-request procedure (spec §4.8 steps 1-8)
// and writes the outcome through sink. It has no return value: every
// outcome, including the 503 written when no credential is available,
// goes through sink.WriteResult/WriteStream/WriteError.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink ResponseSink) {
	rec := FlowRecord{Protocol: req.Dialect, InboundPath: req.InboundPath, StartedAt: time.Now(), Stream: req.Stream}
	defer func() {
		rec.FinishedAt = time.Now()
		o.Recorder.Record(ctx, rec)
	}()

	// Step 1: resolve model name, detect pseudo-stream mode.
	stripped, pseudoStream := modelnames.StripPseudoStream(req.Model)
	resolvedModel := modelnames.Resolve(stripped)
	rec.PseudoStream = pseudoStream

	excluded := map[string]bool{}
	turns := req.History

	for attempt := 0; attempt <= o.Cfg.MaxRetries; attempt++ {
		// Step 2: select credential.
		cred := o.selectCredential(req.SessionKey, excluded)
		if cred == nil {
			sink.WriteError(http.StatusServiceUnavailable, classify.ServiceUnavailable, "no credential available to serve this request")
			return
		}
		rec.CredentialID = cred.ID

		// Step 3: pre-emptive refresh, non-fatal.
		o.maybeRefresh(ctx, cred)

		// Step 4: rate-limit check; sleep if needed.
		o.waitForRateLimit(ctx, cred.ID)

		// Step 5: history management + invariant repair.
		processed := o.History.PreProcess(ctx, turns)
		rec.PromptChars = len(req.UserContent)

		upReq := buildUpstreamRequest(req, processed, resolvedModel)
		headers := upstream.BuildHeaders(cred.AccessToken(), cred.MachineID, o.Cfg.AgentMode, o.Cfg.ClientVersion)

		dispatchCtx, cancel := context.WithTimeout(ctx, o.dispatchTimeout(req.Stream, pseudoStream))
		resp, err := o.Upstream.Dispatch(dispatchCtx, upReq, headers)

		if err != nil {
			cancel()
			cls := classifyTransportError(err)
			if o.handleFailure(ctx, req.SessionKey, cred, cls, excluded, &attempt) {
				continue
			}
			rec.ErrorType, rec.ErrorMessage = cls.Type, cls.UserMessage
			sink.WriteError(http.StatusBadGateway, cls.Type, cls.UserMessage)
			return
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			cancel()
			cls := classify.Classify(resp.StatusCode, string(body))

			if cls.Type == classify.ContentTooLong {
				shortened, progressed := o.History.HandleLengthError(processed, attempt)
				if progressed && attempt < o.Cfg.MaxRetries {
					turns = shortened
					continue
				}
				// No further shrink possible: retry_same only applies
				// after a successful shrink (spec §4.9), so this is now
				// a hard failure rather than a transient one.
				cls.RetrySame = false
			}
			if o.handleFailure(ctx, req.SessionKey, cred, cls, excluded, &attempt) {
				continue
			}
			rec.ErrorType, rec.ErrorMessage = cls.Type, cls.UserMessage
			sink.WriteError(statusForClassification(cls.Type), cls.Type, cls.UserMessage)
			return
		}

		// Success path: step 8 bookkeeping.
		now := time.Now()
		cred.RecordDispatch(now)
		o.Limiter.RecordRequest(cred.ID, now)

		o.consumeSuccess(ctx, resp, req.Stream, pseudoStream, sink, &rec)
		cancel()
		return
	}

	sink.WriteError(http.StatusServiceUnavailable, classify.ServiceUnavailable, "exhausted retries without a successful upstream response")
}

func (o *Orchestrator) selectCredential(sessionKey string, excluded map[string]bool) *credential.Credential {
	if len(excluded) == 0 {
		return o.Pool.Select(sessionKey)
	}
	// On failover we must not reselect an excluded credential, even if
	// it is the one session affinity points at (affinity is advisory).
	return o.excludingSelect(excluded)
}

func (o *Orchestrator) excludingSelect(excluded map[string]bool) *credential.Credential {
	return o.Pool.NextAvailableExcludingSet(excluded)
}

func (o *Orchestrator) maybeRefresh(ctx context.Context, cred *credential.Credential) {
	if o.Refresher == nil || !cred.NeedsRefresh(o.Cfg.RefreshWindow, time.Now()) {
		return
	}
	if !cred.BeginRefresh() {
		return // a refresh is already in flight for this credential
	}
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		newTokens, err := o.Refresher.Refresh(refreshCtx, cred.TokensSnapshot())
		if err != nil {
			slog.WarnContext(ctx, "credential refresh failed", "credential_id", cred.ID, "error", err)
			cred.EndRefresh(nil, err)
			cred.MarkUnhealthy()
			return
		}
		cred.EndRefresh(&newTokens, nil)
	}()
}

func (o *Orchestrator) waitForRateLimit(ctx context.Context, credID string) {
	for {
		res := o.Limiter.CanRequest(credID, time.Now())
		if res.Permitted {
			return
		}
		timer := time.NewTimer(time.Duration(res.WaitSeconds * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// handleFailure applies the §4.9 decision table, mutating the
// credential pool's state, the excluded set, and attempt's backoff
// sleep as needed. It returns true if the caller should retry the
// loop (either on a different credential or the same one).
func (o *Orchestrator) handleFailure(ctx context.Context, sessionKey string, cred *credential.Credential, cls classify.Classification, excluded map[string]bool, attempt *int) bool {
	cred.RecordError()

	switch cls.Type {
	case classify.AccountSuspended:
		cred.MarkSuspended()
	case classify.RateLimited:
		cred.MarkQuotaExceeded(cls.UserMessage, credential.DefaultCooldownSeconds, time.Now())
	case classify.AuthFailed:
		cred.MarkUnhealthy()
	case classify.ServiceUnavailable:
		// retry_same: no state transition, just backoff below.
	case classify.ModelUnavailable:
		// switch_account and retry_same both set; excluding this
		// credential and looping covers both.
	}

	if *attempt >= o.Cfg.MaxRetries {
		return false
	}

	if cls.SwitchAccount {
		excluded[cred.ID] = true
		o.Pool.UnbindSession(sessionKey)
		return o.hasAlternative(excluded)
	}

	if cls.RetrySame {
		o.sleepBackoff(ctx, *attempt)
		return true
	}

	return false
}

func (o *Orchestrator) hasAlternative(excluded map[string]bool) bool {
	return o.excludingSelect(excluded) != nil
}

func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) {
	delay := time.Duration(float64(o.Cfg.BackoffBase) * pow(o.Cfg.BackoffFactor, float64(attempt)))
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}
}

func (o *Orchestrator) dispatchTimeout(stream, pseudoStream bool) time.Duration {
	if stream && !pseudoStream {
		return o.Cfg.StreamTimeout
	}
	return o.Cfg.NonStreamTimeout
}

// consumeSuccess reads and translates the upstream body according to
// the streaming mode (spec §4.8's three streaming modes).
func (o *Orchestrator) consumeSuccess(ctx context.Context, resp *http.Response, stream, pseudoStream bool, sink ResponseSink, rec *FlowRecord) {
	defer resp.Body.Close()

	switch {
	case stream && !pseudoStream:
		events := codec.StreamFrames(ctx, resp.Body)
		counted := countingEvents(events, rec)
		if err := sink.WriteStream(ctx, counted); err != nil {
			slog.WarnContext(ctx, "stream write failed", "error", err)
		}
	case stream && pseudoStream:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			sink.WriteError(http.StatusBadGateway, classify.ServiceUnavailable, "failed reading upstream response")
			return
		}
		result := codec.DecodeAll(body)
		rec.StopReason = string(result.StopReason)
		events := pseudoStreamChannel(ctx, result, o.Cfg.PseudoStreamInterval)
		counted := countingEvents(events, rec)
		if err := sink.WriteStream(ctx, counted); err != nil {
			slog.WarnContext(ctx, "pseudo-stream write failed", "error", err)
		}
	default:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			sink.WriteError(http.StatusBadGateway, classify.ServiceUnavailable, "failed reading upstream response")
			return
		}
		result := codec.DecodeAll(body)
		rec.StopReason = string(result.StopReason)
		if err := sink.WriteResult(result); err != nil {
			slog.WarnContext(ctx, "response write failed", "error", err)
		}
	}
}

// countingEvents wraps events, incrementing rec.ChunkCount for every
// event forwarded, so the FlowRecord reflects actual chunks sent even
// though this happens concurrently with the sink's own consumption.
func countingEvents(in <-chan *codec.Event, rec *FlowRecord) <-chan *codec.Event {
	out := make(chan *codec.Event)
	go func() {
		defer close(out)
		for ev := range in {
			rec.ChunkCount++
			out <- ev
		}
	}()
	return out
}

func buildUpstreamRequest(req Request, processed []dialect.Turn, resolvedModel string) upstream.Request {
	historyTurns := make([]upstream.HistoryTurn, 0, len(processed))
	for _, t := range processed {
		switch t.Role {
		case dialect.RoleUser:
			historyTurns = append(historyTurns, upstream.HistoryTurn{UserInputMessage: &upstream.UserInputMessage{Content: t.Text}})
		case dialect.RoleAssistant:
			msg := &upstream.AssistantResponseMessage{Content: t.Text}
			for _, tu := range t.ToolUses {
				msg.ToolUses = append(msg.ToolUses, upstream.ToolUseFrame{ToolUseID: tu.ID, Name: tu.Name, Input: tu.InputJSON})
			}
			historyTurns = append(historyTurns, upstream.HistoryTurn{AssistantResponseMessage: msg})
		case dialect.RoleToolResult:
			// Tool results fold into the preceding user slot: the
			// upstream wire format carries them on userInputMessage,
			// not as a distinct history entry, so splice onto the
			// last-appended user turn if present.
			if len(historyTurns) > 0 && historyTurns[len(historyTurns)-1].UserInputMessage != nil {
				for _, tr := range t.ToolResults {
					historyTurns[len(historyTurns)-1].UserInputMessage.UserInputMessageContext.ToolResults = append(
						historyTurns[len(historyTurns)-1].UserInputMessage.UserInputMessageContext.ToolResults,
						upstream.ToolResult{ToolUseID: tr.ToolUseID, Content: tr.Content},
					)
				}
			}
		}
	}

	var tools []upstream.ToolSchema
	for _, t := range req.Tools {
		tools = append(tools, upstream.ToolSchema{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	var toolResults []upstream.ToolResult
	for _, tr := range req.ToolResults {
		toolResults = append(toolResults, upstream.ToolResult{ToolUseID: tr.ToolUseID, Content: tr.Content})
	}
	var images []upstream.ImageAttachment
	for _, img := range req.Images {
		images = append(images, upstream.ImageAttachment{Format: img.MediaType, Bytes: img.Data})
	}

	upReq := upstream.NewConversationRequest(req.UserContent, resolvedModel, historyTurns, tools, toolResults, images)
	return upReq
}

func classifyTransportError(err error) classify.Classification {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classify.ClassifyTimeout()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classify.ClassifyTimeout()
	}
	return classify.ClassifyConnectionError()
}

func statusForClassification(t classify.Type) int {
	switch t {
	case classify.AccountSuspended:
		return http.StatusForbidden
	case classify.RateLimited:
		return http.StatusTooManyRequests
	case classify.ContentTooLong:
		return http.StatusBadRequest
	case classify.AuthFailed:
		return http.StatusUnauthorized
	case classify.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case classify.ModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
