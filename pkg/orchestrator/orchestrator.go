// Package orchestrator sequences the credential, conversation and
// relay steps that turn a single prompt into a final answer.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brunohrs/stackpilot/internal/observability"
	"github.com/brunohrs/stackpilot/internal/tracing"
	"github.com/brunohrs/stackpilot/pkg/auth"
	"github.com/brunohrs/stackpilot/pkg/conversation"
	"github.com/brunohrs/stackpilot/pkg/execution"
	"github.com/brunohrs/stackpilot/pkg/relay"
)

const tracerName = "stackpilot/orchestrator"

// Orchestrator runs one prompt at a time through the full platform
// flow. Credential and conversation state are owned by the injected
// guard and session and persist across prompts, so a later prompt can
// succeed after an earlier one failed. Safe for concurrent use.
type Orchestrator struct {
	guard      *auth.Guard
	executions *execution.Client
	session    *conversation.Session
	relay      *relay.Client
}

// New creates an orchestrator over the four collaborating components.
func New(guard *auth.Guard, executions *execution.Client, session *conversation.Session, relayClient *relay.Client) *Orchestrator {
	return &Orchestrator{
		guard:      guard,
		executions: executions,
		session:    session,
		relay:      relayClient,
	}
}

// Ask turns a text prompt into a final answer. Every failure is
// terminal for this prompt; nothing is retried at this level.
func (o *Orchestrator) Ask(ctx context.Context, prompt string) Result {
	return o.ask(ctx, prompt, prompt, nil)
}

// AskStream behaves like Ask but additionally forwards each streamed
// answer fragment to the observer as it arrives.
func (o *Orchestrator) AskStream(ctx context.Context, prompt string, observer relay.FragmentObserver) Result {
	return o.ask(ctx, prompt, prompt, observer)
}

// AskPayload submits a structured payload when a new conversation has
// to be started, while relaying the given prompt text into the
// conversation. The payload is forwarded to the platform as-is.
func (o *Orchestrator) AskPayload(ctx context.Context, payload any, prompt string) Result {
	return o.ask(ctx, payload, prompt, nil)
}

// ResetConversation drops the current conversation so the next prompt
// starts a fresh one.
func (o *Orchestrator) ResetConversation() {
	o.session.Reset()
}

func (o *Orchestrator) ask(ctx context.Context, submitPayload any, prompt string, observer relay.FragmentObserver) Result {
	start := time.Now()

	cycleID := tracing.NewCycleID()
	ctx = tracing.WithCycleID(ctx, cycleID)

	ctx, span := tracing.StartSpan(ctx, tracerName, "ask",
		attribute.String("cycle_id", cycleID),
	)
	defer span.End()

	logger := log.With().Str("cycle_id", cycleID).Logger()
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}

	result := o.run(ctx, submitPayload, prompt, observer)
	observability.RecordPrompt(result.OK(), time.Since(start))

	if result.OK() {
		logger.Info().
			Dur("duration", time.Since(start)).
			Bool("degraded", result.Degraded).
			Msg("Prompt answered")
	} else {
		logger.Error().
			Err(result.Err).
			Dur("duration", time.Since(start)).
			Msg("Prompt failed")
	}

	return result
}

func (o *Orchestrator) run(ctx context.Context, submitPayload any, prompt string, observer relay.FragmentObserver) Result {
	stepCtx, span := tracing.StartSpan(ctx, tracerName, "ensure_token")
	cred, err := o.guard.EnsureValid(stepCtx)
	span.End()
	if err != nil {
		return Result{Err: fmt.Errorf("ensure token: %w", err), Message: AuthFailedMessage}
	}

	stepCtx, span = tracing.StartSpan(ctx, tracerName, "resolve_conversation")
	conversationID, err := o.session.Resolve(stepCtx, conversation.StarterFunc(func(ctx context.Context) (string, error) {
		executionID, err := o.executions.CreateExecution(ctx, submitPayload, cred, "")
		if err != nil {
			return "", err
		}
		return o.executions.ResolveConversationIDWithRetry(ctx, executionID, cred)
	}))
	span.End()
	if err != nil {
		return Result{Err: err, Message: err.Error()}
	}

	stepCtx, span = tracing.StartSpan(ctx, tracerName, "relay",
		attribute.String("conversation_id", conversationID),
	)
	var answer relay.Answer
	if observer != nil {
		answer, err = o.relay.Send(stepCtx, prompt, conversationID, cred, observer)
	} else {
		answer, err = o.relay.Send(stepCtx, prompt, conversationID, cred)
	}
	span.End()
	if err != nil {
		return Result{Err: err, Message: err.Error()}
	}

	return Result{Answer: answer.Text, Degraded: answer.Degraded}
}
