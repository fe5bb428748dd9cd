package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/embeddings"
	"github.com/rajputsidhu/sentinal-analysis/internal/engine"
	"github.com/rajputsidhu/sentinal-analysis/internal/llm"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/mitigate"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
	"github.com/rajputsidhu/sentinal-analysis/internal/risk"
	"github.com/rajputsidhu/sentinal-analysis/internal/session"
)

// BlockedMessage is returned instead of a model reply when a prompt is
// blocked.
const BlockedMessage = "Your message has been blocked by Sentinel. " +
	"The security analysis detected a high-risk prompt that violates safety guidelines."

// warnPreamble is prepended to the model reply when the action is warn.
const warnPreamble = "[Sentinel Warning: This prompt triggered a moderate threat score. Score: %.2f]\n\n"

// Publisher receives verdict events for the dashboard. Implementations must
// not block.
type Publisher interface {
	PublishVerdict(sessionID string, result analysis.Result, dryRun bool)
}

// Pipeline drives the full per-request flow: load history, fan out the
// detectors, classify, score, mitigate or block, forward, and log.
type Pipeline struct {
	store      session.Store
	embedder   *embeddings.Service
	signatures *embeddings.Scorer
	pattern    *engine.PatternDetector
	redTeam    *engine.RedTeamAnalyzer
	blueTeam   *engine.BlueTeamAnalyzer
	drift      *engine.DriftDetector
	scorer     *risk.Scorer
	mitigator  *mitigate.Mitigator
	downstream llm.ChatCompleter
	library    *patterns.Library
	publisher  Publisher
	maxHistory int
	dryRun     bool
	logger     *logger.Logger
}

// Options bundles the pipeline dependencies.
type Options struct {
	Store      session.Store
	Embedder   *embeddings.Service
	Signatures *embeddings.Scorer
	Pattern    *engine.PatternDetector
	RedTeam    *engine.RedTeamAnalyzer
	BlueTeam   *engine.BlueTeamAnalyzer
	Drift      *engine.DriftDetector
	Scorer     *risk.Scorer
	Mitigator  *mitigate.Mitigator
	Downstream llm.ChatCompleter
	Library    *patterns.Library
	Publisher  Publisher
	MaxHistory int
	DryRun     bool
	Logger     *logger.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		store:      opts.Store,
		embedder:   opts.Embedder,
		signatures: opts.Signatures,
		pattern:    opts.Pattern,
		redTeam:    opts.RedTeam,
		blueTeam:   opts.BlueTeam,
		drift:      opts.Drift,
		scorer:     opts.Scorer,
		mitigator:  opts.Mitigator,
		downstream: opts.Downstream,
		library:    opts.Library,
		publisher:  opts.Publisher,
		maxHistory: opts.MaxHistory,
		dryRun:     opts.DryRun,
		logger:     opts.Logger.WithComponent("pipeline"),
	}
}

// Analyze runs the detector fan-out over a prompt and returns the unified
// verdict plus the prompt's embedding. Detector failures degrade to zero
// results instead of failing the request.
func (p *Pipeline) Analyze(ctx context.Context, sessionID, prompt string) (analysis.Result, []float32, error) {
	history, err := p.store.Recent(ctx, sessionID, p.maxHistory)
	if err != nil {
		return analysis.Result{}, nil, fmt.Errorf("failed to load session history: %w", err)
	}
	priorEmbeddings, err := p.store.UserEmbeddings(ctx, sessionID)
	if err != nil {
		return analysis.Result{}, nil, fmt.Errorf("failed to load session embeddings: %w", err)
	}

	var (
		currentEmbedding []float32
		embResult        analysis.EmbeddingResult
		redResult        analysis.RedTeamResult
	)

	// Embedding and red-team may touch the network; they run concurrently.
	// Pattern and signature scoring are CPU-only and run inline.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		currentEmbedding = p.embedder.Embed(gctx, prompt)
		return nil
	})
	g.Go(func() error {
		redResult = p.redTeam.Analyze(gctx, prompt)
		return nil
	})

	patternResult := p.pattern.Detect(prompt)
	embResult = p.signatures.Score(prompt)

	if err := g.Wait(); err != nil {
		return analysis.Result{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, nil, err
	}

	// Drift consumes the fresh embedding, so it runs after the join.
	driftResult := p.drift.Detect(prompt, history, currentEmbedding, priorEmbeddings)

	blueResult := p.blueTeam.Analyze(ctx, prompt, redResult)

	score, action, categories := p.scorer.Combine(embResult, redResult, driftResult, patternResult)

	result := analysis.Result{
		ThreatScore: score,
		Action:      action,
		Categories:  categories,
		Intent:      p.library.ClassifyIntent(prompt),
		Embedding:   embResult,
		RedTeam:     redResult,
		Drift:       driftResult,
		Pattern:     patternResult,
		BlueTeam:    blueResult,
		Timestamp:   time.Now().UTC(),
	}

	p.logger.Info("analysis complete",
		zap.String("session_id", sessionID),
		zap.Float64("threat_score", score),
		zap.String("action", string(action)),
		zap.Int("categories", len(categories)))

	return result, currentEmbedding, nil
}

// Process handles one chat request end to end. messages is the client's
// conversation; the last user message is the prompt under analysis.
func (p *Pipeline) Process(ctx context.Context, sessionID string, messages []analysis.Message) (string, analysis.Result, error) {
	prompt := lastUserContent(messages)

	verdict, embedding, err := p.Analyze(ctx, sessionID, prompt)
	if err != nil {
		return "", analysis.Result{}, err
	}

	var response string
	switch verdict.Action {
	case analysis.ActionBlock:
		response = BlockedMessage
		p.logger.Warn("prompt blocked",
			zap.String("session_id", sessionID),
			zap.Float64("threat_score", verdict.ThreatScore))

	case analysis.ActionRewrite:
		sanitized := p.mitigator.Rewrite(ctx, prompt)
		forward := replaceLastUser(messages, sanitized)
		response, err = p.complete(ctx, forward)
		if err != nil {
			return "", analysis.Result{}, err
		}
		p.logger.Warn("prompt rewritten and forwarded",
			zap.String("session_id", sessionID),
			zap.Float64("threat_score", verdict.ThreatScore))

	default:
		response, err = p.complete(ctx, messages)
		if err != nil {
			return "", analysis.Result{}, err
		}
		if verdict.Action == analysis.ActionWarn {
			response = fmt.Sprintf(warnPreamble, verdict.ThreatScore) + response
		}
	}

	// A cancelled request leaves the session untouched.
	if err := ctx.Err(); err != nil {
		return "", analysis.Result{}, err
	}

	userMsg := analysis.NewMessage(analysis.RoleUser, prompt)
	if err := p.store.AppendUser(ctx, sessionID, userMsg, verdict, embedding); err != nil {
		return "", analysis.Result{}, fmt.Errorf("failed to log user turn: %w", err)
	}
	assistantMsg := analysis.NewMessage(analysis.RoleAssistant, response)
	if err := p.store.AppendAssistant(ctx, sessionID, assistantMsg); err != nil {
		return "", analysis.Result{}, fmt.Errorf("failed to log assistant turn: %w", err)
	}

	p.publish(sessionID, verdict)
	return response, verdict, nil
}

// AnalyzeOnly runs the pipeline without the downstream call. The user turn
// and its analysis are still logged to the session.
func (p *Pipeline) AnalyzeOnly(ctx context.Context, sessionID string, messages []analysis.Message) (analysis.Result, error) {
	prompt := lastUserContent(messages)

	verdict, embedding, err := p.Analyze(ctx, sessionID, prompt)
	if err != nil {
		return analysis.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}

	userMsg := analysis.NewMessage(analysis.RoleUser, prompt)
	if err := p.store.AppendUser(ctx, sessionID, userMsg, verdict, embedding); err != nil {
		return analysis.Result{}, fmt.Errorf("failed to log user turn: %w", err)
	}

	p.publish(sessionID, verdict)
	return verdict, nil
}

func (p *Pipeline) publish(sessionID string, verdict analysis.Result) {
	if p.publisher != nil {
		p.publisher.PublishVerdict(sessionID, verdict, p.dryRun)
	}
}

func (p *Pipeline) complete(ctx context.Context, messages []analysis.Message) (string, error) {
	chat := make([]llm.ChatMessage, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	response, err := p.downstream.Complete(ctx, chat, 0.7, 0)
	if err != nil {
		return "", fmt.Errorf("downstream completion failed: %w", err)
	}
	return response, nil
}

// lastUserContent returns the content of the final user message.
func lastUserContent(messages []analysis.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == analysis.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// replaceLastUser swaps the final user message's content, leaving the rest
// of the conversation untouched.
func replaceLastUser(messages []analysis.Message, content string) []analysis.Message {
	out := make([]analysis.Message, len(messages))
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == analysis.RoleUser {
			out[i].Content = content
			break
		}
	}
	return out
}
