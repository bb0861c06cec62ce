package conversation

import (
	"context"
	"strings"
	"time"

	observemetrics "github.com/julioamaral/juliobot/internal/observability/metrics"
	"github.com/julioamaral/juliobot/pkg/logging"
)

// Reply strategies, used as metric labels.
const (
	StrategyBuiltin = "builtin"
	StrategyLLM     = "llm"
	StrategyEcho    = "echo"
	StrategyHandoff = "handoff"
)

const (
	aiSystemPrompt = "Você é um assistente do WhatsApp útil e conciso."
	aiUsageHint    = "Use assim: /ai sua pergunta aqui."
	llmUnavailable = "LLM indisponível no momento. Tente novamente em instantes."
	echoPrefix     = "Você disse: "
	// botMarker prefixes replies to self-originated messages so the bot's
	// own echoes are recognizably bot-authored and never re-answered.
	botMarker      = "[bot] "
	transferNotice = "Você está sendo transferido para um atendente humano. Aguarde um instante, por favor."
)

// TurnStore is the persistence contract the pipeline needs.
type TurnStore interface {
	Append(ctx context.Context, number, role, content string) error
	Recent(ctx context.Context, number string, limit int) ([]ChatMessage, error)
}

// Dispatcher sends outbound text through the gateway and reports the
// provider status. It never returns an error: transport failures surface as
// the "error" status so one failed delivery cannot abort a batch.
type Dispatcher interface {
	SendText(ctx context.Context, number, text string) (status string)
}

// ReplyStatus is one entry of the webhook response's replied array.
type ReplyStatus struct {
	To     string `json:"to"`
	Status string `json:"status"`
}

// BatchResult summarizes processing of one inbound envelope.
type BatchResult struct {
	Got     int
	Replied []ReplyStatus
}

// ResponderConfig wires the pipeline's collaborators and knobs.
type ResponderConfig struct {
	Store      TurnStore
	LLM        LLMClient
	Dispatcher Dispatcher
	Decider    *HandoffDecider
	Logger     *logging.Logger
	Metrics    *observemetrics.PipelineMetrics

	SelfNumber   string
	OwnerNumber  string
	SelfTest     bool
	LLMEnabled   bool
	ModelID      string
	Temperature  float32
	ContextTurns int

	// Clock feeds the hora/data commands; defaults to time.Now.
	Clock func() time.Time
}

// Responder runs the per-message pipeline: extract, admit, persist, route,
// handoff, dispatch.
type Responder struct {
	store        TurnStore
	llm          LLMClient
	dispatcher   Dispatcher
	decider      *HandoffDecider
	gate         *Gatekeeper
	logger       *logging.Logger
	metrics      *observemetrics.PipelineMetrics
	selfNumber   string
	ownerNumber  string
	llmEnabled   bool
	modelID      string
	temperature  float32
	contextTurns int
	clock        func() time.Time
}

func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.Decider == nil {
		panic("conversation: responder requires a handoff decider")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 25
	}
	return &Responder{
		store:        cfg.Store,
		llm:          cfg.LLM,
		dispatcher:   cfg.Dispatcher,
		decider:      cfg.Decider,
		gate:         NewGatekeeper(cfg.SelfNumber, cfg.SelfTest),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		selfNumber:   cfg.SelfNumber,
		ownerNumber:  cfg.OwnerNumber,
		llmEnabled:   cfg.LLMEnabled,
		modelID:      cfg.ModelID,
		temperature:  cfg.Temperature,
		contextTurns: cfg.ContextTurns,
		clock:        cfg.Clock,
	}
}

// ProcessEvent runs the pipeline over every message in an inbound envelope,
// sequentially and in array order. A fired handoff stops the batch: the
// remaining messages in that delivery are dropped on purpose, so a user who
// just asked for a human is not answered twice by the bot.
func (r *Responder) ProcessEvent(ctx context.Context, envelope map[string]any) BatchResult {
	msgs := Normalize(envelope)
	result := BatchResult{Got: len(msgs), Replied: []ReplyStatus{}}

	for _, raw := range msgs {
		reply, handedOff := r.processMessage(ctx, raw, envelope)
		if reply != nil {
			result.Replied = append(result.Replied, *reply)
		}
		if handedOff {
			break
		}
	}
	return result
}

func (r *Responder) processMessage(ctx context.Context, raw RawMessage, envelope map[string]any) (*ReplyStatus, bool) {
	fromMe := FromMe(raw)
	rawText := ExtractText(raw, envelope)
	text := strings.TrimSpace(rawText)
	remote, number := ExtractIdentity(raw, envelope, r.selfNumber, fromMe)

	decision := r.gate.Admit(remote, number, text, fromMe)
	r.metrics.ObserveInbound(decision.Reason)
	if !decision.Proceed {
		r.logger.Info("message dropped", "reason", decision.Reason, "remote", remote)
		return nil, false
	}

	if err := r.store.Append(ctx, number, ChatRoleUser, text); err != nil {
		// Reply anyway; a storage hiccup must not silence the bot.
		r.logger.Error("failed to persist user turn", "error", err, "number", number)
	}

	reply, strategy, ctxMsgs := r.route(ctx, number, rawText, text)

	prefix := ""
	if fromMe {
		prefix = botMarker
	}

	if strategy != StrategyBuiltin {
		if ctxMsgs == nil {
			ctxMsgs = r.recentTurns(ctx, number)
		}
		if fire, reason := r.decider.Evaluate(ctx, number, text, reply, len(ctxMsgs)); fire {
			return r.handoff(ctx, number, reason, prefix, ctxMsgs), true
		}
	}

	outText := prefix + reply
	status := r.dispatcher.SendText(ctx, number, outText)
	r.metrics.ObserveReply(strategy, status)

	if err := r.store.Append(ctx, number, ChatRoleAssistant, outText); err != nil {
		r.logger.Error("failed to persist bot turn", "error", err, "number", number)
	}
	return &ReplyStatus{To: number, Status: status}, false
}

// route runs the strategy chain: builtin commands, then /ai with context,
// then the echo fallback. It returns the context window when the LLM path
// loaded one, so the handoff decider does not fetch it twice.
func (r *Responder) route(ctx context.Context, number, rawText, text string) (reply, strategy string, ctxMsgs []ChatMessage) {
	if builtin, ok := RouteBuiltin(text, r.clock); ok {
		return builtin, StrategyBuiltin, nil
	}

	// The untrimmed text matters here: "/ai " with nothing after it is
	// still the command.
	if prompt, isAI := ParseAIPrompt(rawText); isAI {
		if prompt == "" {
			return aiUsageHint, StrategyBuiltin, nil
		}
		ctxMsgs = r.recentTurns(ctx, number)
		return r.completeWithContext(ctx, prompt, text, ctxMsgs), StrategyLLM, ctxMsgs
	}

	return echoPrefix + text, StrategyEcho, nil
}

// completeWithContext submits the bounded chronological context plus the new
// prompt. The user turn was persisted before routing, so when the window's
// final entry is that raw turn its content is swapped for the trimmed
// prompt; otherwise the prompt is appended.
func (r *Responder) completeWithContext(ctx context.Context, prompt, rawText string, ctxMsgs []ChatMessage) string {
	if !r.llmEnabled || r.llm == nil {
		return llmUnavailable
	}

	msgs := make([]ChatMessage, len(ctxMsgs))
	copy(msgs, ctxMsgs)
	if n := len(msgs); n > 0 && msgs[n-1].Role == ChatRoleUser && msgs[n-1].Content == rawText {
		msgs[n-1].Content = prompt
	} else {
		msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: prompt})
	}

	resp, err := r.llm.Complete(ctx, LLMRequest{
		Model:       r.modelID,
		System:      []string{aiSystemPrompt},
		Messages:    msgs,
		MaxTokens:   600,
		Temperature: r.temperature,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		r.logger.Error("llm completion failed", "error", err)
		return llmUnavailable
	}
	return resp.Text
}

// handoff notifies the user, summarizes the conversation for the operator,
// opens the cooldown window, and records the notice as an assistant turn.
func (r *Responder) handoff(ctx context.Context, number, reason, prefix string, ctxMsgs []ChatMessage) *ReplyStatus {
	r.logger.Info("handing off to human", "number", number, "reason", reason)
	r.metrics.ObserveHandoff(reason)

	notice := prefix + transferNotice
	status := r.dispatcher.SendText(ctx, number, notice)
	r.metrics.ObserveReply(StrategyHandoff, status)

	if err := r.store.Append(ctx, number, ChatRoleAssistant, notice); err != nil {
		r.logger.Error("failed to persist handoff notice", "error", err, "number", number)
	}

	summary, err := SummarizeForHuman(ctx, r.llm, r.modelID, r.temperature, ctxMsgs, number)
	if err != nil {
		r.logger.Error("failed to summarize conversation", "error", err, "number", number)
		summary = "Não foi possível gerar o resumo da conversa."
	}
	if owner := OnlyDigits(r.ownerNumber); owner != "" {
		r.dispatcher.SendText(ctx, owner, OwnerNotification(number, summary))
	}

	r.decider.Mark(ctx, number)
	return &ReplyStatus{To: number, Status: status}
}

func (r *Responder) recentTurns(ctx context.Context, number string) []ChatMessage {
	turns, err := r.store.Recent(ctx, number, r.contextTurns)
	if err != nil {
		r.logger.Error("failed to load context window", "error", err, "number", number)
		return nil
	}
	return turns
}
