package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/julioamaral/juliobot/pkg/logging"
)

// Handoff decision reasons.
const (
	HandoffExplicitRequest    = "explicit_user_request"
	HandoffAutoDisabled       = "auto_handoff_disabled"
	HandoffInsufficientCtx    = "insufficient_context"
	HandoffShortNegativeReply = "short_negative_reply"
	HandoffLowConfidence      = "low_confidence"
	HandoffCooldownActive     = "cooldown_active"
)

// lowConfidenceSignals are phrases in a candidate reply that suggest the
// model is out of its depth.
var lowConfidenceSignals = []string{
	"não consigo", "não tenho acesso", "não tenho certeza",
	"desculpe", "não sei", "não entendi", "não está claro",
	"não posso ajudar", "fora do meu escopo", "não tenho memória",
	"conversa nova",
}

// HandoffConfig tunes the decision chain.
type HandoffConfig struct {
	Keywords []string
	Auto     bool
	MinTurns int
	// SuppressOnCooldown makes the auto branches respect the cooldown
	// window. An explicit user request always wins regardless.
	SuppressOnCooldown bool
}

// HandoffDecider applies the escalation heuristic to a candidate reply.
// State (the per-number cooldown) lives behind CooldownStore so tests can
// inject deterministic clocks and deployments can share a backing store.
type HandoffDecider struct {
	cfg      HandoffConfig
	cooldown CooldownStore
	logger   *logging.Logger
}

func NewHandoffDecider(cfg HandoffConfig, cooldown CooldownStore, logger *logging.Logger) *HandoffDecider {
	if logger == nil {
		logger = logging.Default()
	}
	return &HandoffDecider{cfg: cfg, cooldown: cooldown, logger: logger}
}

// Evaluate decides whether the conversation should escalate to a human.
// First true rule wins: explicit keyword, then the auto-handoff gates
// (enabled, enough context, low-confidence reply). ctxLen is the length of
// the number's current context window.
func (d *HandoffDecider) Evaluate(ctx context.Context, number, userText, candidateReply string, ctxLen int) (bool, string) {
	t := strings.ToLower(strings.TrimSpace(userText))
	for _, kw := range d.cfg.Keywords {
		if kw != "" && strings.Contains(t, kw) {
			return true, HandoffExplicitRequest
		}
	}

	if !d.cfg.Auto {
		return false, HandoffAutoDisabled
	}

	if d.cfg.SuppressOnCooldown && d.cooldown != nil {
		active, err := d.cooldown.InCooldown(ctx, number)
		if err != nil {
			d.logger.Warn("cooldown lookup failed, skipping suppression", "error", err, "number", number)
		} else if active {
			return false, HandoffCooldownActive
		}
	}

	if ctxLen < d.cfg.MinTurns {
		return false, HandoffInsufficientCtx
	}

	r := strings.ToLower(strings.TrimSpace(candidateReply))
	if utf8.RuneCountInString(r) < 12 &&
		(strings.Contains(r, "não") || strings.Contains(r, "desculpe")) {
		return true, HandoffShortNegativeReply
	}
	for _, sig := range lowConfidenceSignals {
		if strings.Contains(r, sig) {
			return true, HandoffLowConfidence
		}
	}

	return false, ""
}

// Mark opens the cooldown window for a number after a fired handoff.
func (d *HandoffDecider) Mark(ctx context.Context, number string) {
	if d.cooldown == nil {
		return
	}
	if err := d.cooldown.Mark(ctx, number); err != nil {
		d.logger.Warn("failed to mark handoff cooldown", "error", err, "number", number)
	}
}

const summarySystemPrompt = "Você é um assistente que resume uma conversa de WhatsApp para um humano assumir o atendimento. " +
	"Produza um resumo curto (5-8 linhas), com: objetivo do usuário, fatos já coletados, " +
	"tentativas do bot, pendências e próxima ação sugerida."

// SummarizeForHuman builds the operator-facing summary of a number's recent
// context. With no history it degrades to a short placeholder instead of
// calling the LLM.
func SummarizeForHuman(ctx context.Context, llm LLMClient, model string, temperature float32, turns []ChatMessage, number string) (string, error) {
	if len(turns) == 0 {
		return fmt.Sprintf("Sem histórico para %s.", number), nil
	}
	if llm == nil {
		return "", fmt.Errorf("conversation: no LLM client for summary")
	}

	resp, err := llm.Complete(ctx, LLMRequest{
		Model:       model,
		System:      []string{summarySystemPrompt},
		Messages:    turns,
		MaxTokens:   600,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: summarize for human: %w", err)
	}
	return resp.Text, nil
}

// OwnerNotification formats the escalation message sent to the operator.
func OwnerNotification(userNumber, summary string) string {
	return fmt.Sprintf("[Escalação automática]\nUsuário: %s\nResumo da conversa:\n\n%s\n\nAja respondendo diretamente ao usuário.", userNumber, summary)
}
