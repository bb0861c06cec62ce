package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedTurn struct {
	number  string
	role    string
	content string
}

type fakeStore struct {
	appended  []storedTurn
	recent    []ChatMessage
	appendErr error
	recentErr error
}

func (s *fakeStore) Append(_ context.Context, number, role, content string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, storedTurn{number: number, role: role, content: content})
	return nil
}

func (s *fakeStore) Recent(_ context.Context, _ string, _ int) ([]ChatMessage, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.recent, nil
}

type fakeLLM struct {
	reply string
	err   error
	calls []LLMRequest
}

func (l *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	l.calls = append(l.calls, req)
	if l.err != nil {
		return LLMResponse{}, l.err
	}
	return LLMResponse{Text: l.reply}, nil
}

type sentText struct {
	number string
	text   string
}

type fakeDispatcher struct {
	sent   []sentText
	status string
}

func (d *fakeDispatcher) SendText(_ context.Context, number, text string) string {
	d.sent = append(d.sent, sentText{number: number, text: text})
	if d.status == "" {
		return "200"
	}
	return d.status
}

type pipelineFixture struct {
	store      *fakeStore
	llm        *fakeLLM
	dispatcher *fakeDispatcher
	cooldown   *MemoryCooldownStore
	responder  *Responder
}

func newPipeline(t *testing.T, mutate func(*ResponderConfig)) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:      &fakeStore{},
		llm:        &fakeLLM{reply: "resposta do modelo"},
		dispatcher: &fakeDispatcher{},
		cooldown:   NewMemoryCooldownStore(20*time.Minute, nil),
	}
	cfg := ResponderConfig{
		Store:        f.store,
		LLM:          f.llm,
		Dispatcher:   f.dispatcher,
		SelfNumber:   "5511999999999",
		OwnerNumber:  "5511888888888",
		LLMEnabled:   true,
		ModelID:      "test-model",
		ContextTurns: 25,
		Clock: func() time.Time {
			return time.Date(2025, time.March, 7, 14, 5, 9, 0, time.Local)
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if cfg.Decider == nil {
		attachDecider(&cfg, HandoffConfig{Auto: false}, nil)
	}
	f.responder = NewResponder(cfg)
	return f
}

func envelopeFor(t *testing.T, number, conversation string) map[string]any {
	t.Helper()
	return decodeJSON(t, fmt.Sprintf(`{
		"event": "messages.upsert",
		"data": {
			"message": {
				"key": {"remoteJid": "%s@s.whatsapp.net", "fromMe": false},
				"message": {"conversation": %q}
			}
		}
	}`, number, conversation))
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func attachDecider(cfg *ResponderConfig, hc HandoffConfig, cooldown CooldownStore) {
	if hc.Keywords == nil {
		hc.Keywords = testKeywords
	}
	cfg.Decider = NewHandoffDecider(hc, cooldown, nil)
}

func TestProcessEventPingCommand(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "ping"))

	require.Equal(t, 1, res.Got)
	require.Len(t, res.Replied, 1)
	assert.Equal(t, "5511999999999", res.Replied[0].To)
	assert.Equal(t, "200", res.Replied[0].Status)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "pong", f.dispatcher.sent[0].text)

	require.Len(t, f.store.appended, 2)
	assert.Equal(t, storedTurn{"5511999999999", ChatRoleUser, "ping"}, f.store.appended[0])
	assert.Equal(t, storedTurn{"5511999999999", ChatRoleAssistant, "pong"}, f.store.appended[1])

	assert.Empty(t, f.llm.calls)
}

func TestProcessEventEcoCommand(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	envelope := decodeJSON(t, `{
		"data": {
			"message": {
				"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false},
				"message": {"extendedTextMessage": {"text": "/eco hello"}}
			}
		}
	}`)
	res := f.responder.ProcessEvent(context.Background(), envelope)

	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "hello", f.dispatcher.sent[0].text)
}

func TestProcessEventAIEmptyPrompt(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "/ai "))

	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "Use assim: /ai sua pergunta aqui.", f.dispatcher.sent[0].text)
	assert.Empty(t, f.llm.calls, "empty prompt must not reach the model")
}

func TestProcessEventAIWithContext(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})
	f.store.recent = []ChatMessage{
		{Role: ChatRoleUser, Content: "oi"},
		{Role: ChatRoleAssistant, Content: "Olá!"},
		{Role: ChatRoleUser, Content: "/ai qual o horário de atendimento?"},
	}

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "/ai qual o horário de atendimento?"))

	require.Len(t, res.Replied, 1)
	require.Len(t, f.llm.calls, 1)
	req := f.llm.calls[0]
	assert.Equal(t, "test-model", req.Model)
	require.NotEmpty(t, req.Messages)
	// The raw user turn already sits at the end of the window; its content
	// is swapped for the bare prompt instead of appended twice.
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, ChatRoleUser, last.Role)
	assert.Equal(t, "qual o horário de atendimento?", last.Content)
	assert.Len(t, req.Messages, 3)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "resposta do modelo", f.dispatcher.sent[0].text)
}

func TestProcessEventLLMFailureFallsBack(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})
	f.llm.err = errors.New("throttled")

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "/ai tudo bem?"))

	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "LLM indisponível no momento. Tente novamente em instantes.", f.dispatcher.sent[0].text)
}

func TestProcessEventExplicitHandoffStopsBatch(t *testing.T) {
	cooldown := NewMemoryCooldownStore(20*time.Minute, nil)
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, cooldown)
	})

	envelope := decodeJSON(t, `{
		"messages": [
			{
				"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false},
				"message": {"conversation": "quero falar com atendente"}
			},
			{
				"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false},
				"message": {"conversation": "ping"}
			}
		]
	}`)
	res := f.responder.ProcessEvent(context.Background(), envelope)

	assert.Equal(t, 2, res.Got)
	require.Len(t, res.Replied, 1, "batch must stop after the handoff")

	// First send is the transfer notice, second the owner notification.
	require.Len(t, f.dispatcher.sent, 2)
	assert.Equal(t, "5511999999999", f.dispatcher.sent[0].number)
	assert.Contains(t, f.dispatcher.sent[0].text, "transferido para um atendente humano")
	assert.Equal(t, "5511888888888", f.dispatcher.sent[1].number)
	assert.Contains(t, f.dispatcher.sent[1].text, "[Escalação automática]")
	assert.Contains(t, f.dispatcher.sent[1].text, "Sem histórico para 5511999999999.")

	// The notice is recorded as a bot turn and the cooldown window opens.
	require.Len(t, f.store.appended, 2)
	assert.Equal(t, ChatRoleAssistant, f.store.appended[1].role)
	active, err := cooldown.InCooldown(context.Background(), "5511999999999")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessEventGroupDropped(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	envelope := decodeJSON(t, `{
		"data": {
			"message": {
				"key": {"remoteJid": "120363000000000000@g.us", "fromMe": false},
				"message": {"conversation": "ping"}
			}
		}
	}`)
	res := f.responder.ProcessEvent(context.Background(), envelope)

	assert.Equal(t, 1, res.Got)
	assert.Empty(t, res.Replied)
	assert.Empty(t, f.dispatcher.sent)
	assert.Empty(t, f.store.appended)
}

func TestProcessEventOtherNumberDropped(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511777777777", "ping"))

	assert.Equal(t, 1, res.Got)
	assert.Empty(t, res.Replied)
	assert.Empty(t, f.dispatcher.sent)
}

func TestProcessEventSelfTestMode(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		cfg.SelfTest = true
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})

	// Inbound from someone else is filtered in self-test mode.
	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "ping"))
	assert.Empty(t, res.Replied)
	assert.Empty(t, f.dispatcher.sent)

	// My own message to myself gets the bot marker.
	envelope := decodeJSON(t, `{
		"data": {
			"message": {
				"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": true},
				"message": {"conversation": "ping"}
			}
		}
	}`)
	res = f.responder.ProcessEvent(context.Background(), envelope)
	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "[bot] pong", f.dispatcher.sent[0].text)
}

func TestProcessEventStorageFailureStillReplies(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})
	f.store.appendErr = errors.New("connection refused")

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "ping"))

	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "pong", f.dispatcher.sent[0].text)
}

func TestProcessEventDispatchErrorStatusPropagates(t *testing.T) {
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: false}, nil)
	})
	f.dispatcher.status = "error"

	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "ping"))

	require.Len(t, res.Replied, 1)
	assert.Equal(t, "error", res.Replied[0].Status)
}

func TestProcessEventEchoFallbackEvaluatesHandoff(t *testing.T) {
	cooldown := NewMemoryCooldownStore(20*time.Minute, nil)
	f := newPipeline(t, func(cfg *ResponderConfig) {
		attachDecider(cfg, HandoffConfig{Auto: true, MinTurns: 2}, cooldown)
	})
	f.store.recent = []ChatMessage{
		{Role: ChatRoleUser, Content: "oi"},
		{Role: ChatRoleAssistant, Content: "Olá!"},
	}

	// Plain text with no keyword and a harmless echo reply does not escalate.
	res := f.responder.ProcessEvent(context.Background(), envelopeFor(t, "5511999999999", "bom dia"))
	require.Len(t, res.Replied, 1)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "Você disse: bom dia", f.dispatcher.sent[0].text)
}

func TestNewResponderRequiresDecider(t *testing.T) {
	assert.Panics(t, func() {
		NewResponder(ResponderConfig{Store: &fakeStore{}, Dispatcher: &fakeDispatcher{}})
	})
}

func TestProcessEventUnknownEnvelope(t *testing.T) {
	f := newPipeline(t, nil)

	res := f.responder.ProcessEvent(context.Background(), decodeJSON(t, `{"event": "connection.update", "data": {"state": "open"}}`))

	assert.Equal(t, 0, res.Got)
	assert.Empty(t, res.Replied)
	assert.Empty(t, f.dispatcher.sent)
}
