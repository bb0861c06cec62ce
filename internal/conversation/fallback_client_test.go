package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeLLM{reply: "da primária"}
	secondary := &fakeLLM{reply: "da reserva"}
	client := NewFallbackLLMClient(primary, secondary, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	require.NoError(t, err)
	assert.Equal(t, "da primária", resp.Text)
	assert.Empty(t, secondary.calls)
}

func TestFallbackRetriesSecondary(t *testing.T) {
	primary := &fakeLLM{err: errors.New("throttled")}
	secondary := &fakeLLM{reply: "da reserva"}
	client := NewFallbackLLMClient(primary, secondary, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	require.NoError(t, err)
	assert.Equal(t, "da reserva", resp.Text)
	require.Len(t, primary.calls, 1)
	require.Len(t, secondary.calls, 1)
}

func TestFallbackBothFail(t *testing.T) {
	primary := &fakeLLM{err: errors.New("primária fora")}
	secondary := &fakeLLM{err: errors.New("reserva fora")}
	client := NewFallbackLLMClient(primary, secondary, nil)

	_, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	assert.Error(t, err)
}

func TestFallbackWithoutSecondary(t *testing.T) {
	primary := &fakeLLM{err: errors.New("throttled")}
	client := NewFallbackLLMClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	assert.ErrorContains(t, err, "throttled")
}
