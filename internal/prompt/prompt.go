// Package prompt flattens a conversation into the single prompt string a
// llama.cpp engine consumes, and trims history to the model's context
// window. The trim unit is estimated tokens at 4 bytes per token; exact
// tokenizer parity with any particular engine is deliberately not
// attempted (the budget errs on the generous side of dropping).
package prompt

import (
	"fmt"
	"strings"

	"llmgate/internal/config"
	"llmgate/pkg/types"
)

// turnOverheadTokens approximates per-turn template framing cost.
const turnOverheadTokens = 8

// EstimateTokens returns a byte-length token estimate for s.
func EstimateTokens(s string) int {
	return len(s)/4 + 1
}

// Trim drops the oldest history turns until system + history + latest fit
// budget (estimated tokens). The system prompt and the latest turns are
// never dropped. Returns the surviving history.
func Trim(system string, history, latest []types.ChatMessage, budget int) []types.ChatMessage {
	if budget <= 0 {
		return history
	}
	used := EstimateTokens(system) + turnOverheadTokens
	for _, m := range latest {
		used += EstimateTokens(m.Content) + turnOverheadTokens
	}
	// Walk newest-to-oldest, keeping what still fits.
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content) + turnOverheadTokens
		if used+cost > budget {
			break
		}
		used += cost
		keepFrom = i
	}
	return history[keepFrom:]
}

// Render flattens messages into a prompt for the given template kind and
// appends the assistant generation cue. The system message, when present,
// must be first.
func Render(template string, msgs []types.ChatMessage) (string, error) {
	switch template {
	case config.TemplateChatML:
		return renderChatML(msgs), nil
	case config.TemplateLlama:
		return renderLlama(msgs), nil
	case config.TemplateRaw:
		return renderRaw(msgs), nil
	default:
		return "", fmt.Errorf("unknown template kind: %s", template)
	}
}

func renderChatML(msgs []types.ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func renderLlama(msgs []types.ChatMessage) string {
	var b strings.Builder
	var system string
	i := 0
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		system = msgs[0].Content
		i = 1
	}
	firstUser := true
	for ; i < len(msgs); i++ {
		m := msgs[i]
		switch m.Role {
		case types.RoleUser:
			b.WriteString("<s>[INST] ")
			if firstUser && system != "" {
				b.WriteString("<<SYS>>\n")
				b.WriteString(system)
				b.WriteString("\n<</SYS>>\n\n")
			}
			firstUser = false
			b.WriteString(m.Content)
			b.WriteString(" [/INST]")
		case types.RoleAssistant:
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString(" </s>")
		}
	}
	return b.String()
}

func renderRaw(msgs []types.ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}
