package conversation

import (
	"strings"
	"time"
)

const helpReply = "Comandos: ping, hora, data, /eco <texto>, /ai <pergunta>\n" +
	"Obs: em SELF_TEST=1, responde só às suas mensagens 😉"

// aiPrefix routes a message to the LLM. The trailing space is part of the
// prefix: "/ai" alone is not a command.
const aiPrefix = "/ai "

// RouteBuiltin matches the quick built-in commands. It returns the reply and
// true on a match; first match wins. now supplies the clock so hora/data are
// deterministic under test.
func RouteBuiltin(text string, now func() time.Time) (string, bool) {
	t := strings.TrimSpace(text)
	tl := strings.ToLower(t)

	switch tl {
	case "ping", "/ping":
		return "pong", true
	case "hora", "/hora":
		return "Hora: " + now().Format("15:04:05"), true
	case "data", "/data":
		return "Data: " + now().Format("02/01/2006"), true
	case "ajuda", "/ajuda", "/help":
		return helpReply, true
	}
	if strings.HasPrefix(tl, "/eco ") {
		return t[5:], true
	}
	return "", false
}

// ParseAIPrompt extracts the prompt of an /ai command. ok reports whether
// the text is an /ai command at all; an ok result with an empty prompt means
// the user typed the command without a question. Only the left side is
// trimmed before matching: the trailing space is part of the prefix, so
// "/ai " with nothing after it is the command with an empty prompt.
func ParseAIPrompt(text string) (prompt string, ok bool) {
	t := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(strings.ToLower(t), aiPrefix) {
		return "", false
	}
	return strings.TrimSpace(t[len(aiPrefix):]), true
}
