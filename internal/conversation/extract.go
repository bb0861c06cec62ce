package conversation

import "strings"

// GroupSuffix marks group-chat routing addresses. Group traffic is always
// excluded from the pipeline.
const GroupSuffix = "@g.us"

var captionFields = []string{"imageMessage", "videoMessage", "documentMessage", "audioMessage"}

// ExtractText pulls the plain text out of a raw message, trying the known
// text-bearing sub-shapes in precedence order: conversation, extended text,
// media captions, a plain text field, then ephemeral unwrapping. When the
// message body carries none of them, the envelope's data.message is checked
// as a last resort. An empty result means "no text", not an error.
func ExtractText(raw RawMessage, envelope map[string]any) string {
	if text := extractFromBody(childMap(raw, "message")); text != "" {
		return text
	}

	if data, ok := envelope["data"].(map[string]any); ok {
		if dm := childMap(data, "message"); dm != nil {
			if text := childString(dm, "conversation"); text != "" {
				return text
			}
			if ext := childMap(dm, "extendedTextMessage"); ext != nil {
				if text := childString(ext, "text"); text != "" {
					return text
				}
			}
			for _, field := range []string{"imageMessage", "videoMessage", "documentMessage"} {
				if media := childMap(dm, field); media != nil {
					if caption := childString(media, "caption"); caption != "" {
						return caption
					}
				}
			}
		}
	}

	return ""
}

func extractFromBody(body map[string]any) string {
	if body == nil {
		return ""
	}

	if _, ok := body["conversation"]; ok {
		return childString(body, "conversation")
	}
	if ext, ok := body["extendedTextMessage"]; ok {
		if extMap, ok := ext.(map[string]any); ok {
			return childString(extMap, "text")
		}
		return ""
	}

	for _, field := range captionFields {
		if media := childMap(body, field); media != nil {
			if caption := childString(media, "caption"); caption != "" {
				return caption
			}
		}
	}

	if text, ok := body["text"].(string); ok {
		return text
	}

	// Disappearing messages wrap the real body one level down.
	if eph := childMap(body, "ephemeralMessage"); eph != nil {
		inner := childMap(eph, "message")
		if inner != nil {
			if _, ok := inner["conversation"]; ok {
				return childString(inner, "conversation")
			}
			if ext := childMap(inner, "extendedTextMessage"); ext != nil {
				return childString(ext, "text")
			}
		}
	}

	return ""
}

// ExtractIdentity resolves the routing address and digits-only number of a
// message sender. Address precedence: key.remoteJid, key.participant,
// msg.from, envelope sender, then envelope data fields. Group addresses are
// returned unchanged with an empty number so the caller can exclude them.
// Self-sent events sometimes omit routing metadata entirely; when fromMe is
// set and nothing resolved, the configured self number stands in.
func ExtractIdentity(raw RawMessage, envelope map[string]any, selfNumber string, fromMe bool) (remote, number string) {
	key := childMap(raw, "key")
	if key != nil {
		remote = childString(key, "remoteJid")
		if remote == "" {
			remote = childString(key, "participant")
		}
	}
	if remote == "" {
		remote = childString(raw, "from")
	}
	if remote == "" {
		remote = childString(envelope, "sender")
	}
	if remote == "" {
		if data, ok := envelope["data"].(map[string]any); ok {
			remote = childString(data, "sender")
			if remote == "" {
				remote = childString(data, "from")
			}
			if remote == "" {
				remote = childString(data, "remoteJid")
			}
		}
	}

	if strings.HasSuffix(remote, GroupSuffix) {
		return remote, ""
	}

	number = OnlyDigits(remote)
	if fromMe && number == "" {
		number = OnlyDigits(selfNumber)
	}
	return remote, number
}

// OnlyDigits strips everything but 0-9 from a routing address or phone number.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FromMe reports whether the raw message was sent by the bot's own account.
func FromMe(raw RawMessage) bool {
	key := childMap(raw, "key")
	if key == nil {
		return false
	}
	v, _ := key["fromMe"].(bool)
	return v
}
