package conversation

// RawMessage is one inbound gateway message as decoded JSON. The gateway
// emits several incompatible envelope shapes, so fields are walked
// dynamically instead of unmarshalled into a fixed struct.
type RawMessage map[string]any

// Normalize flattens an inbound webhook envelope into the ordered list of
// raw messages it carries. The gateway wraps messages differently depending
// on the event type; the checks run in strict precedence order and the first
// match wins. Unrecognized shapes yield an empty slice, never an error.
func Normalize(envelope map[string]any) []RawMessage {
	if list, ok := envelope["messages"].([]any); ok {
		return toRawMessages(list)
	}

	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return nil
	}

	if list, ok := data["messages"].([]any); ok {
		return toRawMessages(list)
	}
	if single, ok := data["message"].(map[string]any); ok {
		return []RawMessage{RawMessage(single)}
	}

	// Most ambiguous shape last: data itself looks like a message.
	if hasAnyKey(data, "key", "message", "messageType") {
		return []RawMessage{RawMessage(data)}
	}

	return nil
}

func toRawMessages(list []any) []RawMessage {
	out := make([]RawMessage, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, RawMessage(m))
		}
	}
	return out
}

func hasAnyKey(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// childMap returns m[key] when it is an object, nil otherwise.
func childMap(m map[string]any, key string) map[string]any {
	child, _ := m[key].(map[string]any)
	return child
}

// childString returns m[key] when it is a string.
func childString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
