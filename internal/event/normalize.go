package event

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Alias orders for field resolution. First non-empty wins. The Spanish
// aliases come from the legacy CRM backend, which emits them on some of
// its older event shapes.
var (
	idAliases          = []string{"id", "uuid", "code"}
	titleAliases       = []string{"title", "message", "descripcion", "event"}
	descriptionAliases = []string{"description", "body", "detalle"}
	timestampAliases   = []string{"at", "fecha", "timestamp"}
	roomAliases        = []string{"room", "channel", "chat"}
	senderIDAliases    = []string{"participantId", "senderId", "de"}
	senderRoleAliases  = []string{"role", "tipo"}
	readAliases        = []string{"read", "readed", "leida", "visto"}
)

// typeNames maps raw type markers onto the canonical enum.
var typeNames = map[string]Type{
	"created":      TypeCreated,
	"new":          TypeCreated,
	"updated":      TypeUpdated,
	"update":       TypeUpdated,
	"reassigned":   TypeReassigned,
	"reassign":     TypeReassigned,
	"files_added":  TypeFilesAdded,
	"files":        TypeFilesAdded,
	"chat":         TypeChatMessage,
	"message":      TypeChatMessage,
	"chat_message": TypeChatMessage,
}

// Normalize maps a raw payload onto a canonical Notification. It is pure
// and never panics: unrecognized shapes degrade to a generic notification
// with a best-effort title. The only input it refuses is one that is not
// an object at all (ok == false).
//
// now supplies the fallback timestamp so callers (and tests) control time.
func Normalize(raw map[string]any, now time.Time) (Notification, bool) {
	if raw == nil {
		return Notification{}, false
	}

	n := Notification{
		ID:          stringAlias(raw, idAliases),
		Title:       stringAlias(raw, titleAliases),
		Description: stringAlias(raw, descriptionAliases),
		Room:        stringAlias(raw, roomAliases),
		SenderID:    stringAlias(raw, senderIDAliases),
		SenderRole:  stringAlias(raw, senderRoleAliases),
		Read:        boolAlias(raw, readAliases),
		Raw:         raw,
	}

	n.Type = resolveType(raw)
	n.Timestamp = timeAlias(raw, timestampAliases, now)

	return n, true
}

// NormalizeJSON parses a JSON object and normalizes it. A payload that is
// not a JSON object is structurally unparsable and returns ok == false.
func NormalizeJSON(data []byte, now time.Time) (Notification, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notification{}, false
	}
	return Normalize(raw, now)
}

func resolveType(raw map[string]any) Type {
	for _, key := range []string{"type", "event", "tipo"} {
		s, ok := raw[key].(string)
		if !ok {
			continue
		}
		if t, known := typeNames[strings.ToLower(strings.TrimSpace(s))]; known {
			return t
		}
	}
	return TypeGeneric
}

// stringAlias returns the first non-empty string-convertible value among
// the aliased keys. Numeric ids arrive as JSON numbers on some shapes and
// are formatted back to their string form.
func stringAlias(raw map[string]any, aliases []string) string {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return formatNumber(s)
		case int:
			return strconv.Itoa(s)
		case int64:
			return strconv.FormatInt(s, 10)
		}
	}
	return ""
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolAlias(raw map[string]any, aliases []string) bool {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b
		case float64:
			return b != 0
		case string:
			switch strings.ToLower(b) {
			case "true", "1", "yes", "si", "sí":
				return true
			case "false", "0", "no", "":
				return false
			}
		}
	}
	return false
}

// timeAlias resolves a timestamp from the aliased keys, accepting RFC3339
// strings, "2006-01-02 15:04:05" strings, and epoch seconds/milliseconds.
// Resolution failure falls back to now.
func timeAlias(raw map[string]any, aliases []string, now time.Time) time.Time {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if parsed, ok := parseTimeString(t); ok {
				return parsed
			}
		case float64:
			if t <= 0 {
				continue
			}
			// Heuristic: values past 1e12 are epoch milliseconds.
			if t > 1e12 {
				return time.UnixMilli(int64(t))
			}
			return time.Unix(int64(t), 0)
		}
	}
	return now
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		if ms > 1e12 {
			return time.UnixMilli(ms), true
		}
		return time.Unix(ms, 0), true
	}
	return time.Time{}, false
}
