package inbound

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// FallbackMessageIDDomain is the domain of synthesized Message-IDs.
const FallbackMessageIDDomain = "autolead.no"

// ParseAddressList returns the bare addresses in a relay "to" value. The
// value may be a bare address, "Name <addr>", or a comma separated list.
func ParseAddressList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		out := make([]string, 0, len(list))
		for _, addr := range list {
			out = append(out, strings.ToLower(addr.Address))
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if addr, _ := splitAddress(part); strings.Contains(addr, "@") {
			out = append(out, strings.ToLower(addr))
		}
	}
	return out
}

// ParseSender splits a "from" value into address and optional display name.
func ParseSender(value string) (string, *string) {
	if addr, err := mail.ParseAddress(strings.TrimSpace(value)); err == nil {
		return addr.Address, optional(addr.Name)
	}
	addr, name := splitAddress(value)
	return addr, optional(name)
}

// splitAddress handles values net/mail rejects, e.g. unquoted commas or
// dots in the display name.
func splitAddress(value string) (string, string) {
	value = strings.TrimSpace(value)
	open := strings.LastIndex(value, "<")
	end := strings.LastIndex(value, ">")
	if open < 0 || end < open {
		return strings.Trim(value, `"' `), ""
	}
	name := strings.Trim(strings.TrimSpace(value[:open]), `"'`)
	return strings.TrimSpace(value[open+1 : end]), name
}

// ParseHeaders decodes the relay "headers" field. JSON objects are kept as
// is; a raw RFC 5322 header block is parsed into first values per field and
// kept under "raw" as well.
func ParseHeaders(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil && decoded != nil {
		return decoded
	}

	out := map[string]any{"raw": raw}
	msg, err := mail.ReadMessage(strings.NewReader(raw + "\n\n"))
	if err != nil {
		return out
	}
	for key, values := range msg.Header {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// HeaderValue looks up a header case-insensitively.
func HeaderValue(headers map[string]any, name string) string {
	for key, value := range headers {
		if !strings.EqualFold(key, name) {
			continue
		}
		switch v := value.(type) {
		case string:
			return strings.TrimSpace(v)
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return ""
}

// MessageID returns the Message-ID header, or a deterministic id derived from
// the envelope when the relay did not pass one.
func MessageID(headers map[string]any, from, to, subject string, receivedAt time.Time) string {
	if id := HeaderValue(headers, "Message-ID"); id != "" {
		return id
	}
	sum := md5.Sum([]byte(from + to + subject + receivedAt.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("<%x@%s>", sum, FallbackMessageIDDomain)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
