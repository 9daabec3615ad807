package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Signal is the advisory verdict
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// MaxReasonLength caps the advisory rationale
const MaxReasonLength = 60

// Advice is a parsed advisory response
type Advice struct {
	Signal Signal `json:"signal"`
	Reason string `json:"reason"`
}

// ParseError means the model answered but nothing usable could be extracted
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 80 {
		raw = raw[:80] + "..."
	}
	return fmt.Sprintf("unparseable advisory response: %q", raw)
}

var (
	codeFenceRe  = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
	signalWordRe = regexp.MustCompile(`\b(buy|sell|hold)\b`)
)

// stripMarkdownCodeBlock removes a surrounding ```json fence
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeFenceRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// ParseAdvice extracts a signal from model text. It tries the JSON object
// first, then the same object with single quotes, then a bare signal word.
func ParseAdvice(raw string) (Advice, error) {
	text := stripMarkdownCodeBlock(raw)

	if obj := jsonObjectRe.FindString(text); obj != "" {
		if advice, ok := decodeAdvice(obj); ok {
			return advice, nil
		}
		if advice, ok := decodeAdvice(strings.ReplaceAll(obj, "'", `"`)); ok {
			return advice, nil
		}
	}

	if m := signalWordRe.FindStringSubmatch(strings.ToLower(text)); m != nil {
		return Advice{Signal: Signal(m[1]), Reason: truncateReason(text)}, nil
	}

	return Advice{}, &ParseError{Raw: raw}
}

func decodeAdvice(obj string) (Advice, bool) {
	var payload struct {
		Signal interface{} `json:"signal"`
		Reason interface{} `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return Advice{}, false
	}

	sig := Signal(strings.ToLower(strings.TrimSpace(fmt.Sprint(payload.Signal))))
	if !sig.Valid() {
		return Advice{}, false
	}

	reason := ""
	if payload.Reason != nil {
		reason = fmt.Sprint(payload.Reason)
	}
	return Advice{Signal: sig, Reason: truncateReason(reason)}, true
}

// Valid reports whether s is buy, sell or hold
func (s Signal) Valid() bool {
	return s == SignalBuy || s == SignalSell || s == SignalHold
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	r := []rune(reason)
	if len(r) > MaxReasonLength {
		return string(r[:MaxReasonLength])
	}
	return reason
}
