package payment

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The ticketing API has changed casing and nesting over time; every key
// spelling it has used for a field is listed here and nowhere else.
var (
	correlationKeys = []string{
		"CheckoutRequestID", "checkoutRequestID", "checkoutRequestId", "CheckoutRequestId",
		"checkout_request_id", "correlationId", "correlation_id",
	}
	responseCodeKeys    = []string{"ResponseCode", "responseCode", "response_code"}
	customerMessageKeys = []string{
		"CustomerMessage", "customerMessage", "customer_message", "message",
		"ResponseDescription", "responseDescription", "response_description",
	}
	errorMessageKeys = []string{
		"errorMessage", "ErrorMessage", "error_message", "message", "error",
		"ResponseDescription", "responseDescription", "response_description",
		"CustomerMessage", "customerMessage",
	}
	statusKeys = []string{
		"status", "Status", "paymentStatus", "payment_status", "state", "resultStatus",
	}
	envelopeKeys = []string{"data", "response", "result", "payment"}
)

const maxPlainTextLen = 200

// ParseInitiation normalizes a 2xx initiation body. Free-text and
// non-object bodies yield an empty result.
func ParseInitiation(body []byte) InitiationResult {
	obj, ok := decodeObject(body)
	if !ok {
		return InitiationResult{}
	}
	return InitiationResult{
		CorrelationID: lookup(obj, correlationKeys),
		ResponseCode:  lookup(obj, responseCodeKeys),
		Message:       lookup(obj, customerMessageKeys),
		ErrorMessage:  lookup(obj, errorMessageKeys),
	}
}

// Rejected reports whether the gateway declined the push even though the
// HTTP exchange succeeded. An absent code means accepted.
func (r InitiationResult) Rejected() bool {
	code := strings.TrimSpace(r.ResponseCode)
	if code == "" {
		return false
	}
	n, err := strconv.ParseFloat(code, 64)
	if err != nil {
		return true
	}
	return n != 0
}

// RejectionMessage is the most specific human-readable reason available.
func (r InitiationResult) RejectionMessage() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return r.Message
}

// ParseStatus extracts a status label from a JSON object, a JSON string or
// a plain-text body.
func ParseStatus(body []byte) StatusResult {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return StatusResult{}
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err == nil {
		switch t := v.(type) {
		case map[string]any:
			return StatusResult{Status: canonicalStatus(lookup(t, statusKeys))}
		case string:
			return StatusResult{Status: canonicalStatus(t)}
		}
		return StatusResult{}
	}
	return StatusResult{Status: canonicalStatus(plainText(trimmed))}
}

// Outcome classifies a status label.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (r StatusResult) Outcome() Outcome {
	switch r.Status {
	case "success", "completed":
		return OutcomeSucceeded
	case "failed", "cancelled":
		return OutcomeFailed
	}
	return OutcomePending
}

// MessageFromBody pulls an error message out of a failed response, JSON or text.
func MessageFromBody(body []byte) string {
	if obj, ok := decodeObject(body); ok {
		return lookup(obj, errorMessageKeys)
	}
	return plainText(bytes.TrimSpace(body))
}

func decodeObject(body []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// lookup returns the first non-empty scalar under any of keys, checking the
// top level before one level of envelope objects.
func lookup(obj map[string]any, keys []string) string {
	if s := lookupFlat(obj, keys); s != "" {
		return s
	}
	for _, env := range envelopeKeys {
		if nested, ok := obj[env].(map[string]any); ok {
			if s := lookupFlat(nested, keys); s != "" {
				return s
			}
		}
	}
	return ""
}

func lookupFlat(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func canonicalStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// plainText accepts short single-line bodies; HTML error pages and the like are dropped.
func plainText(b []byte) string {
	s := string(b)
	if s == "" || len(s) > maxPlainTextLen || strings.ContainsAny(s, "<\n") {
		return ""
	}
	return s
}
