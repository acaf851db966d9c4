package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// statusError maps an HTTP error status onto a backend failure kind.
func statusError(status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	lower := strings.ToLower(msg)

	be := &domain.BackendError{StatusCode: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		be.Kind = domain.FailureInvalidCredential
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired,
		strings.Contains(lower, "insufficient_quota"), strings.Contains(lower, "quota"):
		be.Kind = domain.FailureQuotaExceeded
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		be.Kind = domain.FailureTimeout
	default:
		be.Kind = domain.FailureBackend
	}
	return be
}

// errorMessage pulls a human message out of the usual {"error": ...} envelopes.
func errorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil {
			parts := make([]string, 0, 2)
			for _, p := range []string{nested.Code, nested.Type} {
				if p != "" {
					parts = append(parts, p)
					break
				}
			}
			if nested.Message != "" {
				parts = append(parts, nested.Message)
			}
			return strings.Join(parts, ": ")
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil {
			return plain
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// transportError classifies a failed round trip. Context errors pass through
// unchanged so the caller can tell cancellation from timeout.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.BackendError{Kind: domain.FailureTimeout, Message: "request timed out", Err: err}
	}
	return &domain.BackendError{Kind: domain.FailureBackend, Message: "request failed", Err: err}
}
