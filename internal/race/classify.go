package race

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// recordedBodyBytes bounds the body excerpt kept on an AttemptRecord.
const recordedBodyBytes = 4 << 10

// RawResponse is what one attempt brought back from the wire.
type RawResponse struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Err        error
}

// Classification is the verdict for one RawResponse.
type Classification struct {
	Verdict models.Verdict
	Reason  string
	Err     error
}

// Classifier turns raw responses into verdicts. It holds no state, so the
// same response always yields the same verdict.
type Classifier struct {
	successStatuses []string
	loginPath       string
}

func NewClassifier(cfg Config) Classifier {
	cfg = cfg.withDefaults()
	statuses := make([]string, 0, len(cfg.SuccessStatuses))
	for _, s := range cfg.SuccessStatuses {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, s)
		}
	}
	return Classifier{
		successStatuses: statuses,
		loginPath:       "/" + strings.Trim(cfg.LoginPath, "/"),
	}
}

func (c Classifier) Classify(r RawResponse) Classification {
	if r.Err != nil {
		return indeterminate(fmt.Errorf("%w: %w", ErrAttemptTransport, r.Err))
	}
	if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden || c.onLoginPage(r.FinalURL) {
		return indeterminate(fmt.Errorf("%w: http %d at %s", ErrSessionExpired, r.StatusCode, r.FinalURL))
	}

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(r.Body), &payload); err != nil {
		return indeterminate(fmt.Errorf("%w: http %d: %v", ErrAttemptPayload, r.StatusCode, err))
	}
	if payload == nil {
		return indeterminate(fmt.Errorf("%w: http %d: empty payload", ErrAttemptPayload, r.StatusCode))
	}
	status, ok := payload["status"].(string)
	if !ok {
		return indeterminate(fmt.Errorf("%w: http %d: missing status field", ErrAttemptPayload, r.StatusCode))
	}

	if c.isSuccess(status) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			// A success payload carried by an error status is contradictory.
			return indeterminate(fmt.Errorf("%w: success payload with http %d", ErrAttemptPayload, r.StatusCode))
		}
		return Classification{Verdict: models.VerdictSuccess, Reason: status}
	}
	return Classification{Verdict: models.VerdictFailure, Reason: rejectionReason(payload, status)}
}

// Finalize classifies an attempt and returns its completed record.
func (c Classifier) Finalize(a Attempt) models.AttemptRecord {
	rec := a.Record
	cl := c.Classify(a.Response)
	rec.Verdict = cl.Verdict
	rec.Reason = cl.Reason
	if cl.Err != nil {
		rec.Error = cl.Err.Error()
	}
	body := a.Response.Body
	if len(body) > recordedBodyBytes {
		body = body[:recordedBodyBytes]
	}
	rec.Body = string(body)
	return rec
}

func (c Classifier) isSuccess(status string) bool {
	status = strings.TrimSpace(status)
	for _, s := range c.successStatuses {
		if strings.EqualFold(status, s) {
			return true
		}
	}
	return false
}

func (c Classifier) onLoginPage(finalURL string) bool {
	if finalURL == "" {
		return false
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	return p == c.loginPath || strings.HasSuffix(p, c.loginPath)
}

func rejectionReason(payload map[string]any, status string) string {
	for _, k := range []string{"message", "error", "reason"} {
		if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return status
}

func indeterminate(err error) Classification {
	return Classification{Verdict: models.VerdictIndeterminate, Err: err}
}
