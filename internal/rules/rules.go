package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// Rule is one named detection check. Evaluate is a pure predicate over
// the evidence: it returns zero or more findings and must not touch the
// network or filesystem. Severity and metadata are static per rule; only
// the evidence anchors vary with what actually matched.
type Rule interface {
	ID() string
	Evaluate(ev *Evidence) []models.Finding
}

// newFinding fills the static metadata shared by every rule's findings.
// ID, RunID and CreatedAt are stamped later by the coordinator.
func newFinding(ev *Evidence, detectorID, title string, sev models.Severity, cwe, component, remediation string, anchors ...string) models.Finding {
	return models.Finding{
		EndpointKey:          ev.EndpointKey,
		DetectorID:           detectorID,
		Title:                title,
		Severity:             sev,
		CWE:                  cwe,
		AffectedComponent:    component,
		SuggestedRemediation: remediation,
		EvidenceAnchors:      anchors,
	}
}

// ReflectedInputRule flags responses that echo the probe's canary marker
// back verbatim, the classic precondition for reflected XSS.
type ReflectedInputRule struct{}

func (ReflectedInputRule) ID() string { return "reflected-input" }

func (r ReflectedInputRule) Evaluate(ev *Evidence) []models.Finding {
	if ev.Canary == "" {
		return nil
	}

	var anchors []string
	if strings.Contains(ev.Body(), ev.Canary) {
		anchors = append(anchors, AnchorResponseBody)
	}
	for _, vs := range ev.ResponseHeaders {
		for _, v := range vs {
			if strings.Contains(v, ev.Canary) {
				anchors = append(anchors, AnchorHeaders)
				break
			}
		}
		if len(anchors) > 1 {
			break
		}
	}
	if len(anchors) == 0 {
		return nil
	}

	return []models.Finding{newFinding(ev, r.ID(),
		"Request input reflected in response",
		models.SeverityHigh, "CWE-79", "response rendering",
		"Encode or strip user-controlled input before including it in responses.",
		anchors...)}
}

// SecurityHeadersRule reports the standard hardening headers an endpoint
// fails to send. One finding lists the whole missing set.
type SecurityHeadersRule struct{}

func (SecurityHeadersRule) ID() string { return "missing-security-headers" }

func (r SecurityHeadersRule) Evaluate(ev *Evidence) []models.Finding {
	required := []string{
		"Content-Security-Policy",
		"X-Content-Type-Options",
		"X-Frame-Options",
	}
	if strings.HasPrefix(ev.URL, "https://") {
		required = append(required, "Strict-Transport-Security")
	}

	var missing []string
	for _, h := range required {
		if ev.Header(h) == "" {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return []models.Finding{newFinding(ev, r.ID(),
		fmt.Sprintf("Missing security headers: %s", strings.Join(missing, ", ")),
		models.SeverityLow, "CWE-693", "http response headers",
		"Send the standard hardening headers on every response.",
		AnchorHeaders)}
}

// CORSWildcardRule flags the invalid but widely mis-deployed combination
// of a wildcard origin with credentials allowed.
type CORSWildcardRule struct{}

func (CORSWildcardRule) ID() string { return "cors-wildcard-credentials" }

func (r CORSWildcardRule) Evaluate(ev *Evidence) []models.Finding {
	origin := strings.TrimSpace(ev.Header("Access-Control-Allow-Origin"))
	creds := strings.TrimSpace(ev.Header("Access-Control-Allow-Credentials"))
	if origin != "*" || !strings.EqualFold(creds, "true") {
		return nil
	}

	return []models.Finding{newFinding(ev, r.ID(),
		"CORS wildcard origin with credentials enabled",
		models.SeverityHigh, "CWE-942", "cors policy",
		"Reflect an allow-listed origin instead of * when credentials are allowed.",
		AnchorHeaders)}
}

var sqlErrorSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you have an error in your sql syntax`),
	regexp.MustCompile(`(?i)unclosed quotation mark after the character string`),
	regexp.MustCompile(`(?i)pg::syntaxerror|pq: syntax error`),
	regexp.MustCompile(`(?i)ora-\d{5}`),
	regexp.MustCompile(`(?i)sqlite3?\.OperationalError`),
	regexp.MustCompile(`(?i)syntax error at or near`),
}

// SQLErrorRule matches database error strings leaking into the body,
// a strong signal the endpoint builds queries from raw input.
type SQLErrorRule struct{}

func (SQLErrorRule) ID() string { return "sql-error-signature" }

func (r SQLErrorRule) Evaluate(ev *Evidence) []models.Finding {
	body := ev.Body()
	for _, sig := range sqlErrorSignatures {
		if sig.MatchString(body) {
			return []models.Finding{newFinding(ev, r.ID(),
				"SQL error signature in response body",
				models.SeverityHigh, "CWE-89", "database layer",
				"Use parameterized queries and return generic error pages.",
				AnchorResponseBody)}
		}
	}
	return nil
}

var stackTraceSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s+at [\w$.]+\(.*\.java:\d+\)`),
	regexp.MustCompile(`(?m)^\s{2,}File ".+", line \d+, in `),
	regexp.MustCompile(`goroutine \d+ \[\w+\]:`),
	regexp.MustCompile(`(?m)^\s+at .+ \(.+\.js:\d+:\d+\)`),
	regexp.MustCompile(`(?i)fatal error: uncaught (exception|error)`),
}

// StackTraceRule matches runtime stack traces disclosed to the client.
type StackTraceRule struct{}

func (StackTraceRule) ID() string { return "stack-trace-disclosure" }

func (r StackTraceRule) Evaluate(ev *Evidence) []models.Finding {
	body := ev.Body()
	for _, sig := range stackTraceSignatures {
		if sig.MatchString(body) {
			return []models.Finding{newFinding(ev, r.ID(),
				"Stack trace disclosed in response body",
				models.SeverityMedium, "CWE-209", "error handling",
				"Disable debug error pages in production.",
				AnchorResponseBody)}
		}
	}
	return nil
}

// piiSignatures is an ordered list so the finding title is stable
// across evaluations of the same evidence.
var piiSignatures = []struct {
	label string
	sig   *regexp.Regexp
}{
	{"email address", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"SSN-like number", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"card-like number", regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`)},
}

// PIIRule matches personal data patterns in the body.
type PIIRule struct{}

func (PIIRule) ID() string { return "pii-disclosure" }

func (r PIIRule) Evaluate(ev *Evidence) []models.Finding {
	body := ev.Body()
	var matched []string
	for _, entry := range piiSignatures {
		if entry.sig.MatchString(body) {
			matched = append(matched, entry.label)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	return []models.Finding{newFinding(ev, r.ID(),
		fmt.Sprintf("Possible PII in response: %s", strings.Join(matched, ", ")),
		models.SeverityMedium, "CWE-359", "response payload",
		"Mask or drop personal data that the caller does not need.",
		AnchorResponseBody)}
}

// RateLimitHeadersRule flags successful API responses that advertise no
// rate limiting at all.
type RateLimitHeadersRule struct{}

func (RateLimitHeadersRule) ID() string { return "rate-limit-headers-missing" }

func (r RateLimitHeadersRule) Evaluate(ev *Evidence) []models.Finding {
	if ev.StatusCode < 200 || ev.StatusCode >= 300 {
		return nil
	}
	if !strings.Contains(ev.URL, "/api/") {
		return nil
	}
	for _, h := range []string{"X-RateLimit-Limit", "RateLimit-Limit", "X-Rate-Limit-Limit", "Retry-After"} {
		if ev.Header(h) != "" {
			return nil
		}
	}

	return []models.Finding{newFinding(ev, r.ID(),
		"No rate-limit headers on API response",
		models.SeverityInfo, "CWE-770", "api gateway",
		"Expose rate-limit headers so clients can back off before being blocked.",
		AnchorHeaders, AnchorURL)}
}
