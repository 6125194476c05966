package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// techSignature identifies one technology from response evidence.
type techSignature struct {
	Name    string
	Header  string         // response header to inspect, empty for body checks
	Match   *regexp.Regexp // matches the header value or body
	Version *regexp.Regexp // optional capture group 1 extracts the version
}

var techSignatures = []techSignature{
	{
		Name:    "nginx",
		Header:  "Server",
		Match:   regexp.MustCompile(`(?i)nginx`),
		Version: regexp.MustCompile(`(?i)nginx/([0-9.]+)`),
	},
	{
		Name:    "Apache",
		Header:  "Server",
		Match:   regexp.MustCompile(`(?i)apache`),
		Version: regexp.MustCompile(`(?i)apache/([0-9.]+)`),
	},
	{
		Name:    "IIS",
		Header:  "Server",
		Match:   regexp.MustCompile(`(?i)microsoft-iis`),
		Version: regexp.MustCompile(`(?i)microsoft-iis/([0-9.]+)`),
	},
	{
		Name:    "PHP",
		Header:  "X-Powered-By",
		Match:   regexp.MustCompile(`(?i)php`),
		Version: regexp.MustCompile(`(?i)php/([0-9.]+)`),
	},
	{
		Name:    "Express",
		Header:  "X-Powered-By",
		Match:   regexp.MustCompile(`(?i)express`),
		Version: regexp.MustCompile(`(?i)express/?([0-9.]+)?`),
	},
	{
		Name:    "ASP.NET",
		Header:  "X-Aspnet-Version",
		Match:   regexp.MustCompile(`.`),
		Version: regexp.MustCompile(`([0-9.]+)`),
	},
	{
		Name:    "WordPress",
		Match:   regexp.MustCompile(`(?i)<meta name="generator" content="wordpress`),
		Version: regexp.MustCompile(`(?i)<meta name="generator" content="wordpress ([0-9.]+)`),
	},
}

// TechDisclosureRule reports server and framework banners that disclose
// an exact version. Knowing the version is what turns a banner into a
// CVE lookup table for an attacker, so versionless banners are ignored.
type TechDisclosureRule struct{}

func (TechDisclosureRule) ID() string { return "tech-version-disclosure" }

func (r TechDisclosureRule) Evaluate(ev *Evidence) []models.Finding {
	var findings []models.Finding

	for _, sig := range techSignatures {
		subject := ev.Body()
		anchor := AnchorResponseBody
		if sig.Header != "" {
			subject = ev.Header(sig.Header)
			anchor = AnchorHeaders
		}
		if subject == "" || !sig.Match.MatchString(subject) {
			continue
		}

		version := ""
		if m := sig.Version.FindStringSubmatch(subject); len(m) > 1 {
			version = m[1]
		}
		if version == "" {
			continue
		}

		findings = append(findings, newFinding(ev, r.ID(),
			fmt.Sprintf("%s %s version disclosed", sig.Name, version),
			models.SeverityInfo, "CWE-200", strings.ToLower(sig.Name),
			"Strip or genericize version banners in production responses.",
			anchor))
	}
	return findings
}
