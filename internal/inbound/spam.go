package inbound

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"gopkg.in/yaml.v3"
)

//go:embed spam_policy.yaml
var defaultSpamPolicy []byte

var linkPattern = regexp.MustCompile(`(?i)<a\s+href=`)

// SpamPolicy decides whether an email is obvious spam before classification.
type SpamPolicy interface {
	Check(msg Message) (spam bool, reason string)
}

// KeywordPolicy flags blocked sender domains, listed phrases, link-heavy
// HTML and HTML bodies with an unsubscribe link.
type KeywordPolicy struct {
	Domains           []string `yaml:"domains"`
	Phrases           []string `yaml:"phrases"`
	MaxLinks          int      `yaml:"max_links"`
	UnsubscribeInHTML bool     `yaml:"unsubscribe_in_html"`

	domains map[string]struct{}
}

// DefaultSpamPolicy returns the embedded policy.
func DefaultSpamPolicy() (*KeywordPolicy, error) {
	return ParseSpamPolicy(defaultSpamPolicy)
}

// LoadSpamPolicy reads a policy file, or the embedded default when path is empty.
func LoadSpamPolicy(path string) (*KeywordPolicy, error) {
	if path == "" {
		return DefaultSpamPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spam policy: %w", err)
	}
	return ParseSpamPolicy(data)
}

// ParseSpamPolicy decodes a YAML policy.
func ParseSpamPolicy(data []byte) (*KeywordPolicy, error) {
	var p KeywordPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse spam policy: %w", err)
	}
	if p.MaxLinks < 0 {
		return nil, fmt.Errorf("parse spam policy: max_links must not be negative")
	}

	p.domains = make(map[string]struct{}, len(p.Domains))
	for _, d := range p.Domains {
		if norm := normalizeDomain(d); norm != "" {
			p.domains[norm] = struct{}{}
		}
	}
	for i, phrase := range p.Phrases {
		p.Phrases[i] = strings.ToLower(strings.TrimSpace(phrase))
	}
	return &p, nil
}

// Check applies the rules in order: sender domain, subject phrases, body
// phrases, link count, unsubscribe link.
func (p *KeywordPolicy) Check(msg Message) (bool, string) {
	if at := strings.LastIndex(msg.FromEmail, "@"); at >= 0 {
		domain := normalizeDomain(msg.FromEmail[at+1:])
		if _, blocked := p.domains[domain]; blocked {
			return true, fmt.Sprintf("Sender domain '%s' is blacklisted", domain)
		}
	}

	subject := strings.ToLower(msg.Subject)
	for _, phrase := range p.Phrases {
		if phrase != "" && strings.Contains(subject, phrase) {
			return true, fmt.Sprintf("Subject contains spam keyword: '%s'", phrase)
		}
	}

	body := strings.ToLower(msg.Body())
	for _, phrase := range p.Phrases {
		if phrase != "" && strings.Contains(body, phrase) {
			return true, fmt.Sprintf("Body contains spam keyword: '%s'", phrase)
		}
	}

	if msg.BodyHTML != "" {
		if p.MaxLinks > 0 {
			if links := len(linkPattern.FindAllStringIndex(msg.BodyHTML, -1)); links > p.MaxLinks {
				return true, fmt.Sprintf("Email contains %d links (likely newsletter/marketing)", links)
			}
		}
		if p.UnsubscribeInHTML && strings.Contains(strings.ToLower(msg.BodyHTML), "unsubscribe") {
			return true, "Email contains unsubscribe link (likely newsletter)"
		}
	}

	return false, ""
}

// normalizeDomain lowercases and converts internationalized domains to their
// ASCII form so "bil.no" and "BIL.NO." or Unicode spellings compare equal.
func normalizeDomain(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return domain
	}
	return ascii
}

var _ SpamPolicy = (*KeywordPolicy)(nil)
