package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/sunopiusme/rlguardbot/internal/config"
)

// Confidence constants for the curated rule kinds. Spam patterns are
// high-precision by curation; keyword and heuristic signals are noisier.
const (
	confidenceSpamPattern     = 0.95
	confidenceKeywordDensity  = 0.8
	confidenceShouting        = 0.6
	confidenceOffensive       = 0.85
	confidenceTooManyLinks    = 0.7
	confidenceUntrustedLink   = 0.5
	confidenceWrongLanguage   = 0.4
	confidenceOffTopic        = 0.3
	confidenceFlood           = 0.9
	confidenceReportedDefault = 0.5

	suspiciousKeywordMin = 3
	shoutingMinLength    = 20
	shoutingCapsRatio    = 0.7
	offTopicMinLength    = 100
	languageMinLetters   = 10
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s]+`)
	// RE2 has no lookahead, so telegram links are matched broadly here and
	// allowlisted slugs are filtered in code.
	tgLinkPattern = regexp.MustCompile(`(?i)t\.me/([A-Za-z0-9_+]+)`)
)

// Classifier evaluates message text against the configured rule set. It is
// pure: no I/O, no state mutation, so classification is replayable.
type Classifier struct {
	rules        *config.RuleSet
	spamPatterns []*regexp.Regexp
	offensive    []*regexp.Regexp
	allowedLangs map[string]bool
	maxLinks     int
}

func NewClassifier(rules *config.RuleSet, policy config.Moderation) (*Classifier, error) {
	c := &Classifier{
		rules:        rules,
		allowedLangs: make(map[string]bool, len(policy.AllowedLanguages)),
		maxLinks:     policy.MaxLinksPerMessage,
	}
	for _, lang := range policy.AllowedLanguages {
		c.allowedLangs[lang] = true
	}
	for _, pattern := range rules.SpamPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compile spam pattern %q", pattern)
		}
		c.spamPatterns = append(c.spamPatterns, re)
	}
	for _, pattern := range rules.OffensivePatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compile offensive pattern %q", pattern)
		}
		c.offensive = append(c.offensive, re)
	}
	return c, nil
}

// Classify returns every rule that fires on the message, or an empty slice.
// The caller merges candidates; this function never picks a winner.
func (c *Classifier) Classify(text string) []Candidate {
	norm := normalize(text)
	snippet := evidenceSnippet(text)

	var candidates []Candidate
	add := func(vtype string, confidence float64, reason string) {
		candidates = append(candidates, Candidate{
			Type:       vtype,
			Severity:   c.rules.Severity(vtype),
			Confidence: confidence,
			Reason:     reason,
			Evidence:   snippet,
		})
	}

	for _, re := range c.spamPatterns {
		if re.MatchString(text) {
			add("spam", confidenceSpamPattern, fmt.Sprintf("spam pattern matched: %s", re.String()))
			break
		}
	}

	if slug, ok := c.foreignTelegramLink(text); ok {
		add("spam", confidenceSpamPattern, fmt.Sprintf("telegram invite link: t.me/%s", slug))
	}

	if n := c.countSuspiciousKeywords(norm); n >= suspiciousKeywordMin {
		add("spam", confidenceKeywordDensity, fmt.Sprintf("suspicious keyword density: %d hits", n))
	}

	if isShouting(text) {
		add("spam", confidenceShouting, "excessive use of capital letters")
	}

	for _, re := range c.offensive {
		if re.MatchString(norm) {
			add("harassment", confidenceOffensive, "offensive language detected")
			break
		}
	}

	if cand, ok := c.checkLinks(text); ok {
		candidates = append(candidates, cand)
	}

	if !c.languageAllowed(text) {
		add("wrong_language", confidenceWrongLanguage, "message not in an allowed language")
	}

	if c.isOffTopic(norm) {
		add("off_topic", confidenceOffTopic, "long message with no on-topic keywords")
	}

	return candidates
}

// ClassifyReport infers a violation candidate for an approved report from
// the reported snippet plus the reporter's stated reason.
func (c *Classifier) ClassifyReport(text, reason string) Candidate {
	best := Candidate{}
	for _, cand := range c.Classify(text) {
		if cand.Confidence > best.Confidence {
			best = cand
		}
	}
	if best.Type != "" && best.Confidence > confidenceTooManyLinks {
		return best
	}

	reasonNorm := normalize(reason)
	for _, hint := range c.rules.ReasonHints {
		for _, kw := range hint.Keywords {
			if strings.Contains(reasonNorm, strings.ToLower(kw)) {
				return Candidate{
					Type:       hint.Type,
					Severity:   c.rules.Severity(hint.Type),
					Confidence: hint.Confidence,
					Reason:     fmt.Sprintf("reported: %s", reason),
					Evidence:   evidenceSnippet(text),
				}
			}
		}
	}

	return Candidate{
		Type:       "reported_violation",
		Severity:   c.rules.Severity("reported_violation"),
		Confidence: confidenceReportedDefault,
		Reason:     fmt.Sprintf("reported: %s", reason),
		Evidence:   evidenceSnippet(text),
	}
}

// foreignTelegramLink reports a t.me slug pointing outside the allowlisted
// community links.
func (c *Classifier) foreignTelegramLink(text string) (string, bool) {
	for _, match := range tgLinkPattern.FindAllStringSubmatch(text, -1) {
		link := "t.me/" + strings.ToLower(match[1])
		allowed := false
		for _, domain := range c.rules.AllowedDomains {
			if strings.Contains(link, strings.ToLower(domain)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return match[1], true
		}
	}
	return "", false
}

func (c *Classifier) countSuspiciousKeywords(norm string) int {
	count := 0
	for _, kw := range c.rules.SuspiciousKeywords {
		if strings.Contains(norm, strings.ToLower(kw)) {
			count++
		}
	}
	return count
}

func (c *Classifier) checkLinks(text string) (Candidate, bool) {
	urls := urlPattern.FindAllString(text, -1)
	if len(urls) == 0 {
		return Candidate{}, false
	}
	snippet := evidenceSnippet(text)

	if len(urls) > c.maxLinks {
		return Candidate{
			Type:       "external_links",
			Severity:   c.rules.Severity("external_links"),
			Confidence: confidenceTooManyLinks,
			Reason:     fmt.Sprintf("too many links: %d", len(urls)),
			Evidence:   snippet,
		}, true
	}

	for _, url := range urls {
		lower := strings.ToLower(url)
		allowed := strings.Contains(lower, "t.me")
		for _, domain := range c.rules.AllowedDomains {
			if strings.Contains(lower, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Candidate{
				Type:       "external_links",
				Severity:   c.rules.Severity("external_links"),
				Confidence: confidenceUntrustedLink,
				Reason:     fmt.Sprintf("untrusted external link: %s", evidenceSnippet(url)),
				Evidence:   snippet,
			}, true
		}
	}
	return Candidate{}, false
}

// languageAllowed is a script-ratio heuristic, deliberately approximate:
// it only flags messages whose letters are mostly outside every allowed
// language's script, and the resulting candidate carries low confidence.
func (c *Classifier) languageAllowed(text string) bool {
	var letters, matched int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if c.allowedLangs["en"] && unicode.Is(unicode.Latin, r) {
			matched++
			continue
		}
		if c.allowedLangs["ru"] && unicode.Is(unicode.Cyrillic, r) {
			matched++
		}
	}
	if letters < languageMinLetters {
		return true
	}
	return float64(matched)/float64(letters) >= 0.5
}

func (c *Classifier) isOffTopic(norm string) bool {
	if len([]rune(norm)) < offTopicMinLength {
		return false
	}
	for _, kw := range c.rules.OnTopicKeywords {
		if strings.Contains(norm, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func isShouting(text string) bool {
	runes := []rune(text)
	if len(runes) <= shoutingMinLength {
		return false
	}
	upper := 0
	for _, r := range runes {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper)/float64(len(runes)) > shoutingCapsRatio
}

func evidenceSnippet(text string) string {
	const maxSnippet = 200
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxSnippet {
		return string(runes)
	}
	return string(runes[:maxSnippet]) + "…"
}
