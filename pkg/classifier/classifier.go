// Package classifier maps job-related email text to a lifecycle stage and
// guesses the sending organization.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"mailtrack-backend/internal/tracking/domain"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/publicsuffix"
)

// Classification is the result of classifying one message.
type Classification struct {
	Type    domain.EmailType
	Company string
}

type rule struct {
	emailType domain.EmailType
	match     func(text string) bool
}

// rules are evaluated in order; the first match wins. Offer and rejection
// signals must stay ahead of the generic update phrasing.
var rules = []rule{
	{domain.EmailTypeOffer, func(text string) bool {
		return strings.Contains(text, "offer") && containsAny(text, "congratulations", "pleased")
	}},
	{domain.EmailTypeInterview, func(text string) bool {
		return strings.Contains(text, "interview") && containsAny(text, "schedule", "invitation")
	}},
	{domain.EmailTypeRejection, func(text string) bool {
		return containsAny(text, "unfortunately", "regret", "not moving forward")
	}},
	{domain.EmailTypeApplicationReceived, func(text string) bool {
		return containsAny(text, "received your application", "application submitted")
	}},
	{domain.EmailTypeUpdate, func(text string) bool {
		return containsAny(text, "next steps", "status update")
	}},
}

// webmailDomains never identify an employer.
var webmailDomains = map[string]struct{}{
	"gmail":   {},
	"yahoo":   {},
	"hotmail": {},
	"outlook": {},
	"mail":    {},
}

var (
	displayNamePattern = regexp.MustCompile(`^"?([^"<]+)"?\s*<`)
	addressPattern     = regexp.MustCompile(`[^\s<>"]+@[^\s<>"]+`)
)

// Classify classifies a message by its subject, body and From header.
func Classify(subject, body, from string) Classification {
	return Classification{
		Type:    ClassifyText(subject, body),
		Company: ExtractCompany(from),
	}
}

// ClassifyText returns the lifecycle stage implied by subject and body.
func ClassifyText(subject, body string) domain.EmailType {
	text := strings.ToLower(subject + " " + body)
	for _, r := range rules {
		if r.match(text) {
			return r.emailType
		}
	}
	return domain.EmailTypeOther
}

// ExtractCompany guesses the organization behind a From header: the sender's
// domain unless it is a webmail provider, then the display name, then
// domain.UnknownCompany.
func ExtractCompany(from string) string {
	name, address := splitSender(from)

	if company := companyFromAddress(address); company != "" {
		return company
	}
	if name != "" {
		return name
	}
	return domain.UnknownCompany
}

func splitSender(from string) (name, address string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.TrimSpace(addr.Name), addr.Address
	}

	if m := displayNamePattern.FindStringSubmatch(from); m != nil {
		name = strings.TrimSpace(m[1])
	}
	return name, addressPattern.FindString(from)
}

func companyFromAddress(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	host := strings.ToLower(strings.TrimSuffix(address[at+1:], "."))

	label := registrableLabel(host)
	if label == "" {
		return ""
	}
	if _, generic := webmailDomains[label]; generic {
		return ""
	}
	return capitalize(label)
}

// registrableLabel returns the name part of the registrable domain,
// e.g. "acmecorp" for "careers.acmecorp.co.uk".
func registrableLabel(host string) string {
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if dot := strings.Index(etld1, "."); dot > 0 {
			return etld1[:dot]
		}
	}
	if dot := strings.LastIndex(host, "."); dot > 0 {
		host = host[:dot]
		if i := strings.LastIndex(host, "."); i >= 0 {
			host = host[i+1:]
		}
		return host
	}
	return ""
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
