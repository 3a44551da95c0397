// Package services – contact extraction
//
// This file implements the best-effort contact extraction pass run over a
// session's messages when the visitor has not identified themselves yet.
// It is a pure function over a message slice: no I/O, no side effects, so it
// can be re-run at any time (it only ever fills gaps).
package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/automize/chat-support-backend/internal/domain"
)

// ContactInfo holds whatever contact details could be recovered from a
// conversation. Empty fields mean "not found".
type ContactInfo struct {
	Name  string
	Email string
	Phone string
}

var (
	// emailRE is the standard loose address pattern.
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// phoneRE matches loose digit runs with optional country/area prefixes.
	// Candidates are sanity-checked by digit count afterwards.
	phoneRE = regexp.MustCompile(`(?:\+?[0-9]{1,4}[\s\-]?)?(?:\(?[0-9]{2,4}\)?[\s\-]?)?[0-9]{6,10}`)

	nonDigitRE = regexp.MustCompile(`\D`)
)

// Phone candidates must carry between 8 and 15 digits once separators are
// stripped; anything shorter is noise, anything longer is not a phone number.
const (
	phoneMinDigits = 8
	phoneMaxDigits = 15
)

// ExtractContactInfo scans user-authored messages for an email address and a
// phone number, returning the first plausible match of each. Bot messages are
// ignored: echoing the visitor's details back must not count as the visitor
// providing them.
func ExtractContactInfo(messages []domain.Message) ContactInfo {
	var info ContactInfo

	for _, msg := range messages {
		if msg.Sender != domain.SenderUser {
			continue
		}
		if info.Email == "" {
			if m := emailRE.FindString(msg.Content); m != "" {
				info.Email = m
			}
		}
		if info.Phone == "" {
			for _, cand := range phoneRE.FindAllString(msg.Content, -1) {
				digits := nonDigitRE.ReplaceAllString(cand, "")
				if len(digits) >= phoneMinDigits && len(digits) <= phoneMaxDigits {
					info.Phone = strings.TrimSpace(cand)
					break
				}
			}
		}
		if info.Email != "" && info.Phone != "" {
			break
		}
	}

	return info
}

var nameCaser = cases.Title(language.English)

// NormalizeVisitorName trims and title-cases a visitor name arriving from the
// automation webhook, which tends to deliver lowercased form input.
func NormalizeVisitorName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return nameCaser.String(name)
}
