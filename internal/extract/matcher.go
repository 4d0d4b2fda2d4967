package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Indian mobile numbers: an optional +91 or 0 prefix, then ten digits
// starting with 6-9.
var (
	phonePattern  = regexp.MustCompile(`(?:\+91|0)?[6789]\d{9}`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePrefixes = regexp.MustCompile(`^(?:\+91|0)`)
)

// Contacts holds the normalized contact details mined from a conversation.
type Contacts struct {
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
}

func (c Contacts) Found() bool {
	return len(c.Phones) > 0 || len(c.Emails) > 0
}

// Payload renders the contacts as the JSON stored in the outreach record.
func (c Contacts) Payload() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// ExtractContacts scans text for phone numbers and email addresses,
// normalizing phones by stripping the dialing prefix and dropping
// duplicates while keeping first-seen order.
func ExtractContacts(text string) Contacts {
	var out Contacts
	seen := map[string]bool{}
	for _, m := range phonePattern.FindAllString(text, -1) {
		phone := phonePrefixes.ReplaceAllString(m, "")
		if !seen["p"+phone] {
			seen["p"+phone] = true
			out.Phones = append(out.Phones, phone)
		}
	}
	for _, m := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(m)
		if !seen["e"+email] {
			seen["e"+email] = true
			out.Emails = append(out.Emails, email)
		}
	}
	return out
}
