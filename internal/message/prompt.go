package message

import (
	"fmt"
	"strings"

	"github.com/yashvoladoddi37/leadflow/internal/models"
)

// BuildPrompt assembles the follow-up prompt: the configured persona, the
// candidate's profile facts, and writing guidance that keeps the output
// usable as a direct message. Low sampling temperature does the rest.
func BuildPrompt(persona string, c *models.Candidate, signature string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\n\nAbout them:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	if c.Headline != "" && c.Company != "" {
		fmt.Fprintf(&b, "- Role: %s at %s\n", c.Headline, c.Company)
	} else if c.Headline != "" {
		fmt.Fprintf(&b, "- Role: %s\n", c.Headline)
	}
	if c.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", c.Location)
	}

	b.WriteString(`
Write a short first message that:
1. Opens with a specific observation about their role so it is clear you looked at their profile.
2. Explains in one sentence why you are reaching out.
3. Ends with a clear ask: invite them to reply with their contact number to hear the details.
4. Uses no emojis and does not mention that this message was generated.
`)
	if signature != "" {
		fmt.Fprintf(&b, "\nClose the message with: %q followed by your name.\n", signature)
	}
	b.WriteString("\nKeep it concise, personal, and professional.")
	return b.String()
}
