package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const threadHTML = `
<ul class="msg-s-message-list-content">
  <li class="msg-s-message-list__event">
    <span class="msg-s-message-group__name">Yashpreet Singh</span>
    <p class="msg-s-event-listitem__body">Hi Priya, thanks for connecting!</p>
  </li>
  <li class="msg-s-message-list__event">
    <span class="msg-s-message-group__name">Priya Sharma</span>
    <p class="msg-s-event-listitem__body">Happy to connect. You can reach me at 9876543210.</p>
  </li>
  <li class="msg-s-message-list__event">
    <p class="msg-s-event-listitem__body">Or priya.sharma@example.com works too.</p>
  </li>
</ul>`

func TestParseInboundKeepsOnlyCandidateMessages(t *testing.T) {
	inbound, err := parseInbound(threadHTML, "Priya Sharma")
	require.NoError(t, err)
	require.Equal(t, []string{
		"Happy to connect. You can reach me at 9876543210.",
		"Or priya.sharma@example.com works too.",
	}, inbound)
}

func TestParseInboundNoMatchingSender(t *testing.T) {
	inbound, err := parseInbound(threadHTML, "Someone Else")
	require.NoError(t, err)
	require.Empty(t, inbound)
}

func TestNormalizeProfileURL(t *testing.T) {
	base := "https://www.linkedin.com/"
	require.Equal(t,
		"https://www.linkedin.com/in/priya-sharma",
		normalizeProfileURL(base, "/in/priya-sharma?miniProfileUrn=abc"))
	require.Equal(t,
		"https://www.linkedin.com/in/priya-sharma",
		normalizeProfileURL(base, "https://www.linkedin.com/in/priya-sharma"))
}
