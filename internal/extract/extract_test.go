package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yashvoladoddi37/leadflow/internal/governor"
	"github.com/yashvoladoddi37/leadflow/internal/logging"
	"github.com/yashvoladoddi37/leadflow/internal/models"
)

type fakePlatform struct {
	conversations map[string]models.Conversation
	acks          []string
}

func (f *fakePlatform) ReadConversation(_ context.Context, c *models.Candidate) (models.Conversation, error) {
	return f.conversations[c.ProfileURL], nil
}

func (f *fakePlatform) SendMessage(_ context.Context, c *models.Candidate, text string) error {
	f.acks = append(f.acks, text)
	return nil
}

type fakeGovernor struct {
	grants   map[models.ActionKind]int
	recorded map[models.ActionKind][]models.Outcome
}

func newFakeGovernor(views, messages int) *fakeGovernor {
	return &fakeGovernor{
		grants:   map[models.ActionKind]int{models.ActionView: views, models.ActionMessage: messages},
		recorded: map[models.ActionKind][]models.Outcome{},
	}
}

func (f *fakeGovernor) Authorize(_ context.Context, kind models.ActionKind) (governor.Grant, error) {
	if f.grants[kind] <= 0 {
		return governor.Grant{}, &governor.Denied{Kind: kind, Reason: governor.DailyQuotaExhausted}
	}
	f.grants[kind]--
	return governor.Grant{Kind: kind}, nil
}

func (f *fakeGovernor) Record(_ context.Context, kind models.ActionKind, outcome models.Outcome) error {
	f.recorded[kind] = append(f.recorded[kind], outcome)
	return nil
}

type fakeStore struct {
	candidates map[int64]*models.Candidate
	records    []models.OutreachRecord
}

func newFakeStore(cands ...*models.Candidate) *fakeStore {
	s := &fakeStore{candidates: map[int64]*models.Candidate{}}
	for _, c := range cands {
		s.candidates[c.ID] = c
	}
	return s
}

func (f *fakeStore) CandidatesInState(_ context.Context, state models.CandidateState, limit int) ([]models.Candidate, error) {
	var out []models.Candidate
	for id := int64(1); id <= int64(len(f.candidates)); id++ {
		if c, ok := f.candidates[id]; ok && c.State == state {
			out = append(out, *c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Transition(_ context.Context, id int64, from, to models.CandidateState) error {
	c, ok := f.candidates[id]
	if !ok || c.State != from || !from.CanTransitionTo(to) {
		return fmt.Errorf("bad transition for %d", id)
	}
	c.State = to
	return nil
}

func (f *fakeStore) AppendRecord(_ context.Context, r *models.OutreachRecord) error {
	f.records = append(f.records, *r)
	return nil
}

func messaged(id int64) *models.Candidate {
	return &models.Candidate{
		ID:         id,
		ProfileURL: fmt.Sprintf("https://x/in/c%d", id),
		Name:       "Priya Sharma",
		State:      models.StateMessaged,
	}
}

func TestExtractionIsIdempotentOnQuietConversations(t *testing.T) {
	c := messaged(1)
	s := newFakeStore(c)
	p := &fakePlatform{conversations: map[string]models.Conversation{
		"https://x/in/c1": {Unread: false},
	}}
	r := New(p, newFakeGovernor(10, 10), s, nil, Config{}, logging.New("error"))

	for i := 0; i < 3; i++ {
		stats, err := r.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, stats.Scanned)
		require.Equal(t, 0, stats.Extracted)
	}
	require.Equal(t, models.StateMessaged, c.State)
	require.Empty(t, s.records, "re-scans must not emit duplicate records")
}

func TestReplyWithoutContactLeavesCandidateMessaged(t *testing.T) {
	c := messaged(1)
	s := newFakeStore(c)
	p := &fakePlatform{conversations: map[string]models.Conversation{
		"https://x/in/c1": {Unread: true, Inbound: []string{"Sounds interesting, tell me more!"}},
	}}
	r := New(p, newFakeGovernor(10, 10), s, nil, Config{}, logging.New("error"))

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats.Extracted)
	require.Equal(t, models.StateMessaged, c.State)
	require.Empty(t, s.records)
}

func TestContactMatchExtractsAndAcknowledges(t *testing.T) {
	c := messaged(1)
	s := newFakeStore(c)
	p := &fakePlatform{conversations: map[string]models.Conversation{
		"https://x/in/c1": {Unread: true, Inbound: []string{
			"Sure! My number is +919876543210.",
			"Mail works too: Priya.Sharma@Example.com",
		}},
	}}
	g := newFakeGovernor(10, 10)
	r := New(p, g, s, nil, Config{Acknowledgment: "Thank you {{Name}}, we will be in touch!"}, logging.New("error"))

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Extracted)
	require.Equal(t, 1, stats.Acked)
	require.Equal(t, models.StateContactExtracted, c.State)

	require.Len(t, s.records, 1)
	require.JSONEq(t, `{"phones":["9876543210"],"emails":["priya.sharma@example.com"]}`, s.records[0].Payload)

	require.Equal(t, []string{"Thank you Priya, we will be in touch!"}, p.acks)
	require.Equal(t, []models.Outcome{models.OutcomeSuccess}, g.recorded[models.ActionMessage])
}

func TestAckDenialDoesNotFailExtraction(t *testing.T) {
	c := messaged(1)
	s := newFakeStore(c)
	p := &fakePlatform{conversations: map[string]models.Conversation{
		"https://x/in/c1": {Unread: true, Inbound: []string{"Call me on 9876543210"}},
	}}
	g := newFakeGovernor(10, 0)
	r := New(p, g, s, nil, Config{Acknowledgment: "Thanks!"}, logging.New("error"))

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Extracted)
	require.Equal(t, 0, stats.Acked)
	require.Equal(t, models.StateContactExtracted, c.State)
	require.Empty(t, p.acks)
}

func TestViewQuotaDenialStopsStage(t *testing.T) {
	c1, c2 := messaged(1), messaged(2)
	s := newFakeStore(c1, c2)
	p := &fakePlatform{conversations: map[string]models.Conversation{
		"https://x/in/c1": {Unread: false},
		"https://x/in/c2": {Unread: false},
	}}
	r := New(p, newFakeGovernor(1, 10), s, nil, Config{}, logging.New("error"))

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scanned)
	require.Equal(t, governor.DailyQuotaExhausted, stats.Stopped)
}

func TestExtractContacts(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		phones []string
		emails []string
	}{
		{
			name:   "plain ten digit number",
			text:   "reach me at 9876543210",
			phones: []string{"9876543210"},
		},
		{
			name:   "plus ninety one prefix stripped",
			text:   "call +919876543210 anytime",
			phones: []string{"9876543210"},
		},
		{
			name:   "leading zero stripped",
			text:   "my number: 09876543210",
			phones: []string{"9876543210"},
		},
		{
			name:   "duplicates collapse after normalization",
			text:   "+919876543210 or 09876543210 or 9876543210",
			phones: []string{"9876543210"},
		},
		{
			name:   "email lowercased",
			text:   "write to Priya.Sharma@Example.com",
			emails: []string{"priya.sharma@example.com"},
		},
		{
			name:   "mixed content",
			text:   "9876543210 and priya@example.in",
			phones: []string{"9876543210"},
			emails: []string{"priya@example.in"},
		},
		{
			name: "numbers starting below six are not phones",
			text: "invoice 1234567890 attached",
		},
		{
			name: "no contact details",
			text: "sounds great, tell me more",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractContacts(tc.text)
			require.Equal(t, tc.phones, got.Phones)
			require.Equal(t, tc.emails, got.Emails)
			require.Equal(t, len(tc.phones)+len(tc.emails) > 0, got.Found())
		})
	}
}
