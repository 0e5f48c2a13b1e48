package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobalert-engine/internal/ledger"
	"jobalert-engine/internal/mailbox"
	"jobalert-engine/internal/match"
	"jobalert-engine/internal/record"
)

type fakeMailbox struct {
	order    []imap.UID
	emails   map[imap.UID]mailbox.RawEmail
	fetchErr map[imap.UID]error
	listErr  error
	marked   []imap.UID
	closed   bool
}

// ListUnseen honors the \Seen flag the way a real mailbox does: anything
// marked read stops showing up.
func (f *fakeMailbox) ListUnseen(ctx context.Context, since time.Time, max int) ([]imap.UID, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []imap.UID
	for _, uid := range f.order {
		if !f.isMarked(uid) {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (f *fakeMailbox) isMarked(uid imap.UID) bool {
	for _, m := range f.marked {
		if m == uid {
			return true
		}
	}
	return false
}

func (f *fakeMailbox) Fetch(ctx context.Context, uid imap.UID) (mailbox.RawEmail, error) {
	if err := f.fetchErr[uid]; err != nil {
		return mailbox.RawEmail{}, err
	}
	return f.emails[uid], nil
}

func (f *fakeMailbox) MarkRead(ctx context.Context, uid imap.UID) error {
	f.marked = append(f.marked, uid)
	return nil
}

func (f *fakeMailbox) Close() { f.closed = true }

type sent struct {
	dest string
	text string
}

type fakeNotifier struct {
	msgs []sent
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, destination, text string) error {
	f.msgs = append(f.msgs, sent{destination, text})
	return f.err
}

func (f *fakeNotifier) alerts() []string {
	var out []string
	for _, m := range f.msgs {
		if m.text != Divider {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeNotifier) alertDests() []string {
	var out []string
	for _, m := range f.msgs {
		if m.text != Divider {
			out = append(out, m.dest)
		}
	}
	return out
}

func htmlEmail(uid imap.UID, date time.Time, subject, html string) mailbox.RawEmail {
	raw := strings.Join([]string{
		"From: LinkedIn Job Alerts <jobalerts-noreply@linkedin.com>",
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		html,
		"",
	}, "\r\n")
	return mailbox.RawEmail{UID: uid, Subject: subject, Date: date, Raw: []byte(raw)}
}

const scenarioHTML = `<a href="https://x.com/jobs/view/123"><strong>Backend Engineer</strong></a><span>Acme · Tel Aviv</span>`

func newPipeline(mb Mailbox, n Notifier, now time.Time) *Pipeline {
	return &Pipeline{
		Mailbox:   mb,
		Notifier:  n,
		Horizon:   24 * time.Hour,
		MaxEmails: 50,
		Now:       func() time.Time { return now },
	}
}

func oneSub(dest string, keywords match.KeywordSet) []Subscription {
	return []Subscription{{Destination: dest, Keywords: keywords}}
}

func TestCanonicalScenario(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now.Add(-time.Hour), "new jobs", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	require.Len(t, n.alerts(), 1)
	assert.Equal(t,
		"💼 New Job Opportunity!\n📝 Title: Backend Engineer\n🏢 Company: Acme\n📍 Location: Tel Aviv\n🔗 https://x.com/jobs/view/123",
		n.alerts()[0])
	assert.Equal(t, "777", n.msgs[0].dest)
	assert.Equal(t, Divider, n.msgs[1].text)

	assert.Equal(t, []imap.UID{1}, mb.marked)
	assert.Equal(t, 1, sum.Alerts)
	require.Len(t, sum.Emails, 1)
	assert.Equal(t, StateAlerted, sum.Emails[0].State)
}

func TestSharedEmailReachesEveryDestination(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "new jobs", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	subs := []Subscription{
		{Destination: "111", Keywords: match.Parse("backend")},
		{Destination: "222", Keywords: match.Parse("backend")},
	}
	sum, err := newPipeline(mb, n, now).Run(context.Background(), subs)
	require.NoError(t, err)

	// the read flag is shared; the first destination's match must not hide
	// the email from the second
	assert.Equal(t, []string{"111", "222"}, n.alertDests())
	assert.Equal(t, []imap.UID{1}, mb.marked, "marked once, after all destinations saw it")
	assert.Equal(t, 2, sum.Alerts)
}

func TestDuplicateJobIDAlertsOnce(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "new jobs", scenarioHTML+scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	assert.Len(t, n.alerts(), 1, "repeated job_id within one run alerts at most once")
	assert.Equal(t, 1, sum.Alerts)
}

func TestDuplicateJobIDAcrossEmails(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1, 2},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "first", scenarioHTML),
			2: htmlEmail(2, now, "second", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	assert.Len(t, n.alerts(), 1)
	// the second email produced nothing, so it stays unread
	assert.Equal(t, []imap.UID{1}, mb.marked)
	assert.Equal(t, StateNoMatch, sum.Emails[1].State)
}

func TestDedupIsPerDestination(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "new jobs", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	// destination 111 already saw job 123; 222 did not
	seen := ledger.NewRun()
	seen.Record("123")
	subs := []Subscription{
		{Destination: "111", Keywords: match.Parse("backend"), Ledger: seen},
		{Destination: "222", Keywords: match.Parse("backend")},
	}

	_, err := newPipeline(mb, n, now).Run(context.Background(), subs)
	require.NoError(t, err)

	assert.Equal(t, []string{"222"}, n.alertDests())
}

func TestEmptyKeywordSetSendsNothing(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "new jobs", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("")))
	require.NoError(t, err)

	assert.Empty(t, n.msgs)
	assert.Empty(t, mb.marked, "email left unread")
	assert.Zero(t, sum.Alerts)
}

func TestRecencyHorizon(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mb := &fakeMailbox{
		order: []imap.UID{1, 2},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now.Add(-25*time.Hour), "stale", scenarioHTML),
			2: htmlEmail(2, now.Add(-time.Hour), "fresh", scenarioHTML),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	require.Len(t, sum.Emails, 2)
	assert.Equal(t, StateSkipped, sum.Emails[0].State)
	assert.Equal(t, "stale", sum.Emails[0].Reason)
	assert.Equal(t, StateAlerted, sum.Emails[1].State)
	assert.Equal(t, []imap.UID{2}, mb.marked)
}

func TestMissingTimestampFailsOpen(t *testing.T) {
	now := time.Now().UTC()
	em := htmlEmail(1, time.Time{}, "no date", scenarioHTML)
	mb := &fakeMailbox{order: []imap.UID{1}, emails: map[imap.UID]mailbox.RawEmail{1: em}}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Alerts, "email without a timestamp is still processed")
}

func TestFetchErrorSkipsOnlyThatEmail(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1, 2},
		emails: map[imap.UID]mailbox.RawEmail{
			2: htmlEmail(2, now, "ok", scenarioHTML),
		},
		fetchErr: map[imap.UID]error{1: errors.New("boom")},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	require.Len(t, sum.Emails, 2)
	assert.Equal(t, StateSkipped, sum.Emails[0].State)
	assert.Equal(t, "fetch_error", sum.Emails[0].Reason)
	assert.Equal(t, StateAlerted, sum.Emails[1].State)
	assert.Equal(t, []imap.UID{2}, mb.marked, "unreadable email stays unread")
}

func TestNoiseNeverReachesFilter(t *testing.T) {
	now := time.Now().UTC()
	// "See all jobs" would match the keyword "jobs" if it survived scanning
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "digest", `<a href="https://x.com/jobs/view/1">See all jobs</a>`),
		},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("jobs")))
	require.NoError(t, err)

	assert.Empty(t, n.msgs)
	assert.Zero(t, sum.Alerts)
}

func TestEmptyBodySkippedWithoutMutation(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order:  []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{1: {UID: 1, Subject: "empty", Date: now}},
	}
	n := &fakeNotifier{}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, sum.Emails[0].State)
	assert.Equal(t, "empty_body", sum.Emails[0].Reason)
	assert.Empty(t, mb.marked)
	assert.Empty(t, n.msgs)
}

func TestVerboseDiagnostics(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1, 2},
		emails: map[imap.UID]mailbox.RawEmail{
			1: {UID: 1, Subject: "empty one", Date: now},
			2: htmlEmail(2, now, "nothing matches", `<a href="https://x.com/jobs/view/9">Chef de Cuisine</a>`),
		},
	}
	n := &fakeNotifier{}

	p := newPipeline(mb, n, now)
	p.Verbose = true
	_, err := p.Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	require.Len(t, n.msgs, 2)
	assert.Equal(t, "❗ No HTML body found in email: empty one", n.msgs[0].text)
	assert.Equal(t, "❗ No jobs found in email: nothing matches", n.msgs[1].text)
}

func TestDeliveryFailureKeepsReadStateDecision(t *testing.T) {
	now := time.Now().UTC()
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "new jobs", scenarioHTML),
		},
	}
	n := &fakeNotifier{err: errors.New("telegram down")}

	sum, err := newPipeline(mb, n, now).Run(context.Background(), oneSub("777", match.Parse("backend")))
	require.NoError(t, err)

	// best-effort delivery: no retry, no rollback of the read-state decision
	assert.Equal(t, []imap.UID{1}, mb.marked)
	assert.Equal(t, StateAlerted, sum.Emails[0].State)
}

func TestListErrorIsFatalForRun(t *testing.T) {
	mb := &fakeMailbox{listErr: errors.New("search failed")}
	n := &fakeNotifier{}

	_, err := newPipeline(mb, n, time.Now()).Run(context.Background(), oneSub("777", match.Parse("backend")))
	assert.Error(t, err)
}

func TestUnlinkedRecordsAlwaysAlert(t *testing.T) {
	now := time.Now().UTC()
	link := `<a href="https://x.com/careers/apply">Backend Engineer</a>`
	mb := &fakeMailbox{
		order: []imap.UID{1},
		emails: map[imap.UID]mailbox.RawEmail{
			1: htmlEmail(1, now, "direct", link+link),
		},
	}
	n := &fakeNotifier{}

	subs := []Subscription{{Destination: "777", Keywords: match.Parse("backend"), Ledger: ledger.NewRun()}}
	sum, err := newPipeline(mb, n, now).Run(context.Background(), subs)
	require.NoError(t, err)

	// no job id means no dedup identity; both occurrences alert
	assert.Len(t, n.alerts(), 2)
	assert.Equal(t, 2, sum.Alerts)
}

func TestFormatPinned(t *testing.T) {
	got := Format(record.JobRecord{
		Title:    "Backend Engineer",
		Company:  "Acme",
		Location: "Tel Aviv",
		URL:      "https://x.com/jobs/view/123",
	})
	want := "💼 New Job Opportunity!\n" +
		"📝 Title: Backend Engineer\n" +
		"🏢 Company: Acme\n" +
		"📍 Location: Tel Aviv\n" +
		"🔗 https://x.com/jobs/view/123"
	assert.Equal(t, want, got)
}
