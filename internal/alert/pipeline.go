// Package alert drives one email batch through extract, scan, build, filter
// and dedup, and decides each email's read state.
package alert

import (
	"context"
	"log"
	"time"

	"github.com/emersion/go-imap/v2"

	"jobalert-engine/internal/extract"
	"jobalert-engine/internal/ledger"
	"jobalert-engine/internal/mailbox"
	"jobalert-engine/internal/match"
	"jobalert-engine/internal/record"
	"jobalert-engine/internal/scan"
)

// Mailbox is the slice of the IMAP client the pipeline needs.
type Mailbox interface {
	ListUnseen(ctx context.Context, since time.Time, max int) ([]imap.UID, error)
	Fetch(ctx context.Context, uid imap.UID) (mailbox.RawEmail, error)
	MarkRead(ctx context.Context, uid imap.UID) error
}

type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// Subscription is one destination's view of the batch: its keywords and its
// dedup ledger. A nil Ledger gets a fresh run-scoped one.
type Subscription struct {
	Destination string
	Keywords    match.KeywordSet
	Ledger      ledger.Ledger
}

// State is the terminal outcome for one email. No retries within a run.
type State string

const (
	// StateSkipped: nothing evaluated, no mutation (stale, unreadable, empty).
	StateSkipped State = "skipped"
	// StateAlerted: at least one alert went out; the email is marked read.
	StateAlerted State = "alerted"
	// StateNoMatch: candidates evaluated, none matched for any destination;
	// left unread so a future scan with different keywords can still consider it.
	StateNoMatch State = "no_match"
)

type EmailResult struct {
	UID    imap.UID
	State  State
	Reason string // set for skips
	Alerts int
}

type Summary struct {
	Emails []EmailResult
	Alerts int
}

type Pipeline struct {
	Mailbox  Mailbox
	Notifier Notifier

	// Horizon is the maximum email age eligible for processing.
	Horizon   time.Duration
	MaxEmails int

	// Verbose forwards the original bot's diagnostic notifications
	// ("no HTML body", "no jobs found") to each destination.
	Verbose bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run processes the unseen batch, newest first, fanning every email out to
// every subscription. The \Seen flag is mailbox-global, so each email is
// fetched once and evaluated for all destinations before any read-state
// mutation; a destination later in the list never loses an email to one
// earlier in it. Subscriptions with empty keyword sets are dropped: nothing
// can match, nothing is marked read on their behalf. Per-email fetch failures
// skip that email only; a list failure is fatal for the run and surfaces to
// the caller.
func (p *Pipeline) Run(ctx context.Context, subs []Subscription) (Summary, error) {
	var sum Summary

	live := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Keywords.Empty() {
			continue
		}
		if sub.Ledger == nil {
			sub.Ledger = ledger.NewRun()
		}
		live = append(live, sub)
	}
	if len(live) == 0 {
		return sum, nil
	}

	since := p.now().Add(-p.Horizon)
	uids, err := p.Mailbox.ListUnseen(ctx, since, p.MaxEmails)
	if err != nil {
		return sum, err
	}

	for _, uid := range uids {
		em, err := p.Mailbox.Fetch(ctx, uid)
		if err != nil {
			// one unreadable message must not abort the batch
			log.Printf("[scan] fetch uid=%d: %v", uid, err)
			sum.Emails = append(sum.Emails, EmailResult{UID: uid, State: StateSkipped, Reason: "fetch_error"})
			continue
		}

		res := p.processOne(ctx, em, live)
		sum.Emails = append(sum.Emails, res)
		sum.Alerts += res.Alerts
	}

	return sum, nil
}

func (p *Pipeline) processOne(ctx context.Context, em mailbox.RawEmail, subs []Subscription) EmailResult {
	res := EmailResult{UID: em.UID}

	// Recency gate. A missing timestamp fails open: the email is processed.
	if !em.Date.IsZero() && p.now().Sub(em.Date) > p.Horizon {
		res.State = StateSkipped
		res.Reason = "stale"
		return res
	}

	content := extract.Extract(em.Raw)
	if content.Empty() {
		if p.Verbose {
			p.broadcast(ctx, subs, "❗ No HTML body found in email: "+em.Subject)
		}
		res.State = StateSkipped
		res.Reason = "empty_body"
		return res
	}

	// Scan and build once; filtering and dedup are per destination.
	var recs []record.JobRecord
	for _, cand := range scan.Scan(content) {
		recs = append(recs, record.Build(cand))
	}

	for _, sub := range subs {
		for _, rec := range recs {
			if rec.ID != "" && sub.Ledger.Seen(rec.ID) {
				continue
			}
			if !sub.Keywords.Matches(rec.Title) {
				continue
			}

			// Delivery is best-effort: a send failure neither retries nor
			// rolls back the read-state decision.
			p.send(ctx, sub.Destination, Format(rec))
			p.send(ctx, sub.Destination, Divider)

			sub.Ledger.Record(rec.ID)
			res.Alerts++
		}
	}

	// The read-state mutation happens only after every destination evaluated
	// every candidate, so a crash mid-email never marks a half-processed email
	// and no destination is starved by an earlier one's match.
	if res.Alerts > 0 {
		if err := p.Mailbox.MarkRead(ctx, em.UID); err != nil {
			log.Printf("[scan] mark read uid=%d: %v", em.UID, err)
		}
		res.State = StateAlerted
		return res
	}

	if p.Verbose {
		p.broadcast(ctx, subs, "❗ No jobs found in email: "+em.Subject)
	}
	res.State = StateNoMatch
	return res
}

func (p *Pipeline) broadcast(ctx context.Context, subs []Subscription, text string) {
	for _, sub := range subs {
		p.send(ctx, sub.Destination, text)
	}
}

func (p *Pipeline) send(ctx context.Context, destination, text string) {
	if err := p.Notifier.Send(ctx, destination, text); err != nil {
		log.Printf("[scan] notify %s: %v", destination, err)
	}
}
