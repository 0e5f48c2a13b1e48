package alert

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobalert-engine/internal/ledger"
	"jobalert-engine/internal/match"
)

// Registry maps destinations to their search terms.
type Registry interface {
	KeywordsFor(ctx context.Context, destination string) ([]string, error)
	AllDestinations(ctx context.Context) ([]string, error)
}

// Session is one connected mailbox; Close must always run.
type Session interface {
	Mailbox
	Close()
}

// Service runs one scan cycle: a single mailbox session, a single unseen
// batch, fanned out to every destination that has keywords.
type Service struct {
	Dial     func(ctx context.Context) (Session, error)
	Registry Registry
	Notifier Notifier

	// NewLedger builds the dedup ledger for one destination. Nil means a
	// fresh in-memory run ledger (the guaranteed intra-run behavior).
	NewLedger func() ledger.Ledger

	Horizon   time.Duration
	MaxEmails int
	Verbose   bool
}

// ScanOnce resolves subscriptions, connects, runs the batch, and tears the
// session down regardless of outcome. Session-level failures abort the cycle
// and surface one diagnostic notification to each destination that was going
// to be scanned; destinations without keywords are never messaged.
func (s *Service) ScanOnce(ctx context.Context) error {
	dests, err := s.Registry.AllDestinations(ctx)
	if err != nil {
		return fmt.Errorf("list destinations: %w", err)
	}

	subs := make([]Subscription, 0, len(dests))
	for _, dest := range dests {
		terms, err := s.Registry.KeywordsFor(ctx, dest)
		if err != nil {
			log.Printf("[scan] keywords for %s: %v", dest, err)
			continue
		}
		keywords := match.New(terms)
		if keywords.Empty() {
			log.Printf("[scan] dest=%s has no keywords, skipping", dest)
			continue
		}

		var led ledger.Ledger
		if s.NewLedger != nil {
			led = s.NewLedger()
		}
		subs = append(subs, Subscription{Destination: dest, Keywords: keywords, Ledger: led})
	}
	if len(subs) == 0 {
		log.Printf("[scan] no destinations with keywords, nothing to do")
		return nil
	}

	sess, err := s.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("mailbox session: %w", err)
		s.notifyFailure(ctx, subs, err)
		return err
	}
	defer sess.Close()

	p := &Pipeline{
		Mailbox:   sess,
		Notifier:  s.Notifier,
		Horizon:   s.Horizon,
		MaxEmails: s.MaxEmails,
		Verbose:   s.Verbose,
	}

	sum, err := p.Run(ctx, subs)
	if err != nil {
		// list failures mean the session is gone; stop the cycle
		err = fmt.Errorf("scan: %w", err)
		s.notifyFailure(ctx, subs, err)
		return err
	}

	log.Printf("[scan] dests=%d emails=%d alerts=%d", len(subs), len(sum.Emails), sum.Alerts)
	return nil
}

func (s *Service) notifyFailure(ctx context.Context, subs []Subscription, ferr error) {
	for _, sub := range subs {
		if err := s.Notifier.Send(ctx, sub.Destination, "❗ Error while checking email: "+ferr.Error()); err != nil {
			log.Printf("[scan] failure notice to %s: %v", sub.Destination, err)
		}
	}
}
