// Package mailbox wraps the IMAP session used to pull alert emails.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// RawEmail is a minimal representation of a fetched message.
type RawEmail struct {
	UID     imap.UID
	From    string
	Subject string

	// Date is the sender-asserted timestamp, UTC. Zero when the envelope
	// carried no parsable date.
	Date time.Time

	// Raw is the full RFC822 message bytes (headers + body).
	// Fetched using BODY.PEEK[] so it won't mark as \Seen.
	Raw []byte
}

type Options struct {
	Addr     string // host:port
	Username string
	Password string
	Mailbox  string // defaults to INBOX
	TLS      *tls.Config
}

// Client is one logged-in IMAP session with a mailbox selected.
type Client struct {
	c       *imapclient.Client
	mailbox string

	// done releases the cancel watcher on normal teardown.
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects over TLS, logs in, and selects the mailbox.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("imap username/password is required")
	}

	tlsCfg := opts.TLS
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c, err := imapclient.DialTLS(opts.Addr, &imapclient.Options{
		TLSConfig: tlsCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	cl := &Client{c: c, done: make(chan struct{})}
	go watchCancel(ctx, cl.done, func() { _ = c.Close() })

	if err := c.Login(opts.Username, opts.Password).Wait(); err != nil {
		cl.shutdown()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mb := opts.Mailbox
	if mb == "" {
		mb = "INBOX"
	}
	if _, err := c.Select(mb, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		cl.shutdown()
		return nil, fmt.Errorf("imap select %q: %w", mb, err)
	}

	cl.mailbox = mb
	return cl, nil
}

// watchCancel force-closes the connection when the context is cancelled while
// the session is still open. A normal Close releases the watcher instead of
// leaving it waiting on a context that may outlive the session.
func watchCancel(ctx context.Context, done <-chan struct{}, abort func()) {
	select {
	case <-ctx.Done():
		abort()
	case <-done:
	}
}

// ListUnseen returns the UIDs of unseen messages received since the cutoff,
// newest first, capped at max. IMAP SINCE has day granularity; callers still
// apply the precise recency gate per message.
func (m *Client) ListUnseen(ctx context.Context, since time.Time, max int) ([]imap.UID, error) {
	if m == nil || m.c == nil {
		return nil, errors.New("imap client is nil")
	}
	if max <= 0 {
		max = 50
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	if !since.IsZero() {
		criteria.Since = since
	}

	searchData, err := m.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := searchData.AllUIDs()

	// Newest first
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	return uids, nil
}

// Fetch pulls one message, Envelope plus full raw RFC822 bytes.
// Uses BODY.PEEK[] so it will NOT set \Seen.
func (m *Client) Fetch(ctx context.Context, uid imap.UID) (RawEmail, error) {
	if m == nil || m.c == nil {
		return RawEmail{}, errors.New("imap client is nil")
	}

	select {
	case <-ctx.Done():
		return RawEmail{}, ctx.Err()
	default:
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}

	fetchCmd := m.c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})

	var em RawEmail
	found := false

	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return RawEmail{}, fmt.Errorf("imap fetch collect: %w", err)
		}

		em.UID = buf.UID
		if buf.Envelope != nil {
			em.Subject = buf.Envelope.Subject
			em.From = joinAddrs(buf.Envelope.From)
			if !buf.Envelope.Date.IsZero() {
				em.Date = buf.Envelope.Date.UTC()
			}
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			em.Raw = append([]byte(nil), b...)
		}
		found = true
	}

	if err := fetchCmd.Close(); err != nil {
		return RawEmail{}, fmt.Errorf("imap fetch close: %w", err)
	}
	if !found {
		return RawEmail{}, fmt.Errorf("imap fetch: uid %d not found", uid)
	}

	// Envelope gaps happen on some servers; recover from the raw headers.
	if (em.Subject == "" || em.From == "" || em.Date.IsZero()) && len(em.Raw) > 0 {
		subj, from, date := parseHeadersFallback(em.Raw)
		if em.Subject == "" {
			em.Subject = subj
		}
		if em.From == "" {
			em.From = from
		}
		if em.Date.IsZero() && !date.IsZero() {
			em.Date = date.UTC()
		}
	}

	return em, nil
}

// MarkRead sets the \Seen flag for one UID.
func (m *Client) MarkRead(ctx context.Context, uid imap.UID) error {
	if m == nil || m.c == nil {
		return errors.New("imap client is nil")
	}

	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true, // don't need the updated flags back
		Flags:  []imap.Flag{imap.FlagSeen},
	}

	cmd := m.c.Store(imap.UIDSetNum(uid), storeFlags, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

// Close logs out, closes the connection, and releases the cancel watcher.
func (m *Client) Close() {
	if m == nil || m.c == nil {
		return
	}
	if err := m.c.Logout().Wait(); err != nil {
		log.Printf("[imap] logout: %v", err)
	}
	m.shutdown()
}

func (m *Client) shutdown() {
	m.closeOnce.Do(func() {
		close(m.done)
		if m.c != nil {
			_ = m.c.Close()
		}
	})
}

func joinAddrs(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

// Minimal header parsing fallback using net/mail.
func parseHeadersFallback(raw []byte) (subject, from string, date time.Time) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", "", time.Time{}
	}

	h := msg.Header
	subject = h.Get("Subject")
	from = h.Get("From")

	if ds := h.Get("Date"); ds != "" {
		if t, err := mail.ParseDate(ds); err == nil {
			date = t
		}
	}

	_, _ = io.Copy(io.Discard, msg.Body)
	return
}
