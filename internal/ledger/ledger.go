// Package ledger tracks job ids already alerted so a job fires at most once.
package ledger

import (
	"context"
	"log"
	"time"

	"jobalert-engine/internal/store"
)

// Ledger is the dedup contract. Ids are posting ids; the empty id means the
// record is untracked and Seen must report false for it.
type Ledger interface {
	Seen(jobID string) bool
	Record(jobID string)
}

// Run is the per-invocation ledger: a plain set that never outlives one scan.
type Run struct {
	seen map[string]struct{}
}

func NewRun() *Run {
	return &Run{seen: make(map[string]struct{})}
}

func (r *Run) Seen(jobID string) bool {
	if jobID == "" {
		return false
	}
	_, ok := r.seen[jobID]
	return ok
}

func (r *Run) Record(jobID string) {
	if jobID == "" {
		return
	}
	r.seen[jobID] = struct{}{}
}

// Persistent layers the sqlite seen-jobs table under a run set, extending
// dedup across invocations within the recency window. Store errors fail open:
// a broken ledger must never suppress an alert.
type Persistent struct {
	run *Run
	db  *store.DB
}

func NewPersistent(db *store.DB) *Persistent {
	return &Persistent{run: NewRun(), db: db}
}

func (p *Persistent) Seen(jobID string) bool {
	if jobID == "" {
		return false
	}
	if p.run.Seen(jobID) {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen, err := p.db.SeenJob(ctx, jobID)
	if err != nil {
		log.Printf("[ledger] seen lookup: %v", err)
		return false
	}
	return seen
}

func (p *Persistent) Record(jobID string) {
	if jobID == "" {
		return
	}
	p.run.Record(jobID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.db.RecordSeenJob(ctx, jobID, time.Now()); err != nil {
		log.Printf("[ledger] record: %v", err)
	}
}
