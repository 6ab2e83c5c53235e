package proactive

import (
	"context"
	"log"
	"time"

	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/store"
)

const defaultWorkerInterval = 2 * time.Minute

// Worker periodically refreshes every user's knowledge base from their mail
// and CRM accounts. Each user and each source is isolated: one failing user
// never aborts the pass.
type Worker struct {
	store    store.Store
	ingestor *knowledge.Ingestor
	interval time.Duration
}

func NewWorker(st store.Store, ingestor *knowledge.Ingestor, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultWorkerInterval
	}
	return &Worker{store: st, ingestor: ingestor, interval: interval}
}

// Run executes one pass immediately, then loops on the interval until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("proactive: worker started, interval %s", w.interval)
	w.pass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("proactive: worker stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		log.Printf("proactive: list users: %v", err)
		return
	}
	log.Printf("proactive: processing %d users", len(users))

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		if n, err := w.ingestor.IngestMail(ctx, user); err != nil {
			log.Printf("proactive: mail ingest for %s: %v", user.Email, err)
		} else if n > 0 {
			log.Printf("proactive: ingested %d mail documents for %s", n, user.Email)
		}
		if n, err := w.ingestor.IngestCRM(ctx, user); err != nil {
			log.Printf("proactive: crm ingest for %s: %v", user.Email, err)
		} else if n > 0 {
			log.Printf("proactive: ingested %d crm documents for %s", n, user.Email)
		}
	}
}
