package proactive

import (
	"context"
	"errors"
	"testing"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/store"
)

type passMail struct {
	messages []integrations.MailSummary
}

func (m *passMail) Send(_ context.Context, _ string, _ integrations.OutgoingMail) (integrations.SendReceipt, error) {
	return integrations.SendReceipt{ID: "sent"}, nil
}

func (m *passMail) ListRecent(_ context.Context, _ string, _ int) ([]integrations.MailSummary, error) {
	return m.messages, nil
}

type failingCRM struct{}

func (failingCRM) CreateContact(_ context.Context, _ string, _ integrations.NewContact) (integrations.Contact, error) {
	return integrations.Contact{}, errors.New("crm down")
}

func (failingCRM) SearchContacts(_ context.Context, _, _ string) ([]integrations.Contact, error) {
	return nil, errors.New("crm down")
}

func (failingCRM) FindContactByEmail(_ context.Context, _, _ string) (*integrations.Contact, error) {
	return nil, errors.New("crm down")
}

func (failingCRM) ListContacts(_ context.Context, _ string, _ int) ([]integrations.Contact, error) {
	return nil, errors.New("crm down")
}

func (failingCRM) AttachNote(_ context.Context, _, _, _ string) (string, error) {
	return "", errors.New("crm down")
}

func TestWorkerPassIsolatesSourceFailures(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	if err := st.UpsertUser(ctx, store.User{
		ID: "u1", Email: "advisor@example.com", GoogleToken: "g-tok", HubSpotToken: "h-tok",
	}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	mail := &passMail{messages: []integrations.MailSummary{
		{ID: "m1", Subject: "Quarterly numbers", Snippet: "see attached"},
	}}
	ingestor := knowledge.NewIngestor(st, &decisionClient{content: "ok"}, mail, failingCRM{}, 3)
	w := NewWorker(st, ingestor, 0)

	// The CRM source failing must not block the mail ingest for the user.
	w.pass(ctx)

	docs, err := st.ListDocuments(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Source != knowledge.SourceMail {
		t.Fatalf("docs = %+v, want one mail document", docs)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	st := store.NewInMemoryStore()
	ingestor := knowledge.NewIngestor(st, &decisionClient{content: "ok"}, &passMail{}, failingCRM{}, 3)
	w := NewWorker(st, ingestor, 0)
	if w.interval != defaultWorkerInterval {
		t.Fatalf("interval = %v, want default %v", w.interval, defaultWorkerInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
