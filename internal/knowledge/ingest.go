package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/policy"
	"github.com/ent0n29/penny/internal/store"
)

const (
	// SourceMail and SourceCRMContact are the document source tags the
	// ingestion pass writes under. Upserts key on (user, source, source id)
	// so re-running the pass never duplicates documents.
	SourceMail       = "gmail"
	SourceCRMContact = "hubspot_contact"

	defaultIngestBatch = 50
)

// Ingestor pulls recent mail and CRM contacts into the knowledge base as
// embedded documents.
type Ingestor struct {
	store        store.Store
	client       model.Client
	mail         integrations.Mail
	crm          integrations.CRM
	embeddingDim int
	batch        int
}

func NewIngestor(st store.Store, client model.Client, mail integrations.Mail, crm integrations.CRM, embeddingDim int) *Ingestor {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	return &Ingestor{
		store:        st,
		client:       client,
		mail:         mail,
		crm:          crm,
		embeddingDim: embeddingDim,
		batch:        defaultIngestBatch,
	}
}

// IngestMail upserts the user's most recent messages as documents. Users
// without a Google credential are skipped silently.
func (in *Ingestor) IngestMail(ctx context.Context, user store.User) (int, error) {
	if user.GoogleToken == "" {
		return 0, nil
	}
	messages, err := in.mail.ListRecent(ctx, user.GoogleToken, in.batch)
	if err != nil {
		return 0, fmt.Errorf("list mail: %w", err)
	}

	for i, msg := range messages {
		content := msg.Snippet
		if content == "" {
			content = msg.Subject
		}
		if err := in.upsert(ctx, user.ID, SourceMail, msg.ID, content); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

// IngestCRM upserts the user's CRM contacts as one-line "Contact: ..."
// documents, matching the shape the retriever was trained against.
func (in *Ingestor) IngestCRM(ctx context.Context, user store.User) (int, error) {
	if user.HubSpotToken == "" {
		return 0, nil
	}
	contacts, err := in.crm.ListContacts(ctx, user.HubSpotToken, in.batch)
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}

	for i, c := range contacts {
		name := strings.TrimSpace(c.FirstName + " " + c.LastName)
		note := fmt.Sprintf("Contact: %s <%s>", name, c.Email)
		if err := in.upsert(ctx, user.ID, SourceCRMContact, c.ID, note); err != nil {
			return i, err
		}
	}
	return len(contacts), nil
}

func (in *Ingestor) upsert(ctx context.Context, userID, source, sourceID, content string) error {
	// Card and SSN digits must never reach the document store.
	content, _ = policy.RedactSensitive(content)

	embedding, err := in.client.Embed(ctx, content)
	if err != nil {
		if !model.IsRateLimited(err) {
			return fmt.Errorf("embed %s/%s: %w", source, sourceID, err)
		}
		// Quota exhaustion must not stall ingestion; store a neutral
		// vector and let a later pass refresh it.
		embedding = make([]float32, in.embeddingDim)
	}
	if err := in.store.UpsertDocument(ctx, store.Document{
		UserID:    userID,
		Source:    source,
		SourceID:  sourceID,
		Content:   content,
		Embedding: embedding,
	}); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", source, sourceID, err)
	}
	return nil
}
