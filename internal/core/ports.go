package core

import (
	"context"
	"time"
)

// MailProvider pulls messages from one mailbox. An instance owns a single session:
// Connect, any number of fetches, then Disconnect.
type MailProvider interface {
	// Name identifies the backend (gmail, imap, graph)
	Name() string

	// Connect establishes the session and validates credentials
	Connect(ctx context.Context) error

	// Disconnect releases the session. Failures are logged, never returned.
	Disconnect(ctx context.Context)

	// FetchMessages returns every message received at or after since, or all messages when since is nil
	FetchMessages(ctx context.Context, since *time.Time) ([]NormalizedMessage, error)

	// DownloadAttachment returns the raw bytes of an attachment
	DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Classifier classifies message content with a language model.
// No method returns an error: failures become low-confidence fallback verdicts.
type Classifier interface {
	Name() string
	ClassifySpam(ctx context.Context, content string) SpamCheck
	ClassifyProject(ctx context.Context, content string, projects []ProjectDescriptor) ProjectVerdict
	ClassifyCombined(ctx context.Context, content string, projects []ProjectDescriptor) CombinedVerdict
	Categorize(check SpamCheck) SpamCategory
}

// VerdictCache stores verdicts so already-seen messages are not classified twice
type VerdictCache interface {
	// Get retrieves a cached verdict
	Get(ctx context.Context, key string) (*CachedVerdict, error)

	// Set stores a verdict
	Set(ctx context.Context, entry *CachedVerdict) error

	// Delete removes a cached verdict
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// ProviderFactory creates a fresh mail provider for a named account
type ProviderFactory interface {
	CreateProvider(account string) (MailProvider, error)
}
