package core

import (
	"time"
)

// SpamCategory is the three-way spam classification
type SpamCategory string

const (
	CategorySpam         SpamCategory = "spam"
	CategoryPossibleSpam SpamCategory = "possible_spam"
	CategoryNotSpam      SpamCategory = "not_spam"
)

// IsSpamLike reports whether the category forbids a project assignment
func (c SpamCategory) IsSpamLike() bool {
	return c == CategorySpam || c == CategoryPossibleSpam
}

// Valid reports whether c is one of the known categories
func (c SpamCategory) Valid() bool {
	switch c {
	case CategorySpam, CategoryPossibleSpam, CategoryNotSpam:
		return true
	}
	return false
}

// NormalizedMessage is a provider-agnostic email
type NormalizedMessage struct {
	ID              string
	Subject         string
	PlainBody       string
	HTMLBody        string
	FromAddress     string
	FromDisplayName string
	ToAddresses     []string
	CcAddresses     []string
	BccAddresses    []string
	ReceivedAt      time.Time
	MessageID       string
	InReplyTo       string
	References      string
	Attachments     []AttachmentRef
}

// AttachmentRef describes an attachment either by its inline content or by
// the (MessageID, AttachmentID) pair needed to download it later.
type AttachmentRef struct {
	Filename     string
	ContentType  string
	SizeBytes    int64
	Content      []byte
	MessageID    string
	AttachmentID string
}

// Inline reports whether the attachment bytes are already present
func (a AttachmentRef) Inline() bool {
	return a.Content != nil
}

// ProjectDescriptor is a caller-owned project definition used for routing
type ProjectDescriptor struct {
	ID          string   `mapstructure:"id" json:"id"`
	Name        string   `mapstructure:"name" json:"name"`
	Description string   `mapstructure:"description" json:"description"`
	Keywords    []string `mapstructure:"keywords" json:"keywords"`
}

// SpamCheck is the raw outcome of a spam classification call
type SpamCheck struct {
	IsSpam     bool    `json:"isSpam"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// SpamVerdict is the categorized spam result
type SpamVerdict struct {
	Category   SpamCategory `json:"category"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
}

// ProjectVerdict is the project routing result. A nil ProjectID means no assignment.
type ProjectVerdict struct {
	ProjectID  *string `json:"projectId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// AssignedProject returns the project id or an empty string
func (p ProjectVerdict) AssignedProject() string {
	if p.ProjectID == nil {
		return ""
	}
	return *p.ProjectID
}

// CombinedVerdict pairs a spam verdict with a project verdict
type CombinedVerdict struct {
	Spam    SpamVerdict    `json:"spamClassification"`
	Project ProjectVerdict `json:"projectClassification"`
}

// EnforceInvariant clears the project assignment of spam-like verdicts
func (v CombinedVerdict) EnforceInvariant() CombinedVerdict {
	if v.Spam.Category.IsSpamLike() && v.Project.ProjectID != nil {
		v.Project.ProjectID = nil
	}
	return v
}

// CachedVerdict is a verdict stored by a VerdictCache
type CachedVerdict struct {
	Key        string
	Classifier string
	Verdict    CombinedVerdict
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// TriageStatus is the routing status derived from a verdict
type TriageStatus string

const (
	StatusSpam         TriageStatus = "SPAM"
	StatusPossibleSpam TriageStatus = "POSSIBLE_SPAM"
	StatusNotSpam      TriageStatus = "NOT_SPAM"
)

// TriageDecision is what a downstream store should do with a classified message
type TriageDecision struct {
	Status           TriageStatus
	ProjectID        *string
	SuggestedProject *string
	Unassigned       bool
	NeedsReview      bool
	Verdict          CombinedVerdict
	DecidedAt        time.Time
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
