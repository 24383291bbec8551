package store

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"

	TransactionUsage    = "usage"
	TransactionPurchase = "purchase"
)

type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	CreditsBalance int       `json:"credits_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreditTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int             `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	AppName     string          `json:"app_name"`
	ReferenceID *string         `json:"reference_id"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Document struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	OrganizationID   *string         `json:"organization_id"`
	TeamID           *string         `json:"team_id"`
	Title            string          `json:"title"`
	OriginalContent  string          `json:"original_content"`
	ConvertedContent *string         `json:"converted_content"`
	ConversionType   *string         `json:"conversion_type"`
	DocumentType     string          `json:"document_type"`
	Status           string          `json:"status"`
	CreditsUsed      int             `json:"credits_used"`
	KeyTerms         json.RawMessage `json:"key_terms"`
	Summary          *string         `json:"summary"`
	OriginalFile     *string         `json:"original_file"`
	FileType         *string         `json:"file_type"`
	WordCount        int             `json:"word_count"`
	CharacterCount   int             `json:"character_count"`
	Metadata         json.RawMessage `json:"metadata"`
	Tags             []string        `json:"tags"`
	IsArchived       bool            `json:"is_archived"`
	ArchivedAt       *time.Time      `json:"archived_at"`
	ArchivedBy       *string         `json:"archived_by"`
	ArchiveReason    *string         `json:"archive_reason"`
	RecalledAt       *time.Time      `json:"recalled_at"`
	RecalledBy       *string         `json:"recalled_by"`
	RecallReason     *string         `json:"recall_reason"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ConversionCommit is everything a successful conversion writes. Either all
// of it lands or none of it does.
type ConversionCommit struct {
	UserID         string
	DocumentID     string // empty inserts a new document
	Title          string
	ConversionType string
	OriginalText   string
	ConvertedText  string
	KeyTerms       json.RawMessage
	Summary        *string
	Cost           int
	Description    string
	Metadata       json.RawMessage
}

type ConversionReceipt struct {
	Document         Document
	RemainingCredits int
}

type CreditGrant struct {
	UserID      string
	Amount      int
	Description string
	ReferenceID string
}

type ArchiveFilter struct {
	OrganizationID string
	ArchivedBy     string
	UserID         string
	Limit          int
}

type Organization struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Slug               string          `json:"slug"`
	Plan               string          `json:"plan"`
	MaxUsers           int             `json:"max_users"`
	MaxDocuments       int             `json:"max_documents"`
	MaxStorageGB       int             `json:"max_storage_gb"`
	Features           json.RawMessage `json:"features"`
	Settings           json.RawMessage `json:"settings"`
	BillingEmail       string          `json:"billing_email"`
	SubscriptionStatus string          `json:"subscription_status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// OrganizationPatch lists the only organization columns a client may write.
type OrganizationPatch struct {
	Name               *string          `json:"name"`
	Plan               *string          `json:"plan"`
	MaxUsers           *int             `json:"max_users"`
	MaxDocuments       *int             `json:"max_documents"`
	MaxStorageGB       *int             `json:"max_storage_gb"`
	Features           *json.RawMessage `json:"features"`
	Settings           *json.RawMessage `json:"settings"`
	BillingEmail       *string          `json:"billing_email"`
	SubscriptionStatus *string          `json:"subscription_status"`
}

type OrganizationMember struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	JoinedAt       time.Time `json:"joined_at"`
}

type Team struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Specialty      string          `json:"specialty"`
	Color          string          `json:"color"`
	Settings       json.RawMessage `json:"settings"`
	CreatedBy      *string         `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TeamPatch lists the only team columns a client may write.
type TeamPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Specialty   *string          `json:"specialty"`
	Color       *string          `json:"color"`
	Settings    *json.RawMessage `json:"settings"`
}

type TeamMember struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	AddedBy  *string   `json:"added_by"`
	AddedAt  time.Time `json:"added_at"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

type Workflow struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	TriggerConditions json.RawMessage `json:"trigger_conditions"`
	IsActive          bool            `json:"is_active"`
	CreatedBy         *string         `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Steps             []WorkflowStep  `json:"steps"`
}

type WorkflowStep struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	StepOrder    int       `json:"step_order"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ApproverID   *string   `json:"approver_id"`
	ApproverRole string    `json:"approver_role"`
	IsRequired   bool      `json:"is_required"`
	CreatedAt    time.Time `json:"created_at"`
}

type Approval struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id"`
	WorkflowID      string     `json:"workflow_id"`
	StepID          string     `json:"step_id"`
	StepOrder       int        `json:"step_order"`
	ApproverID      *string    `json:"approver_id"`
	Status          string     `json:"status"`
	RequestedBy     *string    `json:"requested_by"`
	RejectionReason *string    `json:"rejection_reason"`
	DecidedAt       *time.Time `json:"decided_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Signoffs        []Signoff  `json:"signoffs,omitempty"`
}

type Signoff struct {
	ID         string    `json:"id"`
	ApprovalID string    `json:"approval_id"`
	SignerID   *string   `json:"signer_id"`
	Decision   string    `json:"decision"`
	Comments   string    `json:"comments"`
	SignedAt   time.Time `json:"signed_at"`
}

type ApprovalFilter struct {
	DocumentID string
	ApproverID string
	Status     string
}

// ApprovalDecision moves a pending approval to approved or rejected and
// records the signoff in the same transaction.
type ApprovalDecision struct {
	ApprovalID      string
	Status          string
	SignerID        string
	Comments        string
	RejectionReason string
}

type Template struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Content        string          `json:"content"`
	BrandingConfig json.RawMessage `json:"branding_config"`
	LegalClauses   json.RawMessage `json:"legal_clauses"`
	IsPublic       bool            `json:"is_public"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TemplatePatch lists the only template columns a client may write.
type TemplatePatch struct {
	Name           *string          `json:"name"`
	Category       *string          `json:"category"`
	Description    *string          `json:"description"`
	Content        *string          `json:"content"`
	BrandingConfig *json.RawMessage `json:"brandingConfig"`
	LegalClauses   *json.RawMessage `json:"legalClauses"`
	IsPublic       *bool            `json:"isPublic"`
}

type CountByKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type TeamStatistic struct {
	TeamID        string `json:"team_id"`
	TeamName      string `json:"team_name"`
	MemberCount   int    `json:"member_count"`
	DocumentCount int    `json:"document_count"`
}

type Analytics struct {
	TotalDocuments    int             `json:"total_documents"`
	ActiveUsers       int             `json:"active_users"`
	PendingApprovals  int             `json:"pending_approvals"`
	ArchivedDocuments int             `json:"archived_documents"`
	DocumentsByType   []CountByKey    `json:"documents_by_type"`
	DocumentsByStatus []CountByKey    `json:"documents_by_status"`
	TeamStatistics    []TeamStatistic `json:"team_statistics"`
}
