package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"legalease/api/internal/auth"
	"legalease/api/internal/config"
	"legalease/api/internal/email"
	"legalease/api/internal/export"
	"legalease/api/internal/llm"
	"legalease/api/internal/ratelimit"
	"legalease/api/internal/rbac"
	"legalease/api/internal/search"
	"legalease/api/internal/storage"
	"legalease/api/internal/store"
	"legalease/api/internal/versions"
)

type dataStore interface {
	GetProfile(context.Context, string) (store.Profile, error)
	ListCreditTransactions(context.Context, string, int) ([]store.CreditTransaction, error)
	CommitConversion(context.Context, store.ConversionCommit) (store.ConversionReceipt, error)
	GrantCredits(context.Context, store.CreditGrant) (store.Profile, error)

	InsertDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	ListDocumentsByUser(context.Context, string) ([]store.Document, error)
	DeleteDocument(context.Context, string) error
	RestoreDocumentContent(context.Context, string, string, *string) (store.Document, error)
	ArchiveDocument(context.Context, string, string, string) (store.Document, error)
	RecallDocument(context.Context, string, string, string) (store.Document, error)
	ListArchivedDocuments(context.Context, store.ArchiveFilter) ([]store.Document, error)

	ListOrganizations(context.Context, string) ([]store.Organization, error)
	CreateOrganization(context.Context, store.Organization, string) (store.Organization, error)
	GetOrganization(context.Context, string) (store.Organization, error)
	ListOrganizationMembers(context.Context, string) ([]store.OrganizationMember, error)
	OrganizationRole(context.Context, string, string) (string, error)
	UpdateOrganization(context.Context, string, store.OrganizationPatch) (store.Organization, error)
	DeleteOrganization(context.Context, string) error
	OrganizationAnalytics(context.Context, string) (store.Analytics, error)

	ListTeams(context.Context, string) ([]store.Team, error)
	CreateTeam(context.Context, store.Team) (store.Team, error)
	GetTeam(context.Context, string) (store.Team, error)
	UpdateTeam(context.Context, string, store.TeamPatch) (store.Team, error)
	DeleteTeam(context.Context, string) error
	ListTeamMembers(context.Context, string) ([]store.TeamMember, error)
	AddTeamMember(context.Context, store.TeamMember) (store.TeamMember, error)
	RemoveTeamMember(context.Context, string, string) error

	ListWorkflows(context.Context, string, *bool) ([]store.Workflow, error)
	CreateWorkflow(context.Context, store.Workflow) (store.Workflow, error)
	GetWorkflow(context.Context, string) (store.Workflow, error)
	DeleteWorkflow(context.Context, string) error
	CreateApproval(context.Context, store.Approval) (store.Approval, error)
	GetApproval(context.Context, string) (store.Approval, error)
	ListApprovals(context.Context, store.ApprovalFilter) ([]store.Approval, error)
	DecideApproval(context.Context, store.ApprovalDecision) (store.Approval, error)

	ListTemplates(context.Context, string, bool) ([]store.Template, error)
	GetTemplate(context.Context, string) (store.Template, error)
	CreateTemplate(context.Context, store.Template) (store.Template, error)
	UpdateTemplate(context.Context, string, store.TemplatePatch) (store.Template, error)
	DeleteTemplate(context.Context, string) error

	Ping(ctx context.Context) error
}

// ObjectStore holds uploaded originals and branding logos.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]storage.Object, error)
	PublicURL(bucket, key string) string
}

// DocumentIndex is the search facade. Index and delete are best effort.
type DocumentIndex interface {
	Search(ctx context.Context, f search.Filter) (search.Response, error)
	IndexDocument(ctx context.Context, doc store.Document)
	DeleteDocument(ctx context.Context, id string)
}

type RateLimiter interface {
	Allow(ctx context.Context, scope string) (ratelimit.Decision, error)
}

type VersionStore interface {
	Record(documentID string, content versions.Content, author, message string) (versions.Version, error)
	History(documentID string, limit int) ([]versions.Version, error)
	Get(documentID, hash string) (versions.Content, versions.Version, error)
	Remove(documentID string) error
}

type Exporter interface {
	Export(ctx context.Context, format export.Format, doc export.Document, branding export.Branding) (*export.Result, error)
}

type Notifier interface {
	IsConfigured() bool
	SendApprovalRequested(to string, data email.ApprovalRequestedData) error
	SendApprovalRejected(to string, data email.ApprovalRejectedData) error
}

// Options carries the optional collaborators. Nil fields disable the
// feature that needs them.
type Options struct {
	Converter llm.Converter
	Objects   ObjectStore
	Search    DocumentIndex
	Limiter   RateLimiter
	Versions  VersionStore
	Exporter  Exporter
	Mailer    Notifier
}

type Service struct {
	cfg      config.Config
	store    dataStore
	llm      llm.Converter
	objects  ObjectStore
	search   DocumentIndex
	limiter  RateLimiter
	versions VersionStore
	exporter Exporter
	mailer   Notifier
	now      func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	return newService(cfg, dataStore, opts)
}

func newService(cfg config.Config, ds dataStore, opts Options) *Service {
	return &Service{
		cfg:      cfg,
		store:    ds,
		llm:      opts.Converter,
		objects:  opts.Objects,
		search:   opts.Search,
		limiter:  opts.Limiter,
		versions: opts.Versions,
		exporter: opts.Exporter,
		mailer:   opts.Mailer,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthEnabled() bool {
	return strings.TrimSpace(s.cfg.AuthJWTSecret) != ""
}

type callerKey struct{}

// withCaller records the verified user behind the request.
func withCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

func callerFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(callerKey{}).(string)
	return userID, ok && userID != ""
}

func (s *Service) hasCaller(ctx context.Context) bool {
	_, ok := callerFrom(ctx)
	return ok
}

// Authenticate verifies a bearer token against the configured secret.
func (s *Service) Authenticate(token string) (auth.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.ParseToken([]byte(s.cfg.AuthJWTSecret), token)
}

// ValidAdminKey reports whether key matches the configured admin key. An
// unset admin key rejects everything.
func (s *Service) ValidAdminKey(key string) bool {
	expected := strings.TrimSpace(s.cfg.AdminAPIKey)
	if expected == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1
}

// actingUser resolves the user a request acts for. With a verified caller the
// supplied id must match it or be empty; without one the supplied id is
// trusted and required.
func (s *Service) actingUser(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if caller, ok := callerFrom(ctx); ok {
		if userID != "" && userID != caller {
			return "", forbidden("userId does not match the authenticated user")
		}
		return caller, nil
	}
	if userID == "" {
		return "", validationError("userId is required")
	}
	return userID, nil
}

// ownedDocument loads a document and checks that userID owns it.
func (s *Service) ownedDocument(ctx context.Context, documentID, userID string) (store.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return store.Document{}, validationError("documentId is required")
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, notFound("Document not found")
	}
	if err != nil {
		return store.Document{}, err
	}
	if doc.UserID != userID {
		return store.Document{}, forbidden("Unauthorized")
	}
	return doc, nil
}

// requireOrgAdmin enforces organization administration for verified callers.
// Unverified requests pass through unchanged.
func (s *Service) requireOrgAdmin(ctx context.Context, organizationID string) error {
	return s.requireOrgAction(ctx, organizationID, rbac.ActionAdminister)
}

func (s *Service) requireOrgAction(ctx context.Context, organizationID string, action rbac.Action) error {
	caller, ok := callerFrom(ctx)
	if !ok {
		return nil
	}
	role, err := s.store.OrganizationRole(ctx, organizationID, caller)
	if errors.Is(err, store.ErrNotFound) {
		return forbidden("Not a member of this organization")
	}
	if err != nil {
		return err
	}
	if !rbac.Can(rbac.NormalizeOrgRole(role), action) {
		return forbidden("Insufficient organization role")
	}
	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
