package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"legalease/api/internal/config"
	"legalease/api/internal/email"
	"legalease/api/internal/llm"
	"legalease/api/internal/ratelimit"
	"legalease/api/internal/search"
	"legalease/api/internal/storage"
	"legalease/api/internal/store"
	"legalease/api/internal/versions"
)

type fakeStore struct {
	getProfileFn       func(context.Context, string) (store.Profile, error)
	commitConversionFn func(context.Context, store.ConversionCommit) (store.ConversionReceipt, error)
	grantCreditsFn     func(context.Context, store.CreditGrant) (store.Profile, error)
	insertDocumentFn   func(context.Context, store.Document) (store.Document, error)
	getDocumentFn      func(context.Context, string) (store.Document, error)
	deleteDocumentFn   func(context.Context, string) error
	restoreContentFn   func(context.Context, string, string, *string) (store.Document, error)
	archiveDocumentFn  func(context.Context, string, string, string) (store.Document, error)
	recallDocumentFn   func(context.Context, string, string, string) (store.Document, error)
	listArchivedFn     func(context.Context, store.ArchiveFilter) ([]store.Document, error)
	createOrgFn        func(context.Context, store.Organization, string) (store.Organization, error)
	organizationRoleFn func(context.Context, string, string) (string, error)
	updateOrgFn        func(context.Context, string, store.OrganizationPatch) (store.Organization, error)
	deleteOrgFn        func(context.Context, string) error
	getTeamFn          func(context.Context, string) (store.Team, error)
	addTeamMemberFn    func(context.Context, store.TeamMember) (store.TeamMember, error)
	getWorkflowFn      func(context.Context, string) (store.Workflow, error)
	createApprovalFn   func(context.Context, store.Approval) (store.Approval, error)
	getApprovalFn      func(context.Context, string) (store.Approval, error)
	decideApprovalFn   func(context.Context, store.ApprovalDecision) (store.Approval, error)
	getTemplateFn      func(context.Context, string) (store.Template, error)
	createTemplateFn   func(context.Context, store.Template) (store.Template, error)
	deleteTemplateFn   func(context.Context, string) error
	pingFn             func(context.Context) error
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx, userID)
	}
	return store.Profile{ID: userID, CreditsBalance: 100}, nil
}

func (f *fakeStore) ListCreditTransactions(context.Context, string, int) ([]store.CreditTransaction, error) {
	return []store.CreditTransaction{}, nil
}

func (f *fakeStore) CommitConversion(ctx context.Context, commit store.ConversionCommit) (store.ConversionReceipt, error) {
	if f.commitConversionFn != nil {
		return f.commitConversionFn(ctx, commit)
	}
	return store.ConversionReceipt{Document: store.Document{ID: "doc-1", UserID: commit.UserID}}, nil
}

func (f *fakeStore) GrantCredits(ctx context.Context, grant store.CreditGrant) (store.Profile, error) {
	if f.grantCreditsFn != nil {
		return f.grantCreditsFn(ctx, grant)
	}
	return store.Profile{ID: grant.UserID, CreditsBalance: grant.Amount}, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, doc)
	}
	doc.ID = "doc-new"
	return doc, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (store.Document, error) {
	if f.getDocumentFn != nil {
		return f.getDocumentFn(ctx, id)
	}
	return store.Document{}, store.ErrNotFound
}

func (f *fakeStore) ListDocumentsByUser(context.Context, string) ([]store.Document, error) {
	return []store.Document{}, nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, id string) error {
	if f.deleteDocumentFn != nil {
		return f.deleteDocumentFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) RestoreDocumentContent(ctx context.Context, id, original string, converted *string) (store.Document, error) {
	if f.restoreContentFn != nil {
		return f.restoreContentFn(ctx, id, original, converted)
	}
	return store.Document{ID: id, OriginalContent: original, ConvertedContent: converted}, nil
}

func (f *fakeStore) ArchiveDocument(ctx context.Context, id, by, reason string) (store.Document, error) {
	if f.archiveDocumentFn != nil {
		return f.archiveDocumentFn(ctx, id, by, reason)
	}
	return store.Document{ID: id, IsArchived: true}, nil
}

func (f *fakeStore) RecallDocument(ctx context.Context, id, by, reason string) (store.Document, error) {
	if f.recallDocumentFn != nil {
		return f.recallDocumentFn(ctx, id, by, reason)
	}
	return store.Document{ID: id}, nil
}

func (f *fakeStore) ListArchivedDocuments(ctx context.Context, filter store.ArchiveFilter) ([]store.Document, error) {
	if f.listArchivedFn != nil {
		return f.listArchivedFn(ctx, filter)
	}
	return []store.Document{}, nil
}

func (f *fakeStore) ListOrganizations(context.Context, string) ([]store.Organization, error) {
	return []store.Organization{}, nil
}

func (f *fakeStore) CreateOrganization(ctx context.Context, org store.Organization, ownerID string) (store.Organization, error) {
	if f.createOrgFn != nil {
		return f.createOrgFn(ctx, org, ownerID)
	}
	org.ID = "org-1"
	return org, nil
}

func (f *fakeStore) GetOrganization(_ context.Context, id string) (store.Organization, error) {
	return store.Organization{ID: id, Name: "Acme"}, nil
}

func (f *fakeStore) ListOrganizationMembers(context.Context, string) ([]store.OrganizationMember, error) {
	return []store.OrganizationMember{}, nil
}

func (f *fakeStore) OrganizationRole(ctx context.Context, orgID, userID string) (string, error) {
	if f.organizationRoleFn != nil {
		return f.organizationRoleFn(ctx, orgID, userID)
	}
	return "owner", nil
}

func (f *fakeStore) UpdateOrganization(ctx context.Context, id string, patch store.OrganizationPatch) (store.Organization, error) {
	if f.updateOrgFn != nil {
		return f.updateOrgFn(ctx, id, patch)
	}
	return store.Organization{ID: id}, nil
}

func (f *fakeStore) DeleteOrganization(ctx context.Context, id string) error {
	if f.deleteOrgFn != nil {
		return f.deleteOrgFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) OrganizationAnalytics(context.Context, string) (store.Analytics, error) {
	return store.Analytics{}, nil
}

func (f *fakeStore) ListTeams(context.Context, string) ([]store.Team, error) {
	return []store.Team{}, nil
}

func (f *fakeStore) CreateTeam(_ context.Context, team store.Team) (store.Team, error) {
	team.ID = "team-1"
	return team, nil
}

func (f *fakeStore) GetTeam(ctx context.Context, id string) (store.Team, error) {
	if f.getTeamFn != nil {
		return f.getTeamFn(ctx, id)
	}
	return store.Team{ID: id, OrganizationID: "org-1"}, nil
}

func (f *fakeStore) UpdateTeam(_ context.Context, id string, _ store.TeamPatch) (store.Team, error) {
	return store.Team{ID: id}, nil
}

func (f *fakeStore) DeleteTeam(context.Context, string) error { return nil }

func (f *fakeStore) ListTeamMembers(context.Context, string) ([]store.TeamMember, error) {
	return []store.TeamMember{}, nil
}

func (f *fakeStore) AddTeamMember(ctx context.Context, member store.TeamMember) (store.TeamMember, error) {
	if f.addTeamMemberFn != nil {
		return f.addTeamMemberFn(ctx, member)
	}
	return member, nil
}

func (f *fakeStore) RemoveTeamMember(context.Context, string, string) error { return nil }

func (f *fakeStore) ListWorkflows(context.Context, string, *bool) ([]store.Workflow, error) {
	return []store.Workflow{}, nil
}

func (f *fakeStore) CreateWorkflow(_ context.Context, wf store.Workflow) (store.Workflow, error) {
	wf.ID = "wf-1"
	for i := range wf.Steps {
		wf.Steps[i].StepOrder = i + 1
	}
	return wf, nil
}

func (f *fakeStore) GetWorkflow(ctx context.Context, id string) (store.Workflow, error) {
	if f.getWorkflowFn != nil {
		return f.getWorkflowFn(ctx, id)
	}
	return store.Workflow{}, store.ErrNotFound
}

func (f *fakeStore) DeleteWorkflow(context.Context, string) error { return nil }

func (f *fakeStore) CreateApproval(ctx context.Context, approval store.Approval) (store.Approval, error) {
	if f.createApprovalFn != nil {
		return f.createApprovalFn(ctx, approval)
	}
	approval.ID = "appr-1"
	approval.Status = store.ApprovalPending
	return approval, nil
}

func (f *fakeStore) GetApproval(ctx context.Context, id string) (store.Approval, error) {
	if f.getApprovalFn != nil {
		return f.getApprovalFn(ctx, id)
	}
	return store.Approval{}, store.ErrNotFound
}

func (f *fakeStore) ListApprovals(context.Context, store.ApprovalFilter) ([]store.Approval, error) {
	return []store.Approval{}, nil
}

func (f *fakeStore) DecideApproval(ctx context.Context, decision store.ApprovalDecision) (store.Approval, error) {
	if f.decideApprovalFn != nil {
		return f.decideApprovalFn(ctx, decision)
	}
	return store.Approval{}, store.ErrNotFound
}

func (f *fakeStore) ListTemplates(context.Context, string, bool) ([]store.Template, error) {
	return []store.Template{}, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (store.Template, error) {
	if f.getTemplateFn != nil {
		return f.getTemplateFn(ctx, id)
	}
	return store.Template{}, store.ErrNotFound
}

func (f *fakeStore) CreateTemplate(ctx context.Context, tpl store.Template) (store.Template, error) {
	if f.createTemplateFn != nil {
		return f.createTemplateFn(ctx, tpl)
	}
	tpl.ID = "tpl-1"
	return tpl, nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, id string, _ store.TemplatePatch) (store.Template, error) {
	return store.Template{ID: id}, nil
}

func (f *fakeStore) DeleteTemplate(ctx context.Context, id string) error {
	if f.deleteTemplateFn != nil {
		return f.deleteTemplateFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeConverter struct {
	legalToPlainFn func(context.Context, string) (string, error)
	calls          int
	mu             sync.Mutex
}

func (f *fakeConverter) record() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeConverter) LegalToPlain(ctx context.Context, text string) (string, error) {
	f.record()
	if f.legalToPlainFn != nil {
		return f.legalToPlainFn(ctx, text)
	}
	return "plain: " + text, nil
}

func (f *fakeConverter) PlainToLegal(_ context.Context, text string) (string, error) {
	f.record()
	return "legal: " + text, nil
}

func (f *fakeConverter) ExtractKeyTerms(context.Context, string) ([]llm.KeyTerm, error) {
	f.record()
	return []llm.KeyTerm{{Term: "Indemnify", Explanation: "Cover the costs", Importance: "high"}}, nil
}

func (f *fakeConverter) Summarize(context.Context, string) (string, error) {
	f.record()
	return "You pay the costs.", nil
}

type storedObject struct {
	bucket string
	key    string
	data   []byte
}

type fakeObjects struct {
	putErr  error
	puts    []storedObject
	removed []string
	objects []storage.Object
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, storedObject{bucket: bucket, key: key, data: data})
	return nil
}

func (f *fakeObjects) Remove(_ context.Context, bucket, key string) error {
	f.removed = append(f.removed, bucket+"/"+key)
	return nil
}

func (f *fakeObjects) List(context.Context, string, string) ([]storage.Object, error) {
	return f.objects, nil
}

func (f *fakeObjects) PublicURL(bucket, key string) string {
	return "https://files.example.com/" + bucket + "/" + key
}

type fakeIndex struct {
	indexed  []string
	deleted  []string
	searched []search.Filter
}

func (f *fakeIndex) Search(_ context.Context, filter search.Filter) (search.Response, error) {
	f.searched = append(f.searched, filter)
	return search.Response{Results: []search.Hit{}, Query: filter.Text, Limit: filter.Limit, Source: "postgres"}, nil
}

func (f *fakeIndex) IndexDocument(_ context.Context, doc store.Document) {
	f.indexed = append(f.indexed, doc.ID)
}

func (f *fakeIndex) DeleteDocument(_ context.Context, id string) {
	f.deleted = append(f.deleted, id)
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
}

func (f *fakeLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return f.decision, f.err
}

type fakeVersions struct {
	recorded []string
	removed  []string
	content  versions.Content
	getErr   error
}

func (f *fakeVersions) Record(documentID string, _ versions.Content, _, message string) (versions.Version, error) {
	f.recorded = append(f.recorded, documentID+":"+message)
	return versions.Version{Hash: "abc1234", Message: message}, nil
}

func (f *fakeVersions) History(string, int) ([]versions.Version, error) {
	return []versions.Version{{Hash: "abc1234", Message: "Create document"}}, nil
}

func (f *fakeVersions) Get(_, hash string) (versions.Content, versions.Version, error) {
	if f.getErr != nil {
		return versions.Content{}, versions.Version{}, f.getErr
	}
	return f.content, versions.Version{Hash: hash}, nil
}

func (f *fakeVersions) Remove(documentID string) error {
	f.removed = append(f.removed, documentID)
	return nil
}

type fakeMailer struct {
	requested []string
	rejected  []email.ApprovalRejectedData
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendApprovalRequested(to string, _ email.ApprovalRequestedData) error {
	f.requested = append(f.requested, to)
	return nil
}

func (f *fakeMailer) SendApprovalRejected(_ string, data email.ApprovalRejectedData) error {
	f.rejected = append(f.rejected, data)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Env:           "test",
		AITimeout:     5 * time.Second,
		UploadTimeout: 5 * time.Second,
		Storage: config.StorageConfig{
			DocumentsBucket: "documents",
			BrandingBucket:  "branding",
		},
	}
}

func newTestServer(cfg config.Config, fs *fakeStore, opts Options) (*HTTPServer, *Service) {
	svc := newService(cfg, fs, opts)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return NewHTTPServer(svc, "*"), svc
}

func doJSON(t *testing.T, server *HTTPServer, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeResponse(t, rr)["code"].(string)
	return code
}
