package usecase

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/internal/tracking/dto"
	"mailtrack-backend/internal/tracking/repository"
	"mailtrack-backend/pkg/events"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var syncNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.Connection{}, &domain.TrackedEmail{}, &domain.Job{}, &domain.Application{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeSession struct {
	messages  []domain.InboundMessage
	err       error
	refreshed *domain.TokenSet
}

func (s *fakeSession) ScanJobEmails(context.Context) ([]domain.InboundMessage, error) {
	return s.messages, s.err
}

func (s *fakeSession) RefreshedToken() *domain.TokenSet { return s.refreshed }

type fakeProvider struct {
	tokens      *domain.TokenSet
	exchangeErr error
	address     string
	addressErr  error
	session     *fakeSession
	sessionFor  []domain.TokenSet
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *fakeProvider) Exchange(context.Context, string) (*domain.TokenSet, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.tokens, nil
}

func (p *fakeProvider) MailboxAddress(context.Context, domain.TokenSet) (string, error) {
	return p.address, p.addressErr
}

func (p *fakeProvider) NewSession(_ context.Context, tokens domain.TokenSet) (domain.MailSession, error) {
	p.sessionFor = append(p.sessionFor, tokens)
	return p.session, nil
}

type fakeState struct{}

func (fakeState) SignState(userID string) (string, error) { return "signed." + userID, nil }

func (fakeState) ParseState(state string) (string, error) {
	userID, ok := strings.CutPrefix(state, "signed.")
	if !ok {
		return "", errors.New("bad signature")
	}
	return userID, nil
}

type fixture struct {
	db          *gorm.DB
	connections repository.ConnectionRepository
	emails      repository.TrackedEmailRepository
	provider    *fakeProvider
	publisher   *fakePublisher
	usecase     *trackingUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	f := &fixture{
		db:          db,
		connections: repository.NewConnectionRepository(db, nil),
		emails:      repository.NewTrackedEmailRepository(db),
		provider:    &fakeProvider{session: &fakeSession{}},
		publisher:   &fakePublisher{},
	}
	reconciler := NewReconciler(repository.NewApplicationRepository(db), f.publisher, nil)
	reconciler.now = func() time.Time { return syncNow }

	f.usecase = NewTrackingUsecase(f.connections, f.emails, f.provider, fakeState{}, reconciler, f.publisher, nil).(*trackingUsecase)
	f.usecase.now = func() time.Time { return syncNow }
	return f
}

func (f *fixture) connect(t *testing.T, userID string) {
	t.Helper()
	err := f.connections.SaveAuthorization(context.Background(), &domain.Connection{
		UserID: userID, MailboxAddress: userID + "@example.com", AccessToken: "access", RefreshToken: "refresh",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) seedApplication(t *testing.T, id, company string, status domain.ApplicationStatus) {
	t.Helper()
	if err := f.db.Create(&domain.Job{ID: "job-" + id, Title: "Engineer", Company: company}).Error; err != nil {
		t.Fatal(err)
	}
	app := domain.Application{ID: id, UserID: "u1", JobID: "job-" + id, Status: status}
	if err := f.db.Create(&app).Error; err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) application(t *testing.T, id string) domain.Application {
	t.Helper()
	var app domain.Application
	if err := f.db.First(&app, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return app
}

func interviewMessage() domain.InboundMessage {
	return domain.InboundMessage{
		ID:      "msg-1",
		Subject: "Interview invitation",
		From:    `"TechCorp Talent" <talent@techcorp.com>`,
		Date:    syncNow.Add(-24 * time.Hour),
		Snippet: "We'd like to schedule a call",
		Body:    "We'd like to schedule an interview with you next week.",
	}
}

// ── Sync pipeline ─────────────────────────────────────────────────────────

func TestSyncEmails_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connect(t, "u1")
	f.seedApplication(t, "app-1", "TechCorp Inc", domain.StatusApplied)
	f.provider.session.messages = []domain.InboundMessage{interviewMessage()}

	result, err := f.usecase.SyncEmails(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := dto.SyncResult{Scanned: 1, Stored: 1, Reconciled: 1}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}

	emails, total, err := f.emails.List(ctx, "u1", domain.TrackedEmailFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || emails[0].ClassifiedType != domain.EmailTypeInterview || emails[0].CompanyName != "Techcorp" {
		t.Fatalf("tracked emails = %+v", emails)
	}

	app := f.application(t, "app-1")
	if app.Status != domain.StatusInterviewing {
		t.Errorf("status = %s, want INTERVIEWING", app.Status)
	}
	if app.Notes == nil || !strings.Contains(*app.Notes, "Status: INTERVIEWING") {
		t.Errorf("notes = %v", app.Notes)
	}

	conn, _ := f.connections.FindByUserID(ctx, "u1")
	if conn.LastSyncAt == nil || !conn.LastSyncAt.Equal(syncNow) {
		t.Errorf("LastSyncAt = %v", conn.LastSyncAt)
	}

	channels := f.publisher.channels()
	if len(channels) != 2 || channels[0] != events.ChannelApplicationAutoUpdated || channels[1] != events.ChannelEmailSyncCompleted {
		t.Errorf("published = %v", channels)
	}
}

func TestSyncEmails_ResyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connect(t, "u1")
	f.seedApplication(t, "app-1", "TechCorp Inc", domain.StatusApplied)
	f.provider.session.messages = []domain.InboundMessage{interviewMessage()}

	if _, err := f.usecase.SyncEmails(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	result, err := f.usecase.SyncEmails(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Stored != 1 || result.Reconciled != 0 {
		t.Errorf("second sync result = %+v", *result)
	}

	var count int64
	f.db.Model(&domain.TrackedEmail{}).Count(&count)
	if count != 1 {
		t.Errorf("tracked rows = %d, want 1", count)
	}
	app := f.application(t, "app-1")
	if n := strings.Count(*app.Notes, "Status:"); n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}

func TestSyncEmails_NoActiveConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.usecase.SyncEmails(ctx, "nobody")
	if err != nil || result == nil || *result != (dto.SyncResult{}) {
		t.Errorf("SyncEmails(nobody) = (%v, %v)", result, err)
	}

	f.connect(t, "u1")
	if err := f.connections.Deactivate(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	result, err = f.usecase.SyncEmails(ctx, "u1")
	if err != nil || *result != (dto.SyncResult{}) {
		t.Errorf("SyncEmails(inactive) = (%v, %v)", result, err)
	}
	if len(f.provider.sessionFor) != 0 {
		t.Error("a session was opened for an inactive connection")
	}
}

func TestSyncEmails_PersistsRefreshEvenWhenScanFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.connect(t, "u1")

	expiry := syncNow.Add(time.Hour)
	f.provider.session.refreshed = &domain.TokenSet{AccessToken: "fresh-access", Expiry: &expiry}
	f.provider.session.err = errors.New("quota exceeded")

	if _, err := f.usecase.SyncEmails(ctx, "u1"); err == nil {
		t.Fatal("expected scan error")
	}

	conn, _ := f.connections.FindByUserID(ctx, "u1")
	if conn.AccessToken != "fresh-access" || conn.RefreshToken != "refresh" {
		t.Errorf("tokens = (%q, %q)", conn.AccessToken, conn.RefreshToken)
	}
	if conn.LastSyncAt != nil {
		t.Error("LastSyncAt set after a failed scan")
	}
}

func TestSyncEmails_SessionUsesStoredTokens(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "u1")

	if _, err := f.usecase.SyncEmails(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if len(f.provider.sessionFor) != 1 || f.provider.sessionFor[0].AccessToken != "access" || f.provider.sessionFor[0].RefreshToken != "refresh" {
		t.Errorf("session tokens = %+v", f.provider.sessionFor)
	}
}

// ── Authorization ─────────────────────────────────────────────────────────

func TestAuthURLAndResolveState(t *testing.T) {
	f := newFixture(t)

	url, err := f.usecase.AuthURL("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(url, "state=signed.u1") {
		t.Errorf("url = %q", url)
	}

	userID, err := f.usecase.ResolveState("signed.u1")
	if err != nil || userID != "u1" {
		t.Errorf("ResolveState = (%q, %v)", userID, err)
	}
	for _, bad := range []string{"", "u1"} {
		if _, err := f.usecase.ResolveState(bad); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("ResolveState(%q) = %v, want ErrInvalidState", bad, err)
		}
	}
}

func TestCompleteAuthorization(t *testing.T) {
	ctx := context.Background()
	expiry := syncNow.Add(time.Hour)

	t.Run("stores connection", func(t *testing.T) {
		f := newFixture(t)
		f.provider.tokens = &domain.TokenSet{AccessToken: "a", RefreshToken: "r", Expiry: &expiry}
		f.provider.address = "seeker@example.com"

		if err := f.usecase.CompleteAuthorization(ctx, "code", "u1"); err != nil {
			t.Fatal(err)
		}
		conn, _ := f.connections.FindByUserID(ctx, "u1")
		if conn == nil || conn.MailboxAddress != "seeker@example.com" || !conn.IsActive || conn.RefreshToken != "r" {
			t.Errorf("connection = %+v", conn)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		if err := f.usecase.CompleteAuthorization(ctx, "", "u1"); !errors.Is(err, domain.ErrMissingCode) {
			t.Errorf("err = %v", err)
		}
	})

	failures := []struct {
		name  string
		setup func(p *fakeProvider)
	}{
		{"exchange fails", func(p *fakeProvider) { p.exchangeErr = errors.New("invalid_grant") }},
		{"identity lookup fails", func(p *fakeProvider) {
			p.tokens = &domain.TokenSet{AccessToken: "a"}
			p.addressErr = errors.New("userinfo unavailable")
		}},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f.provider)

			if err := f.usecase.CompleteAuthorization(ctx, "code", "u1"); err == nil {
				t.Fatal("expected error")
			}
			conn, _ := f.connections.FindByUserID(ctx, "u1")
			if conn != nil {
				t.Errorf("partial connection written: %+v", conn)
			}
		})
	}
}

// ── Connection status ─────────────────────────────────────────────────────

func TestConnectionStatusAndDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	status, err := f.usecase.ConnectionStatus(ctx, "u1")
	if err != nil || status.Connected {
		t.Fatalf("status = (%+v, %v)", status, err)
	}
	if err := f.usecase.Disconnect(ctx, "u1"); !errors.Is(err, domain.ErrConnectionNotFound) {
		t.Errorf("Disconnect without connection = %v", err)
	}

	f.connect(t, "u1")
	if err := f.usecase.Disconnect(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	status, err = f.usecase.ConnectionStatus(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Connected || status.IsActive == nil || *status.IsActive || status.Email != "u1@example.com" || status.CreatedAt == nil {
		t.Errorf("status = %+v", status)
	}
}

// ── Listing ───────────────────────────────────────────────────────────────

func TestListTrackedEmails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i, emailType := range []domain.EmailType{domain.EmailTypeOffer, domain.EmailTypeOther, domain.EmailTypeOffer} {
		err := f.emails.Upsert(ctx, &domain.TrackedEmail{
			UserID: "u1", ProviderMessageID: string(rune('a' + i)), ClassifiedType: emailType,
			CompanyName: "Acme", ReceivedAt: syncNow.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	page, err := f.usecase.ListTrackedEmails(ctx, "u1", dto.TrackedEmailQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Emails) != 2 || page.Pagination != (dto.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}) {
		t.Errorf("page = %+v", page.Pagination)
	}

	page, err = f.usecase.ListTrackedEmails(ctx, "u1", dto.TrackedEmailQuery{Limit: 1000, Status: "OFFER"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Limit != 100 || page.Pagination.Page != 1 || page.Pagination.Total != 2 {
		t.Errorf("pagination = %+v", page.Pagination)
	}

	page, err = f.usecase.ListTrackedEmails(ctx, "u2", dto.TrackedEmailQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Emails == nil || page.Pagination.Limit != 20 || page.Pagination.TotalPages != 0 {
		t.Errorf("empty page = %+v", page)
	}

	if _, err := f.usecase.ListTrackedEmails(ctx, "u1", dto.TrackedEmailQuery{Status: "SPAM"}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("unknown status err = %v", err)
	}

	page, err = f.usecase.ListTrackedEmails(ctx, "u1", dto.TrackedEmailQuery{Page: math.MaxInt, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Emails) != 0 || page.Pagination.Page != math.MaxInt32/2 {
		t.Errorf("huge page = %d emails, pagination %+v", len(page.Emails), page.Pagination)
	}
}

func TestGetTrackedEmailAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.usecase.GetTrackedEmail(ctx, "u1", "missing"); !errors.Is(err, domain.ErrTrackedEmailNotFound) {
		t.Errorf("err = %v", err)
	}

	email := &domain.TrackedEmail{UserID: "u1", ProviderMessageID: "m1", ClassifiedType: domain.EmailTypeOther, ReceivedAt: syncNow}
	if err := f.emails.Upsert(ctx, email); err != nil {
		t.Fatal(err)
	}
	if err := f.usecase.MarkRead(ctx, "u1", email.ID, true); err != nil {
		t.Fatal(err)
	}
	got, err := f.usecase.GetTrackedEmail(ctx, "u1", email.ID)
	if err != nil || !got.IsRead {
		t.Errorf("GetTrackedEmail = (%+v, %v)", got, err)
	}
}
