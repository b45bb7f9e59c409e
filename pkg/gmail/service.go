package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/pkg/logger"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// DefaultJobKeywords are OR-ed into the mailbox search.
var DefaultJobKeywords = []string{
	"application received",
	"application submitted",
	"thank you for applying",
	"we received your application",
	"application status",
	"interview invitation",
	"interview request",
	"schedule an interview",
	"phone screen",
	"technical interview",
	"offer letter",
	"job offer",
	"congratulations",
	"we are pleased",
	"unfortunately",
	"we regret",
	"position has been filled",
	"not moving forward",
	"other candidates",
	"next steps",
	"background check",
	"onboarding",
}

var scopes = []string{
	gmail.GmailReadonlyScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
}

// Config holds OAuth client credentials and scan limits.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	LookbackDays int
	MaxResults   int64
	Keywords     []string
}

// Service builds isolated per-user Gmail clients. It holds no user state.
type Service struct {
	oauth        *oauth2.Config
	lookbackDays int
	maxResults   int64
	keywords     []string
	endpoint     string
	httpClient   *http.Client
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Service)

// WithEndpoint points the Gmail and userinfo APIs at a different base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Service) { s.endpoint = endpoint }
}

// WithOAuthEndpoint overrides the Google OAuth endpoint.
func WithOAuthEndpoint(endpoint oauth2.Endpoint) Option {
	return func(s *Service) { s.oauth.Endpoint = endpoint }
}

// WithHTTPClient sets the transport used for token and API requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, log *zap.Logger, opts ...Option) *Service {
	log = logger.OrNop(log).Named("gmail")

	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		lookbackDays: cfg.LookbackDays,
		maxResults:   cfg.MaxResults,
		keywords:     cfg.Keywords,
		now:          time.Now,
		logger:       log,
	}
	if s.lookbackDays <= 0 {
		s.lookbackDays = 7
	}
	if s.maxResults <= 0 {
		s.maxResults = 50
	}
	if len(s.keywords) == 0 {
		s.keywords = DefaultJobKeywords
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthCodeURL returns the consent URL. Offline access and forced consent make
// Google issue a refresh token on every grant, including re-authorization.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair.
func (s *Service) Exchange(ctx context.Context, code string) (*domain.TokenSet, error) {
	token, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	tokens := tokenSetFrom(token)
	return &tokens, nil
}

// MailboxAddress resolves the address of the account the tokens belong to.
func (s *Service) MailboxAddress(ctx context.Context, tokens domain.TokenSet) (string, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken, TokenType: "Bearer"})
	svc, err := oauth2api.NewService(ctx, s.clientOptions(ctx, src)...)
	if err != nil {
		return "", fmt.Errorf("unable to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve user info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("user info carries no email address")
	}
	return info.Email, nil
}

// NewSession builds a fresh Gmail client for one user's stored tokens.
// A stored token without expiry is treated as expired when it can be refreshed.
func (s *Service) NewSession(ctx context.Context, tokens domain.TokenSet) (domain.MailSession, error) {
	token := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
	}
	switch {
	case tokens.Expiry != nil:
		token.Expiry = *tokens.Expiry
	case tokens.RefreshToken != "":
		token.Expiry = s.now()
	}

	octx := s.oauthContext(ctx)
	recorder := &recordingTokenSource{
		src:     s.oauth.TokenSource(octx, token),
		current: token,
	}

	srv, err := gmail.NewService(ctx, s.clientOptions(octx, recorder)...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return &Session{
		service: s,
		gmail:   srv,
		tokens:  recorder,
		breaker: s.newBreaker(),
	}, nil
}

// newBreaker returns a breaker for a single session. Provider faults seen by
// one user never open the circuit for another.
func (s *Service) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: isHealthyResponse,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func (s *Service) clientOptions(ctx context.Context, src oauth2.TokenSource) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	return opts
}

// oauthContext carries the configured transport into token requests.
func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// BuildQuery ORs the quoted keywords and restricts results to mail after since.
func BuildQuery(keywords []string, since time.Time) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, `"`+strings.ReplaceAll(k, `"`, "")+`"`)
	}
	return fmt.Sprintf("(%s) after:%s", strings.Join(quoted, " OR "), since.Format("2006/01/02"))
}

// isHealthyResponse keeps client-side API errors from tripping the breaker.
// Only rate limiting, server errors and transport failures count.
func isHealthyResponse(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func tokenSetFrom(t *oauth2.Token) domain.TokenSet {
	tokens := domain.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if !t.Expiry.IsZero() {
		expiry := t.Expiry
		tokens.Expiry = &expiry
	}
	return tokens
}
