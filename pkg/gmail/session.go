package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"mailtrack-backend/internal/tracking/domain"

	"github.com/emersion/go-message/mail"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
)

const user = "me"

var _ domain.MailSession = (*Session)(nil)

// Session is a Gmail client bound to one user's tokens.
type Session struct {
	service *Service
	gmail   *gmail.Service
	tokens  *recordingTokenSource
	breaker *gobreaker.CircuitBreaker
}

// recordingTokenSource remembers the last token that differs from the one
// the session started with.
type recordingTokenSource struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	current   *oauth2.Token
	refreshed *oauth2.Token
}

func (s *recordingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.AccessToken != t.AccessToken {
		s.current = t
		s.refreshed = t
	}
	return t, nil
}

// RefreshedToken returns the refreshed token, or nil if no refresh happened.
func (s *Session) RefreshedToken() *domain.TokenSet {
	s.tokens.mu.Lock()
	defer s.tokens.mu.Unlock()
	if s.tokens.refreshed == nil {
		return nil
	}
	tokens := tokenSetFrom(s.tokens.refreshed)
	return &tokens
}

// ScanJobEmails searches the lookback window for job-related mail and fetches
// every hit. Messages that fail to fetch or parse are logged and skipped.
func (s *Session) ScanJobEmails(ctx context.Context) ([]domain.InboundMessage, error) {
	since := s.service.now().AddDate(0, 0, -s.service.lookbackDays)
	query := BuildQuery(s.service.keywords, since)

	list, err := execute(s.breaker, func() (*gmail.ListMessagesResponse, error) {
		return s.gmail.Users.Messages.List(user).Q(query).MaxResults(s.service.maxResults).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to search messages: %w", err)
	}

	messages := make([]domain.InboundMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := s.fetch(ctx, ref.Id)
		if err != nil {
			s.service.logger.Warn("skipping message", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func (s *Session) fetch(ctx context.Context, id string) (*domain.InboundMessage, error) {
	msg, err := execute(s.breaker, func() (*gmail.Message, error) {
		return s.gmail.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message: %w", err)
	}
	return parseMessage(msg)
}

func parseMessage(msg *gmail.Message) (*domain.InboundMessage, error) {
	if msg.Payload == nil {
		return nil, errors.New("message has no payload")
	}

	fields := make(map[string][]string, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		fields[h.Name] = append(fields[h.Name], h.Value)
	}
	header := mail.HeaderFromMap(fields)

	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	from, err := header.Text("From")
	if err != nil {
		from = header.Get("From")
	}

	body, err := getEmailBody(msg.Payload)
	if err != nil {
		return nil, err
	}

	return &domain.InboundMessage{
		ID:      msg.Id,
		Subject: subject,
		From:    from,
		Date:    receivedAt(&header, msg.InternalDate),
		Snippet: html.UnescapeString(msg.Snippet),
		Body:    body,
	}, nil
}

// receivedAt prefers the Date header and falls back to Gmail's internal date.
func receivedAt(header *mail.Header, internalDate int64) time.Time {
	if date, err := header.Date(); err == nil && !date.IsZero() {
		return date.UTC()
	}
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	return time.Time{}
}

// getEmailBody returns the top-level body, or the first text/plain part
// found walking the MIME tree.
func getEmailBody(payload *gmail.MessagePart) (string, error) {
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBody(payload.Body.Data)
	}

	var find func(parts []*gmail.MessagePart) *gmail.MessagePart
	find = func(parts []*gmail.MessagePart) *gmail.MessagePart {
		for _, part := range parts {
			if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				return part
			}
			if found := find(part.Parts); found != nil {
				return found
			}
		}
		return nil
	}

	if part := find(payload.Parts); part != nil {
		return decodeBody(part.Body.Data)
	}
	return "", nil
}

// decodeBody accepts Gmail's base64url data with or without padding.
func decodeBody(data string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", fmt.Errorf("decode body: %w", err)
		}
	}
	return string(raw), nil
}
