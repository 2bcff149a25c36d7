// Package gmail adapts the Gmail API into the labeler's paginated message
// source.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const userLabelPrefix = "Label_"

const (
	defaultOpenTimeout = 60 * time.Second
	probeSlack         = 50 * time.Millisecond
	probeTimeout       = 30 * time.Second
)

// Source lists and fetches messages of one mailbox
type Source struct {
	svc         *gmail.Service
	user        string
	query       string
	cb          *gobreaker.CircuitBreaker
	openTimeout time.Duration
	logger      *zap.Logger

	labelsMu   sync.Mutex
	labels     map[string]string
	unresolved map[string]bool

	// reconnect handling, guarded by hooksMu
	hooksMu     sync.Mutex
	onReconnect func(ctx context.Context)
	probe       *time.Timer
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewService builds an authorized Gmail client from the OAuth client
// credentials and a previously saved token
func NewService(ctx context.Context, cfg config.GmailConfig) (*gmail.Service, error) {
	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gmail credentials: %w", err)
	}

	raw, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail token: %w", err)
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, fmt.Errorf("failed to parse Gmail token: %w", err)
	}

	client := oauthCfg.Client(ctx, token)
	client.Timeout = cfg.Timeout
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// NewSource wraps svc. Server errors trip a circuit breaker; client errors
// such as 404 do not. While the breaker is open the API is probed after each
// open interval so a restored connection is noticed without other traffic.
func NewSource(svc *gmail.Service, cfg config.GmailConfig, logger *zap.Logger) *Source {
	user := cfg.User
	if user == "" {
		user = "me"
	}
	maxFailures := uint32(5)
	if cfg.BreakerMaxFailures > 0 {
		maxFailures = uint32(cfg.BreakerMaxFailures)
	}

	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		svc:         svc,
		user:        user,
		query:       cfg.Query,
		openTimeout: openTimeout,
		logger:      logger,
		unresolved:  make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: s.stateChanged,
	})
	return s
}

// OnReconnect registers fn to run each time the breaker closes after having
// tripped. fn runs on its own goroutine with a context cancelled by Close.
func (s *Source) OnReconnect(fn func(ctx context.Context)) {
	s.hooksMu.Lock()
	s.onReconnect = fn
	s.hooksMu.Unlock()
}

// Close stops reconnect probes and cancels running reconnect callbacks
func (s *Source) Close() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.closed = true
	if s.probe != nil {
		s.probe.Stop()
		s.probe = nil
	}
	s.cancel()
}

// stateChanged runs with the breaker's lock held and must not call into it
func (s *Source) stateChanged(name string, from, to gobreaker.State) {
	s.logger.Warn("Circuit breaker state changed",
		zap.String("breaker", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	switch to {
	case gobreaker.StateOpen:
		s.scheduleProbe()
	case gobreaker.StateClosed:
		s.hooksMu.Lock()
		fn, closed := s.onReconnect, s.closed
		s.hooksMu.Unlock()
		if fn != nil && !closed {
			go fn(s.ctx)
		}
	}
}

func (s *Source) scheduleProbe() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	if s.closed {
		return
	}
	if s.probe != nil {
		s.probe.Stop()
	}
	s.probe = time.AfterFunc(s.openTimeout+probeSlack, s.probeAPI)
}

// probeAPI issues one cheap request through the breaker. Success closes it;
// failure reopens it, which schedules the next probe.
func (s *Source) probeAPI() {
	ctx, cancel := context.WithTimeout(s.ctx, probeTimeout)
	defer cancel()

	_, err := execute(s.cb, func() (*gmail.Profile, error) {
		return s.svc.Users.GetProfile(s.user).Context(ctx).Do()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.scheduleProbe()
	case err != nil:
		s.logger.Debug("Gmail API still unavailable", zap.Error(err))
	}
}

// List implements core.MessageSource
func (s *Source) List(ctx context.Context, pageToken string, pageSize int) (*core.MessagePage, error) {
	call := s.svc.Users.Messages.List(s.user).MaxResults(int64(pageSize))
	if s.query != "" {
		call = call.Q(s.query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := execute(s.cb, func() (*gmail.ListMessagesResponse, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &core.MessagePage{
		IDs:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// Detail implements core.MessageSource. A deleted message yields
// core.ErrMessageNotFound.
func (s *Source) Detail(ctx context.Context, id string) (*core.MessageDetail, error) {
	msg, err := execute(s.cb, func() (*gmail.Message, error) {
		return s.svc.Users.Messages.Get(s.user, id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
	})
	if err != nil {
		return nil, s.wrapError(err, "failed to get message "+id)
	}
	return s.toDetail(ctx, msg), nil
}

// ThreadDetail implements core.ThreadSource using the thread's first message
func (s *Source) ThreadDetail(ctx context.Context, threadID string) (*core.MessageDetail, error) {
	thread, err := execute(s.cb, func() (*gmail.Thread, error) {
		return s.svc.Users.Threads.Get(s.user, threadID).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
	})
	if err != nil {
		return nil, s.wrapError(err, "failed to get thread "+threadID)
	}
	if len(thread.Messages) == 0 {
		return nil, fmt.Errorf("thread %s has no messages: %w", threadID, core.ErrMessageNotFound)
	}
	return s.toDetail(ctx, thread.Messages[0]), nil
}

func (s *Source) toDetail(ctx context.Context, msg *gmail.Message) *core.MessageDetail {
	d := &core.MessageDetail{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				d.Sender = utils.SenderAddress(h.Value)
			case "subject":
				d.Subject = h.Value
			}
		}
	}
	var userLabels []string
	for _, labelID := range msg.LabelIds {
		if strings.HasPrefix(labelID, userLabelPrefix) {
			userLabels = append(userLabels, labelID)
		}
	}
	d.LabelHints = s.labelNames(ctx, userLabels)
	return d
}

// labelNames resolves user label ids to display names. An id missing from
// the cached names triggers at most one reload per call, since the label may
// have been created after the last load. Ids still unknown after a reload
// fall back to the id without its prefix and do not trigger further reloads.
func (s *Source) labelNames(ctx context.Context, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	s.labelsMu.Lock()
	defer s.labelsMu.Unlock()

	names := make([]string, 0, len(ids))
	reloaded, loaded := false, false
	for _, id := range ids {
		name := s.labels[id]
		if name == "" && !reloaded && !s.unresolved[id] {
			reloaded = true
			if err := s.loadLabelsLocked(ctx); err != nil {
				s.logger.Warn("Failed to list labels", zap.Error(err))
			} else {
				loaded = true
			}
			name = s.labels[id]
		}
		if name == "" {
			if loaded {
				s.unresolved[id] = true
			}
			name = strings.TrimPrefix(id, userLabelPrefix)
		}
		names = append(names, name)
	}
	return names
}

func (s *Source) loadLabelsLocked(ctx context.Context) error {
	resp, err := execute(s.cb, func() (*gmail.ListLabelsResponse, error) {
		return s.svc.Users.Labels.List(s.user).Context(ctx).Do()
	})
	if err != nil {
		return err
	}
	s.labels = make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		s.labels[l.Id] = l.Name
	}
	return nil
}

func (s *Source) wrapError(err error, msg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", msg, core.ErrMessageNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func isClientError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
}
