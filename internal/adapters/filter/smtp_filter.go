package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/zap"
)

// SMTPFilter is a content filter relay: it accepts mail over SMTP, adds
// label headers and forwards the message to the next hop
type SMTPFilter struct {
	labeler        ports.Labeler
	thresholds     ports.ThresholdReader
	logger         *zap.Logger
	listenAddr     string
	headers        HeaderNames
	forwardAddr    string
	forwardPort    int
	forwardEnabled bool

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
}

// SMTPConfig holds the relay settings
type SMTPConfig struct {
	ListenAddress  string
	Headers        HeaderNames
	ForwardAddress string
	ForwardPort    int
	ForwardEnabled bool
}

// NewSMTPFilter creates a new SMTP labeling relay
func NewSMTPFilter(labeler ports.Labeler, thresholds ports.ThresholdReader, logger *zap.Logger, cfg SMTPConfig) *SMTPFilter {
	return &SMTPFilter{
		labeler:        labeler,
		thresholds:     thresholds,
		logger:         logger,
		listenAddr:     cfg.ListenAddress,
		headers:        cfg.Headers,
		forwardAddr:    cfg.ForwardAddress,
		forwardPort:    cfg.ForwardPort,
		forwardEnabled: cfg.ForwardEnabled,
	}
}

// Start binds the listen address and serves SMTP in the background
func (f *SMTPFilter) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.server != nil {
		return nil
	}

	server := smtp.NewServer(&smtpBackend{filter: f})
	server.Addr = f.listenAddr
	server.Domain = "localhost"
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = 30 * 1024 * 1024
	server.MaxRecipients = 50

	l, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}
	f.server = server
	f.listener = l

	f.logger.Info("SMTP filter starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start
func (f *SMTPFilter) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Stop stops the SMTP server
func (f *SMTPFilter) Stop() error {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.listener = nil
	f.mu.Unlock()

	if server != nil {
		return server.Close()
	}
	return nil
}

// ProcessEmail predicts a label for an email and decides the action
func (f *SMTPFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.LabelDecision, error) {
	return ports.Decide(ctx, f.labeler, f.thresholds, email, f.logger), nil
}

// forward relays the annotated message to the next hop
func (f *SMTPFilter) forward(sender string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(f.forwardAddr, fmt.Sprint(f.forwardPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := 0
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// handle labels one received message and relays it
func (f *SMTPFilter) handle(sender string, recipients []string, raw []byte) error {
	email, err := parseEmail(raw, sender, recipients)
	if err != nil {
		f.logger.Error("Failed to parse email message", zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	decision, _ := f.ProcessEmail(ctx, email)
	annotated := annotate(raw, f.headers, decision)

	if !f.forwardEnabled {
		f.logger.Warn("Forwarding disabled, labeled message is dropped",
			zap.String("sender", email.From))
	} else if err := f.forward(sender, recipients, annotated); err != nil {
		f.logger.Error("Failed to forward labeled email",
			zap.String("sender", email.From),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 1},
			Message:      "Next hop unavailable, try again later",
		}
	}

	f.logger.Info("Labeled email",
		zap.String("sender", email.From),
		zap.String("label", decision.Label),
		zap.Float64("confidence", decision.Confidence),
		zap.String("action", decision.Action))
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.handle(s.sender, s.recipients, raw)
}

func (s *smtpSession) Logout() error {
	return nil
}
