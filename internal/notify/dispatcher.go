package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"gopkg.in/gomail.v2"
)

// Supported providers
const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// Email is one outbound message
type Email struct {
	To      []string
	Subject string
	HTML    string
	From    string // optional, defaults to the configured sender
}

// Result is the outcome of a single send attempt. Send never returns an error;
// failures are reported here.
type Result struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Sender is implemented by Dispatcher and by test doubles
type Sender interface {
	Configured() bool
	Send(ctx context.Context, email Email) Result
}

// Dispatcher sends transactional HTML email through the configured provider
type Dispatcher struct {
	cfg        config.EmailConfig
	httpClient *http.Client
	dialer     *gomail.Dialer
	logger     logger.Logger
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// NewDispatcher creates a Dispatcher. It is usable even when unconfigured;
// Send then reports a failed result without contacting anything.
func NewDispatcher(cfg config.EmailConfig, logger logger.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}

	if cfg.Provider == ProviderSMTP {
		username := cfg.SMTPUsername
		if username == "" {
			username = cfg.From
		}
		d.dialer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, username, cfg.APIKey)
	}

	return d
}

// Configured reports whether a provider is selected and its key is present
func (d *Dispatcher) Configured() bool {
	return d.cfg.Enabled()
}

// Send makes exactly one delivery attempt
func (d *Dispatcher) Send(ctx context.Context, email Email) Result {
	if !d.Configured() {
		return Result{Error: "email is not configured"}
	}

	if len(email.To) == 0 {
		return Result{Error: "no recipients"}
	}

	if email.From == "" {
		email.From = d.cfg.From
	}

	var result Result

	switch d.cfg.Provider {
	case ProviderResend:
		result = d.sendHTTP(ctx, email)
	case ProviderSMTP:
		result = d.sendSMTP(ctx, email)
	default:
		result = Result{Error: fmt.Sprintf("unknown email provider %q", d.cfg.Provider)}
	}

	if result.Success {
		d.logger.Info("Email sent", "provider", d.cfg.Provider, "to", email.To, "subject", email.Subject)
	} else {
		d.logger.Warn("Email send failed", "provider", d.cfg.Provider, "to", email.To,
			"status", result.StatusCode, "error", result.Error)
	}

	return result
}

func (d *Dispatcher) sendHTTP(ctx context.Context, email Email) Result {
	body, err := json.Marshal(resendRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTML,
	})

	if err != nil {
		return Result{Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.APIURL, bytes.NewReader(body))

	if err != nil {
		return Result{Error: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)

	resp, err := d.httpClient.Do(req)

	if err != nil {
		return Result{Error: fmt.Sprintf("failed to make request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{StatusCode: resp.StatusCode, Error: string(bytes.TrimSpace(text))}
	}

	return Result{Success: true, StatusCode: resp.StatusCode}
}

// sendSMTP gives up waiting when ctx ends. gomail has no context support, so
// the abandoned dial finishes in the background.
func (d *Dispatcher) sendSMTP(ctx context.Context, email Email) Result {
	m := gomail.NewMessage()
	m.SetHeader("From", email.From)
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/html", email.HTML)

	done := make(chan error, 1)
	go func() {
		done <- d.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Result{Error: err.Error()}
		}
		return Result{Success: true}
	case <-ctx.Done():
		return Result{Error: fmt.Sprintf("smtp send abandoned: %v", ctx.Err())}
	}
}
