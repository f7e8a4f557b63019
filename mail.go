package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-errors"
)

// TokenLinkType selects the query parameter a single-purpose token is
// embedded under.
type TokenLinkType string

const (
	TokenLinkForgot  TokenLinkType = "forgot"
	TokenLinkConfirm TokenLinkType = "confirm"
)

// MailService validates caller supplied return URLs and hands the rendered
// token links to the transport. The URL is attacker controlled input: it must
// be https (unless disabled) and its host must be on the allow list, or the
// token would be exfiltrated to an arbitrary destination.
type MailService struct {
	httpsOnly      bool
	allowedDomains []string
	transport      MailTransport
	logger         Logger
}

// NewMailService builds the service from configuration.
func NewMailService(cfg *Config, transport MailTransport) *MailService {
	httpsOnly := true
	var domains []string
	if cfg != nil {
		httpsOnly = cfg.HTTPSOnly
		domains = cfg.AllowedDomains
	}

	return &MailService{
		httpsOnly:      httpsOnly,
		allowedDomains: domains,
		transport:      transport,
		logger:         defLogger{},
	}
}

func (s *MailService) WithLogger(logger Logger) *MailService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// SendForgotPasswordMail validates the return URL, embeds the forgot token
// and delivers the message.
func (s *MailService) SendForgotPasswordMail(ctx context.Context, email, rawURL, forgotToken string) error {
	link, err := s.TokenLink(rawURL, TokenLinkForgot, forgotToken)
	if err != nil {
		return err
	}
	return s.transport.SendForgotPasswordEmail(ctx, email, link)
}

// SendConfirmEmailMail validates the return URL, embeds the confirm token
// and delivers the message.
func (s *MailService) SendConfirmEmailMail(ctx context.Context, email, rawURL, confirmToken string) error {
	link, err := s.TokenLink(rawURL, TokenLinkConfirm, confirmToken)
	if err != nil {
		return err
	}
	return s.transport.SendConfirmEmailEmail(ctx, email, link)
}

// TokenLink parses and checks the return URL, then rebuilds it with the
// token appended as a query parameter. Path, existing query parameters and
// fragment survive intact; an empty path becomes "/".
func (s *MailService) TokenLink(rawURL string, kind TokenLinkType, token string) (string, error) {
	parsed, err := s.parseURL(rawURL)
	if err != nil {
		return "", err
	}
	return buildTokenURL(parsed, kind, token), nil
}

func (s *MailService) parseURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, errors.New("malformed return url", errors.CategoryBadInput).
			WithTextCode("MalformedUrl").
			WithMetadata(map[string]any{"url": rawURL})
	}

	if s.httpsOnly && parsed.Scheme != "https" {
		s.logger.Warn("rejected non https return url: %s", rawURL)
		return nil, ErrNonSecureURL
	}

	host := parsed.Hostname()
	allowed := false
	for _, domain := range s.allowedDomains {
		if strings.EqualFold(host, domain) {
			allowed = true
			break
		}
	}

	if !allowed {
		s.logger.Warn("rejected return url for unauthorized domain: %s", rawURL)
		return nil, ErrUnauthorizedDomain
	}

	return parsed, nil
}

func buildTokenURL(u *url.URL, kind TokenLinkType, token string) string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")

	if u.User != nil {
		sb.WriteString(u.User.String())
		sb.WriteString("@")
	}
	sb.WriteString(u.Host)

	if u.Path == "" {
		sb.WriteString("/")
	} else {
		sb.WriteString(u.EscapedPath())
	}

	sb.WriteString("?")
	if u.RawQuery != "" {
		sb.WriteString(u.RawQuery)
		sb.WriteString("&")
	}
	sb.WriteString(string(kind))
	sb.WriteString("=")
	sb.WriteString(url.QueryEscape(token))

	if u.Fragment != "" {
		sb.WriteString("#")
		sb.WriteString(u.Fragment)
	}

	return sb.String()
}

// LoggingMailTransport is the default transport: it logs instead of sending.
// Deployments plug a real provider behind MailTransport.
type LoggingMailTransport struct {
	logger Logger
}

func NewLoggingMailTransport(logger Logger) *LoggingMailTransport {
	if logger == nil {
		logger = defLogger{}
	}
	return &LoggingMailTransport{logger: logger}
}

func (t *LoggingMailTransport) SendForgotPasswordEmail(ctx context.Context, email, link string) error {
	t.logger.Info("forgot password email for %s: %s", email, link)
	return nil
}

func (t *LoggingMailTransport) SendConfirmEmailEmail(ctx context.Context, email, link string) error {
	t.logger.Info("confirm email for %s: %s", email, link)
	return nil
}

var _ MailTransport = (*LoggingMailTransport)(nil)
