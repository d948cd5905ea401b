package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// SMSConfig holds gateway credentials.
type SMSConfig struct {
	BaseURL  string
	Username string
	Password string
	Enabled  bool
}

// SMSService sends text messages through a token-authenticated HTTP gateway.
// When disabled, messages are only logged.
type SMSService struct {
	cfg    SMSConfig
	client *http.Client
	log    *zap.Logger

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewSMSService constructs SMSService.
func NewSMSService(cfg SMSConfig, log *zap.Logger) *SMSService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SMSService{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

type smsAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (s *SMSService) getToken(ctx context.Context, force bool) (string, error) {
	if !force {
		s.mu.RLock()
		if s.token != "" && time.Now().Before(s.tokenExpiry) {
			t := s.token
			s.mu.RUnlock()
			return t, nil
		}
		s.mu.RUnlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if !force && s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "sms auth request build")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sms auth request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("sms auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp smsAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", errors.Wrap(err, "sms auth unmarshal")
	}
	if authResp.Token == "" {
		return "", errors.New("sms auth: empty token")
	}

	s.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		s.tokenExpiry = time.Now().Add(55 * time.Minute)
	}

	return s.token, nil
}

func (s *SMSService) post(ctx context.Context, path string, body []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "sms request build")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "sms request")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

// Send delivers message to phone, refreshing the gateway token once on 401.
func (s *SMSService) Send(ctx context.Context, phone, message string) error {
	if !s.cfg.Enabled {
		s.log.Info("sms disabled, message not sent", zap.String("phone", phone))
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
	})
	if err != nil {
		return errors.Wrap(err, "sms marshal")
	}

	token, err := s.getToken(ctx, false)
	if err != nil {
		return err
	}

	status, body, err := s.post(ctx, "sms/send", payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		token, err = s.getToken(ctx, true)
		if err != nil {
			return err
		}
		status, body, err = s.post(ctx, "sms/send", payload, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return errors.Errorf("sms send: status %d, body: %s", status, string(body))
	}
	return nil
}
