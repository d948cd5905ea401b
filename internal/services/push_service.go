package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/metrics"
	"github.com/example/freshcart/internal/models"
)

const (
	// Expo accepts at most 100 messages per request.
	expoBatchSize   = 100
	expoConcurrency = 4
)

// ValidPushToken reports whether token is an Expo push token.
func ValidPushToken(token string) bool {
	if !strings.HasSuffix(token, "]") || strings.HasSuffix(token, "[]") {
		return false
	}
	_, err := expo.NewExponentPushToken(token)
	return err == nil
}

// PushMessage is one outgoing push, addressed to a single device.
type PushMessage struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
}

func (m PushMessage) toExpo() expo.PushMessage {
	return expo.PushMessage{
		To:    []expo.ExponentPushToken{expo.ExponentPushToken(m.To)},
		Title: m.Title,
		Body:  m.Body,
		Data:  m.Data,
		Sound: "default",
	}
}

// PushService delivers push notifications through the Expo push API.
type PushService struct {
	db     *gorm.DB
	client *expo.PushClient
	log    *zap.Logger
}

// NewPushService constructs PushService. An empty host selects the public
// Expo endpoint.
func NewPushService(db *gorm.DB, host, accessToken string, log *zap.Logger) *PushService {
	return &PushService{
		db: db,
		client: expo.NewPushClient(&expo.ClientConfig{
			Host:        host,
			AccessToken: accessToken,
			HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		}),
		log: log,
	}
}

// SendResult counts per-message outcomes.
type SendResult struct {
	Delivered int
	Failed    int
}

// Send splits msgs into batches and posts them concurrently. A failed batch
// counts all of its messages as failed; it does not abort other batches.
func (s *PushService) Send(ctx context.Context, msgs []PushMessage) SendResult {
	var delivered, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expoConcurrency)

	for start := 0; start < len(msgs); start += expoBatchSize {
		end := min(start+expoBatchSize, len(msgs))
		batch := msgs[start:end]

		g.Go(func() error {
			ok, bad, err := s.sendBatch(gctx, batch)
			if err != nil {
				s.log.Warn("expo batch failed", zap.Int("size", len(batch)), zap.Error(err))
				failed.Add(int64(len(batch)))
				return nil
			}
			delivered.Add(int64(ok))
			failed.Add(int64(bad))
			return nil
		})
	}
	_ = g.Wait()

	res := SendResult{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	metrics.PushMessages.WithLabelValues("ok").Add(float64(res.Delivered))
	metrics.PushMessages.WithLabelValues("error").Add(float64(res.Failed))
	return res
}

func (s *PushService) sendBatch(ctx context.Context, batch []PushMessage) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	out := make([]expo.PushMessage, len(batch))
	for i, m := range batch {
		out[i] = m.toExpo()
	}

	responses, err := s.client.PublishMultiple(out)
	if err != nil {
		return 0, 0, errors.Wrap(err, "publish")
	}

	var ok, bad int
	var stale []string
	for i := range responses {
		err := responses[i].ValidateResponse()
		if err == nil {
			ok++
			continue
		}
		bad++

		var notRegistered *expo.DeviceNotRegisteredError
		if errors.As(err, &notRegistered) {
			for _, token := range responses[i].PushMessage.To {
				stale = append(stale, string(token))
			}
		}
	}

	if len(stale) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Customer{}).
			Where("push_token IN ?", stale).
			Update("push_token", "").Error; err != nil {
			s.log.Warn("clear stale push tokens", zap.Error(err))
		}
	}

	return ok, bad, nil
}

// BroadcastInput is an admin notification to all customers.
type BroadcastInput struct {
	Title string            `json:"title" validate:"required,max=120"`
	Body  string            `json:"body" validate:"required,max=1000"`
	Data  map[string]string `json:"data"`
}

// Broadcast stores a PushNotification and sends it to every reachable customer.
func (s *PushService) Broadcast(ctx context.Context, in BroadcastInput) (*models.PushNotification, error) {
	data, err := json.Marshal(in.Data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal data")
	}

	record := models.PushNotification{
		Title:  in.Title,
		Body:   in.Body,
		Data:   string(data),
		Status: models.PushPending,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, errors.Wrap(err, "create notification")
	}

	var tokens []string
	if err := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("push_token <> '' AND is_blocked = ?", false).
		Distinct().
		Pluck("push_token", &tokens).Error; err != nil {
		return nil, errors.Wrap(err, "load push tokens")
	}

	msgs := make([]PushMessage, 0, len(tokens))
	for _, token := range tokens {
		msgs = append(msgs, PushMessage{To: token, Title: in.Title, Body: in.Body, Data: in.Data})
	}

	res := s.Send(ctx, msgs)
	now := time.Now()

	record.Recipients = len(msgs)
	record.Delivered = res.Delivered
	record.Failed = res.Failed
	record.SentAt = &now
	record.Status = models.PushSent
	if record.Recipients > 0 && record.Delivered == 0 {
		record.Status = models.PushFailed
	}

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, errors.Wrap(err, "save notification")
	}

	s.log.Info("push broadcast",
		zap.Stringer("notification", record.ID),
		zap.Int("recipients", record.Recipients),
		zap.Int("delivered", record.Delivered),
		zap.Int("failed", record.Failed),
	)
	return &record, nil
}

// NotifyCustomer sends a single message to a customer's registered device.
func (s *PushService) NotifyCustomer(ctx context.Context, customerID uuid.UUID, title, body string) error {
	var customer models.Customer
	if err := s.db.WithContext(ctx).Select("id", "push_token", "is_blocked").
		First(&customer, "id = ?", customerID).Error; err != nil {
		return errors.Wrap(err, "load customer")
	}
	if customer.PushToken == "" || customer.IsBlocked {
		return nil
	}

	res := s.Send(ctx, []PushMessage{{To: customer.PushToken, Title: title, Body: body}})
	if res.Delivered == 0 {
		return errors.New("push not delivered")
	}
	return nil
}

// RegisterToken stores a customer's Expo push token.
func (s *PushService) RegisterToken(ctx context.Context, customerID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token != "" && !ValidPushToken(token) {
		return ErrInvalidPushToken
	}

	res := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("push_token", token)
	if res.Error != nil {
		return errors.Wrap(res.Error, "save push token")
	}
	if res.RowsAffected == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
