package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/freshcart/internal/models"
)

const telegramAPI = "https://api.telegram.org"

// TelegramService sends admin alerts to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	client      *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("telegram bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "telegram request build")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "telegram send")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats an amount with thousand separators and two decimals.
func FormatPrice(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteString("-")
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	result.WriteString(".")
	result.WriteString(frac)
	return result.String()
}

// NotifyNewOrder sends the order summary to the admin chat.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, order models.Order, customer models.Customer) error {
	var items strings.Builder
	for i, item := range order.Items {
		items.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatPrice(item.Price),
			FormatPrice(item.LineTotal),
		))
	}

	name := customer.Name
	if name == "" {
		name = "-"
	}

	message := fmt.Sprintf(`<b>🛒 New order %s</b>
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Address:</b> %s
<b>Items:</b>
%s
<b>Items total:</b> %s
<b>Delivery:</b> %s
<b>Paid with points:</b> %d
<b>To pay:</b> %s`,
		order.OrderNumber,
		html.EscapeString(name),
		html.EscapeString(order.Phone),
		html.EscapeString(order.Address),
		items.String(),
		FormatPrice(order.ItemsTotal),
		FormatPrice(order.DeliveryFee),
		order.PayPoints,
		FormatPrice(order.Sum),
	)
	if order.Notes != "" {
		message += "\n<b>Notes:</b> " + html.EscapeString(order.Notes)
	}

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// NotifyOrderCancelled tells the admin chat an order was cancelled.
func (s *TelegramService) NotifyOrderCancelled(ctx context.Context, order models.Order, by string) error {
	message := fmt.Sprintf("<b>❌ Order %s cancelled</b> by %s\n<b>Sum:</b> %s",
		order.OrderNumber, by, FormatPrice(order.Sum))
	if order.CancelReason != "" {
		message += "\n<b>Reason:</b> " + html.EscapeString(order.CancelReason)
	}
	return s.SendToAdmin(ctx, message)
}
