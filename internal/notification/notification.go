package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyTradeOpen  NotificationType = "trade_open"
	NotifyTradeClose NotificationType = "trade_close"
	NotifyDrawdown   NotificationType = "drawdown"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnLPercent *float64
	Timestamp  time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider
type Manager struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		timeout:   10 * time.Second,
		logger:    logger.With().Str("component", "Notifications").Logger(),
	}
}

// NewManagerFromConfig wires the providers enabled in cfg
func NewManagerFromConfig(cfg config.NotificationConfig, logger zerolog.Logger) *Manager {
	m := NewManager(logger)
	if !cfg.Enabled {
		return m
	}
	m.AddNotifier(NewTelegramNotifier(TelegramConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		Enabled:  cfg.Telegram.Enabled,
	}))
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{
		WebhookURL: cfg.Discord.WebhookURL,
		Enabled:    cfg.Discord.Enabled,
	}))
	return m
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether any provider would deliver
func (m *Manager) Enabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, notification); err != nil {
			m.logger.Warn().Err(err).Str("provider", n.Name()).Msg("Notification failed")
			lastErr = err
		}
	}
	return lastErr
}

// Subscribe forwards trades, drawdown trips and errors from the bus
func (m *Manager) Subscribe(bus *events.EventBus) {
	for _, t := range []events.EventType{events.EventTradeExecuted, events.EventDrawdownTripped, events.EventError} {
		bus.Subscribe(t, m.Handle)
	}
}

// Handle converts an event to a notification and sends it
func (m *Manager) Handle(event events.Event) {
	n := FromEvent(event)
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_ = m.Send(ctx, n)
}

// FromEvent builds the notification for an event, or nil if the event is
// not worth notifying
func FromEvent(event events.Event) *Notification {
	switch event.Type {
	case events.EventTradeExecuted:
		t := event.Trade
		if t == nil {
			return nil
		}
		if t.Side == "BUY" {
			return &Notification{
				Type:      NotifyTradeOpen,
				Title:     fmt.Sprintf("📈 %s %s", t.Reason, t.Symbol),
				Message:   fmt.Sprintf("BUY %.8f %s @ %.6f\nCash: $%.2f", t.Quantity, t.Symbol, t.Price, t.ResultingCash),
				Symbol:    t.Symbol,
				Price:     t.Price,
				Timestamp: t.Timestamp,
			}
		}
		pnl := 0.0
		if t.PnLPct != nil {
			pnl = *t.PnLPct
		}
		emoji := "✅"
		if pnl < 0 {
			emoji = "❌"
		}
		return &Notification{
			Type:       NotifyTradeClose,
			Title:      fmt.Sprintf("%s %s %s", emoji, t.Reason, t.Symbol),
			Message:    fmt.Sprintf("SELL %.8f %s @ %.6f\nP&L: %.2f%%\nCash: $%.2f", t.Quantity, t.Symbol, t.Price, pnl, t.ResultingCash),
			Symbol:     t.Symbol,
			Price:      t.Price,
			PnLPercent: t.PnLPct,
			Timestamp:  t.Timestamp,
		}
	case events.EventDrawdownTripped:
		reason, _ := event.Data["reason"].(string)
		return &Notification{
			Type:      NotifyDrawdown,
			Title:     "🛑 Drawdown guard tripped",
			Message:   reason + "\nNew entries are halted until reset.",
			Timestamp: event.Timestamp,
		}
	case events.EventError:
		source, _ := event.Data["source"].(string)
		msg, _ := event.Data["message"].(string)
		return &Notification{
			Type:      NotifyError,
			Title:     fmt.Sprintf("⚠️ %s", source),
			Message:   msg,
			Timestamp: event.Timestamp,
		}
	}
	return nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	BaseURL  string // defaults to the public Bot API
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	base := config.BaseURL
	if base == "" {
		base = telegramAPI
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		baseURL:  base,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(ctx context.Context, notification *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message),
		"parse_mode": "Markdown",
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	status, err := postJSON(ctx, t.client, url, payload)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", status)
	}
	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(ctx context.Context, notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00 // Green
	switch {
	case notification.Type == NotifyError, notification.Type == NotifyDrawdown:
		color = 0xFF0000
	case notification.PnLPercent != nil && *notification.PnLPercent < 0:
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.6f", notification.Price), "inline": true,
			})
		}
		if notification.PnLPercent != nil {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.2f%%", *notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	status, err := postJSON(ctx, d.client, d.webhookURL, payload)
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", status)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
