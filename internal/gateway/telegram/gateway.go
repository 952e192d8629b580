package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
)

const Channel = "telegram"

type Gateway struct {
	bot        *bot.Bot
	logger     *slog.Logger
	dispatcher core.Dispatcher
	allowList  map[int64]struct{}
}

func New(cfg config.TelegramConfig, dispatcher core.Dispatcher, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required when telegram.enabled=true")
	}

	gateway := &Gateway{
		logger:     logger,
		dispatcher: dispatcher,
		allowList:  make(map[int64]struct{}, len(cfg.AllowList)),
	}
	for _, id := range cfg.AllowList {
		gateway.allowList[id] = struct{}{}
	}

	telegramBot, err := bot.New(cfg.Token, bot.WithDefaultHandler(gateway.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	gateway.bot = telegramBot

	return gateway, nil
}

func (g *Gateway) Channel() string { return Channel }

func (g *Gateway) Start(ctx context.Context) error {
	g.logger.Info("telegram gateway started")
	g.bot.Start(ctx)
	g.logger.Info("telegram gateway stopped")
	return nil
}

func (g *Gateway) Emit(ctx context.Context, msg core.Message, text string) error {
	return g.send(ctx, msg, text)
}

func (g *Gateway) EmitGroup(ctx context.Context, msg core.Message, text string) error {
	return g.send(ctx, msg, text)
}

func (g *Gateway) send(ctx context.Context, msg core.Message, text string) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.ChatID, err)
	}
	if _, err := g.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

func (g *Gateway) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg, ok := toMessage(update)
	if !ok {
		return
	}

	userID := update.Message.From.ID
	if !g.isAllowed(userID) {
		g.logger.Warn("telegram user rejected by allow list", "user_id", userID)
		return
	}

	if err := g.dispatcher.Dispatch(ctx, msg); err != nil {
		g.logger.Error("telegram dispatch error", "error", err, "user_id", userID)
	}
}

// toMessage converts a text update. Private chats are always addressed to
// the bot; group chats are addressed only by name or command prefix.
func toMessage(update *models.Update) (core.Message, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return core.Message{}, false
	}
	m := update.Message
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return core.Message{}, false
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	msg := core.Message{
		Channel:    Channel,
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		SenderName: displayName(m.From),
		ChatID:     chatID,
		Text:       text,
		Timestamp:  time.Unix(int64(m.Date), 0),
		Metadata:   map[string]string{"chat_type": string(m.Chat.Type)},
	}
	switch string(m.Chat.Type) {
	case "group", "supergroup":
		msg.GroupID = chatID
	default:
		msg.Addressed = true
	}
	return msg, true
}

func displayName(user *models.User) string {
	if name := strings.TrimSpace(user.Username); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
}

// isAllowed reports whether userID may talk to the bot. An empty allow
// list admits everyone.
func (g *Gateway) isAllowed(userID int64) bool {
	if len(g.allowList) == 0 {
		return true
	}
	_, ok := g.allowList[userID]
	return ok
}
