package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
)

const Channel = "whatsapp"

type Gateway struct {
	client     *whatsmeow.Client
	logger     *slog.Logger
	dispatcher core.Dispatcher
	qrCancel   context.CancelFunc

	mu     sync.RWMutex
	runCtx context.Context
}

func New(cfg config.WhatsAppConfig, dispatcher core.Dispatcher, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	container, err := sqlstore.New(context.Background(), "sqlite3", cfg.SessionDSN, waLog.Stdout("WhatsAppDB", "WARN", false))
	if err != nil {
		return nil, fmt.Errorf("create whatsapp sql store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get whatsapp device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("WhatsApp", "WARN", false))
	gateway := &Gateway{
		client:     client,
		logger:     logger,
		dispatcher: dispatcher,
		runCtx:     context.Background(),
	}
	client.AddEventHandler(gateway.handleEvent)

	return gateway, nil
}

func (g *Gateway) Channel() string { return Channel }

func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	g.runCtx = ctx
	g.mu.Unlock()

	if g.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		g.qrCancel = cancel

		qrChannel, err := g.client.GetQRChannel(qrCtx)
		if err != nil {
			return fmt.Errorf("init whatsapp qr channel: %w", err)
		}
		go g.consumeQR(qrChannel)
		g.logger.Info("whatsapp requires pairing; QR printed to terminal")
	} else {
		g.logger.Info("whatsapp restored previous session", "jid", g.client.Store.ID.String())
	}

	if err := g.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	g.logger.Info("whatsapp gateway started")

	<-ctx.Done()
	if g.qrCancel != nil {
		g.qrCancel()
	}
	g.client.Disconnect()
	g.logger.Info("whatsapp gateway stopped")
	return nil
}

func (g *Gateway) Emit(ctx context.Context, msg core.Message, text string) error {
	return g.send(ctx, msg, text)
}

func (g *Gateway) EmitGroup(ctx context.Context, msg core.Message, text string) error {
	return g.send(ctx, msg, text)
}

func (g *Gateway) send(ctx context.Context, msg core.Message, text string) error {
	chat, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("whatsapp chat %q: %w", msg.ChatID, err)
	}
	if _, err := g.client.SendMessage(ctx, chat, &waProto.Message{
		Conversation: proto.String(text),
	}); err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", chat.String(), err)
	}
	return nil
}

func (g *Gateway) consumeQR(qrChannel <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChannel {
		switch evt.Event {
		case "code":
			fmt.Fprintln(os.Stdout, "Scan this WhatsApp QR code from Linked Devices:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		default:
			g.logger.Info("whatsapp qr event", "event", evt.Event)
		}
	}
}

func (g *Gateway) handleEvent(rawEvent interface{}) {
	event, ok := rawEvent.(*events.Message)
	if !ok {
		return
	}
	msg, ok := toMessage(event)
	if !ok {
		return
	}

	g.mu.RLock()
	ctx := g.runCtx
	g.mu.RUnlock()

	if err := g.dispatcher.Dispatch(ctx, msg); err != nil {
		g.logger.Error("whatsapp dispatch error", "error", err, "chat", msg.ChatID)
	}
}

// toMessage converts an incoming text message. Direct chats are always
// addressed to the bot.
func toMessage(event *events.Message) (core.Message, bool) {
	if event == nil || event.Info.IsFromMe {
		return core.Message{}, false
	}
	text := extractText(event.Message)
	if text == "" {
		return core.Message{}, false
	}

	msg := core.Message{
		Channel:    Channel,
		SenderID:   event.Info.Sender.ToNonAD().String(),
		SenderName: strings.TrimSpace(event.Info.PushName),
		ChatID:     event.Info.Chat.String(),
		Text:       text,
		Timestamp:  event.Info.Timestamp,
	}
	if event.Info.IsGroup {
		msg.GroupID = msg.ChatID
	} else {
		msg.Addressed = true
	}
	return msg, true
}

func extractText(message *waProto.Message) string {
	if message == nil {
		return ""
	}
	if text := strings.TrimSpace(message.GetConversation()); text != "" {
		return text
	}
	if ext := message.GetExtendedTextMessage(); ext != nil {
		if text := strings.TrimSpace(ext.GetText()); text != "" {
			return text
		}
	}
	return ""
}
