package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/collector"
	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport"
)

const (
	buttonRegister = "📝 Register account"
	buttonStart    = "🚀 Start collecting"
	buttonStop     = "⏹ Stop collecting"
	buttonStatus   = "📊 Account status"
)

// Bot is the manager-facing Telegram bot: account owners register their
// session, toggle collection and check status here, and completion notices
// are delivered through it.
type Bot struct {
	api      *tgbotapi.BotAPI
	storage  storage.Storage
	registry *collector.Registry
	logger   *zap.Logger

	mu sync.Mutex
	// awaitingSession marks owners who pressed Register and owe us a
	// session string with their next message.
	awaitingSession map[int64]bool
}

func New(token string, storage storage.Storage, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:             api,
		storage:         storage,
		logger:          logger,
		awaitingSession: make(map[int64]bool),
	}, nil
}

// AttachRegistry wires the collector in after construction; the registry
// needs the bot's notifier first.
func (b *Bot) AttachRegistry(registry *collector.Registry) {
	b.registry = registry
}

// Notifier adapts the bot into the collector's notification side-channel.
// Delivery failures are logged, never propagated.
func (b *Bot) Notifier() collector.Notifier {
	return collector.NotifierFunc(func(accountID int64, text string) {
		b.sendMessage(accountID, text)
	})
}

func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// ResumeActive restarts collection for every account that had auto-collect
// on when the service last stopped.
func (b *Bot) ResumeActive(ctx context.Context) {
	accounts, err := b.storage.ActiveAccounts(ctx)
	if err != nil {
		b.logger.Error("failed to list active accounts", zap.Error(err))
		return
	}

	for _, acc := range accounts {
		err := b.registry.StartCollection(ctx, transport.Credentials{
			AccountID: acc.ID,
			Session:   acc.SessionString,
		})
		if err != nil {
			b.logger.Error("failed to resume collection",
				zap.Error(err), zap.Int64("account_id", acc.ID))
			b.sendMessage(acc.ID, "⚠️ Could not resume automatic collection, please start it again.")
			continue
		}
		b.logger.Info("resumed collection", zap.Int64("account_id", acc.ID))
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	if message.Contact != nil {
		b.handleContact(ctx, message)
		return
	}
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	switch message.Text {
	case buttonRegister:
		b.handleRegister(ctx, message)
	case buttonStart:
		b.handleStartCollecting(ctx, message)
	case buttonStop:
		b.handleStopCollecting(ctx, message)
	case buttonStatus:
		b.handleStatus(ctx, message)
	default:
		b.mu.Lock()
		awaiting := b.awaitingSession[userID]
		b.mu.Unlock()
		if awaiting {
			b.handleSessionInput(ctx, message)
			return
		}
		b.reply(ctx, message.Chat.ID,userID, "Please use the buttons below.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleWelcome(ctx, message)
	case "help":
		b.handleHelp(ctx, message)
	case "status":
		b.handleStatus(ctx, message)
	case "notifications":
		b.handleNotifications(ctx, message)
	default:
		b.reply(ctx, message.Chat.ID,message.From.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleWelcome(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if err := b.storage.EnsureAccount(ctx, userID); err != nil {
		b.logger.Error("failed to ensure account", zap.Error(err), zap.Int64("account_id", userID))
	}

	welcome := `🎯 Welcome to the star collector!

I run automatic star-task collection on your account: joining the offered channels, confirming them and crediting the rewards while you sleep.

Register your account first, then press "` + buttonStart + `".`

	b.reply(ctx, message.Chat.ID,userID, welcome)
}

func (b *Bot) handleHelp(ctx context.Context, message *tgbotapi.Message) {
	help := `Available commands:
/start - Show the main menu
/help - Show this help message
/status - Show your account status
/notifications on|off - Toggle completion notifications

Use the keyboard buttons to register your account and to start or stop automatic collection.`

	b.reply(ctx, message.Chat.ID,message.From.ID, help)
}

func (b *Bot) handleRegister(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	if err := b.storage.EnsureAccount(ctx, userID); err != nil {
		b.logger.Error("failed to ensure account", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not prepare your account, please try again.")
		return
	}

	b.mu.Lock()
	b.awaitingSession[userID] = true
	b.mu.Unlock()

	b.reply(ctx, message.Chat.ID, userID,
		"🔐 Send the session string issued for your account.\n\n"+
			"It replaces any previously stored session. You can also share your contact to attach your phone number.")
}

// handleContact stores the phone number from a shared contact card.
func (b *Bot) handleContact(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	contact := message.Contact
	if contact.UserID != userID {
		b.reply(ctx, message.Chat.ID, userID, "Please share your own contact, not someone else's.")
		return
	}

	if err := b.storage.EnsureAccount(ctx, userID); err != nil {
		b.logger.Error("failed to ensure account", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not prepare your account, please try again.")
		return
	}
	if err := b.storage.SavePhone(ctx, userID, contact.PhoneNumber); err != nil {
		b.logger.Error("failed to save phone number", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not save your phone number, please try again.")
		return
	}
	b.reply(ctx, message.Chat.ID, userID, "📱 Phone number saved.")
}

func (b *Bot) handleSessionInput(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	sessionString := strings.TrimSpace(message.Text)
	if sessionString == "" {
		b.reply(ctx, message.Chat.ID,userID, "The session string cannot be empty, try again.")
		return
	}

	if err := b.storage.SaveSession(ctx, userID, sessionString); err != nil {
		b.logger.Error("failed to save session", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not save your session, please try again.")
		return
	}

	b.mu.Lock()
	delete(b.awaitingSession, userID)
	b.mu.Unlock()

	b.reply(ctx, message.Chat.ID,userID, "✅ Account registered! You can start automatic collection now.")
}

func (b *Bot) handleStartCollecting(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	acc, err := b.storage.GetAccount(ctx, userID)
	if err != nil {
		b.logger.Error("failed to get account", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not read your account, please try again.")
		return
	}
	if acc == nil || acc.SessionString == "" {
		b.reply(ctx, message.Chat.ID,userID, "❌ Register your account first!")
		return
	}

	err = b.registry.StartCollection(ctx, transport.Credentials{
		AccountID: userID,
		Session:   acc.SessionString,
	})
	switch {
	case errors.Is(err, collector.ErrAlreadyActive):
		b.reply(ctx, message.Chat.ID,userID, "🔄 Collection is already running for this account.")
		return
	case err != nil:
		b.logger.Error("failed to start collection", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not start collection. Check that your session is still valid.")
		return
	}

	if err := b.storage.SetAutoCollect(ctx, userID, true); err != nil {
		b.logger.Error("failed to persist auto-collect flag",
			zap.Error(err), zap.Int64("account_id", userID))
	}
	b.reply(ctx, message.Chat.ID,userID, "🚀 Automatic collection started!")
}

func (b *Bot) handleStopCollecting(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	err := b.registry.StopCollection(userID)
	if errors.Is(err, collector.ErrNotActive) {
		b.reply(ctx, message.Chat.ID,userID, "⏹ Nothing to stop, collection is not running.")
		return
	}
	if err != nil {
		b.logger.Error("failed to stop collection", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not stop collection, please try again.")
		return
	}

	if err := b.storage.SetAutoCollect(ctx, userID, false); err != nil {
		b.logger.Error("failed to persist auto-collect flag",
			zap.Error(err), zap.Int64("account_id", userID))
	}
	b.reply(ctx, message.Chat.ID,userID, "⏹ Automatic collection stopped.")
}

func (b *Bot) handleStatus(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	acc, err := b.storage.GetAccount(ctx, userID)
	if err != nil {
		b.logger.Error("failed to get account", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not read your account, please try again.")
		return
	}
	if acc == nil {
		b.reply(ctx, message.Chat.ID,userID, "❌ No account data found. Use /start first.")
		return
	}

	stats, err := b.storage.GetStats(ctx, userID)
	if err != nil {
		b.logger.Error("failed to get stats", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not read your statistics, please try again.")
		return
	}
	settings, err := b.storage.GetSettings(ctx, userID)
	if err != nil {
		b.logger.Error("failed to get settings", zap.Error(err), zap.Int64("account_id", userID))
	}

	registered := "no"
	if acc.SessionString != "" {
		registered = "yes"
	}
	state := "stopped"
	if b.registry.IsCollecting(userID) {
		state = fmt.Sprintf("active (%d tasks this run)", b.registry.TasksCompleted(userID))
	}
	notifications := "on"
	if settings != nil && !settings.Notifications {
		notifications = "off"
	}

	status := fmt.Sprintf(`📊 Account status

👤 ID: %d
✅ Registered: %s

⭐ Total stars: %.2f
📈 Total tasks: %d
📅 Tasks today: %d

🔄 Collection: %s
🔔 Notifications: %s`,
		userID, registered,
		stats.TotalStars, stats.TotalTasks, stats.TodayTasks,
		state, notifications)

	b.reply(ctx, message.Chat.ID,userID, status)
}

func (b *Bot) handleNotifications(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	arg := strings.ToLower(strings.TrimSpace(message.CommandArguments()))

	var enabled bool
	switch arg {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		b.reply(ctx, message.Chat.ID,userID, "Usage: /notifications on|off")
		return
	}

	if err := b.storage.SetNotifications(ctx, userID, enabled); err != nil {
		b.logger.Error("failed to set notifications", zap.Error(err), zap.Int64("account_id", userID))
		b.sendErrorMessage(message.Chat.ID, "Could not update notifications, please try again.")
		return
	}
	b.reply(ctx, message.Chat.ID,userID, "🔔 Notifications "+arg+".")
}

func (b *Bot) keyboard(ctx context.Context, userID int64) tgbotapi.ReplyKeyboardMarkup {
	acc, err := b.storage.GetAccount(ctx, userID)
	if err != nil {
		b.logger.Error("failed to get account for keyboard",
			zap.Error(err), zap.Int64("account_id", userID))
	}

	var rows [][]tgbotapi.KeyboardButton
	if acc == nil || acc.SessionString == "" {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonRegister)))
	} else {
		if b.registry != nil && b.registry.IsCollecting(userID) {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonStop)))
		} else {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonStart)))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonStatus)))
	}

	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

// reply sends text with the owner's current keyboard attached.
func (b *Bot) reply(ctx context.Context, chatID, userID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = b.keyboard(ctx, userID)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
