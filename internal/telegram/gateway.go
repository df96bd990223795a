package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ussbot/internal/models"
	"ussbot/internal/services"
)

const (
	cbMenuAssign  = "menu_assign"
	cbMenuMyTasks = "menu_mytasks"
)

// Gateway is the chat transport: it long-polls Telegram, maps updates
// to structured events for the router and implements the outbound
// ports (private sends, best-effort deletion, role lookup).
//
// The update loop is a single goroutine, so inbound handlers never run
// concurrently with each other.
type Gateway struct {
	bot    *tgbotapi.BotAPI
	router *services.AssignmentService
	logger *zap.Logger
}

func New(token string, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Gateway{bot: bot, logger: logger}, nil
}

// Bind attaches the router. Separate from New because the router needs
// the gateway as its transport.
func (g *Gateway) Bind(router *services.AssignmentService) {
	g.router = router
}

// Run registers bot commands and processes updates until ctx is
// cancelled or Stop is called.
func (g *Gateway) Run(ctx context.Context) {
	g.setupCommands()
	g.logger.Info("telegram gateway started", zap.String("bot", g.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := g.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			g.handleUpdate(ctx, update)
		}
	}
}

// Stop closes the update channel, which ends Run.
func (g *Gateway) Stop() {
	g.bot.StopReceivingUpdates()
}

func (g *Gateway) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		g.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		g.handleMessage(ctx, update.Message)
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	ev := mapEvent(msg)
	g.router.Observe(ctx, ev)

	switch ev.Command {
	case "assign":
		g.router.Assign(ctx, ev)
	case "done":
		g.router.Done(ctx, ev)
	case "mytasks":
		g.router.MyTasks(ctx, ev)
	case "menu":
		g.router.Menu(ctx, ev)
	case "start":
		g.router.Start(ctx, ev)
	case "":
		g.router.PlainText(ctx, ev)
	}
}

func (g *Gateway) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := g.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		g.logger.Debug("callback ack failed", zap.Error(err))
	}
	if cq.Message == nil || cq.From == nil {
		return
	}

	g.router.Observe(ctx, &models.Event{
		ChatKind: models.ChatDirect,
		Sender:   mapPeer(cq.From),
	})

	var text string
	switch cq.Data {
	case cbMenuAssign:
		text = g.router.HowToAssignText()
	case cbMenuMyTasks:
		var err error
		text, err = g.router.OpenTasksText(ctx, cq.From.ID)
		if err != nil {
			g.logger.Error("menu task list failed", zap.Int64("user_id", cq.From.ID), zap.Error(err))
			return
		}
	default:
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, menuKeyboard())
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := g.bot.Send(edit); err != nil {
		g.logger.Debug("menu edit failed", zap.Error(err))
	}
}

// SendPrivate implements services.Messenger. A 403 means the person has
// never opened a private chat with the bot.
func (g *Gateway) SendPrivate(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := g.bot.Send(msg); err != nil {
		return mapSendError(err)
	}
	return nil
}

// SendMenu sends text with the standard inline menu attached.
func (g *Gateway) SendMenu(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = menuKeyboard()
	if _, err := g.bot.Send(msg); err != nil {
		return mapSendError(err)
	}
	return nil
}

// DeleteMessage suppresses a group message. Failures (bot is not an
// admin) are reported as data, not errors.
func (g *Gateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) models.DeletionOutcome {
	if _, err := g.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return models.SuppressionFailed
	}
	return models.Deleted
}

// ChatRole reports the member status of userID in chatID.
func (g *Gateway) ChatRole(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := g.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

func (g *Gateway) setupCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "menu", Description: "Открыть меню"},
		{Command: "assign", Description: "Назначить задачу (в группе по реплаю)"},
		{Command: "mytasks", Description: "Мои задачи"},
		{Command: "done", Description: "Закрыть задачу по ID"},
	}
	for _, scope := range []tgbotapi.BotCommandScope{
		tgbotapi.NewBotCommandScopeAllPrivateChats(),
		tgbotapi.NewBotCommandScopeAllGroupChats(),
	} {
		if _, err := g.bot.Request(tgbotapi.NewSetMyCommandsWithScope(scope, commands...)); err != nil {
			g.logger.Warn("set commands failed", zap.Error(err))
		}
	}
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Назначить задачу", cbMenuAssign),
			tgbotapi.NewInlineKeyboardButtonData("📋 Мои задачи", cbMenuMyTasks),
		),
	)
}

func mapEvent(msg *tgbotapi.Message) *models.Event {
	ev := &models.Event{
		ChatID:    msg.Chat.ID,
		ChatKind:  models.ChatDirect,
		MessageID: msg.MessageID,
		Sender:    mapPeer(msg.From),
		Args:      msg.Text,
	}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		ev.ChatKind = models.ChatGroup
	}
	if msg.IsCommand() {
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		peer := mapPeer(msg.ReplyToMessage.From)
		ev.ReplyTo = &peer
	}
	return ev
}

func mapPeer(u *tgbotapi.User) models.Peer {
	if u == nil {
		return models.Peer{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return models.Peer{ID: u.ID, Handle: u.UserName, Name: name}
}

// mapSendError turns the platform's "can't initiate conversation" 403
// into the unreachable sentinel; everything else stays an error.
func mapSendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return models.ErrUnreachable
	}
	return err
}
