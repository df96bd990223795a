package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ussbot/internal/models"
	"ussbot/internal/repositories"
)

// Transport is everything the router asks of the chat platform beyond
// plain private sends.
type Transport interface {
	Messenger
	// DeleteMessage suppresses the triggering message in a group chat.
	// Best effort: a failed deletion (bot lacks privilege) is reported
	// as data and never retried or escalated.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) models.DeletionOutcome
	// SendMenu delivers text to a private channel together with the
	// standard menu controls.
	SendMenu(ctx context.Context, userID int64, text string) error
	// ChatRole reports the sender's role in the origin chat. Used only
	// by the optional admin-only gate.
	ChatRole(ctx context.Context, chatID, userID int64) (string, error)
}

// pendingFlow is an assignment started in a group without task text.
// The assigner may finish it by sending the text to the bot in private
// before the record expires.
type pendingFlow struct {
	ID        string
	ChatID    int64
	Assignee  models.Peer
	ExpiresAt time.Time
}

// AssignmentOptions tune router behavior.
type AssignmentOptions struct {
	// AdminOnly restricts /assign in groups to chat administrators.
	AdminOnly bool
	// FlowTTL is how long an unfinished assignment waits for its text.
	FlowTTL time.Duration
	// Timezone is only echoed in the greeting text.
	Timezone string
}

// AssignmentService interprets inbound chat events and decides, per
// event, what gets stored and who gets a private message. It never
// writes to the originating group.
type AssignmentService struct {
	repo   repositories.TaskRepository
	notify *NotifyService
	tg     Transport
	logger *zap.Logger
	opts   AssignmentOptions

	// Now is injectable for tests.
	Now func() time.Time

	mu    sync.Mutex
	flows map[int64]pendingFlow
}

func NewAssignmentService(repo repositories.TaskRepository, notify *NotifyService, tg Transport, logger *zap.Logger, opts AssignmentOptions) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FlowTTL <= 0 {
		opts.FlowTTL = 10 * time.Minute
	}
	return &AssignmentService{
		repo:   repo,
		notify: notify,
		tg:     tg,
		logger: logger,
		opts:   opts,
		Now:    time.Now,
		flows:  make(map[int64]pendingFlow),
	}
}

// Observe runs on every inbound event, before command dispatch. It
// backfills unresolved tasks the first time a handle shows up with a
// stable identity, and delivers the notices that had to wait.
func (s *AssignmentService) Observe(ctx context.Context, ev *models.Event) {
	if ev.Sender.Handle == "" || ev.Sender.ID == 0 {
		return
	}
	n, err := s.repo.ResolveHandle(ctx, ev.Sender.Handle, ev.Sender.ID)
	if err != nil {
		s.logger.Error("handle backfill failed", zap.String("handle", ev.Sender.Handle), zap.Error(err))
		return
	}
	if n == 0 {
		return
	}
	s.logger.Info("resolved pending tasks",
		zap.String("handle", ev.Sender.Handle), zap.Int64("user_id", ev.Sender.ID), zap.Int64("tasks", n))

	tasks, err := s.repo.ListOpen(ctx, ev.Sender.ID)
	if err != nil || len(tasks) == 0 {
		return
	}
	if _, err := s.notify.DeliverPrivate(ctx, ev.Sender.ID, msgBackfilled(n)+"\n"+renderMyTasks(tasks)); err != nil {
		s.logger.Warn("backfill notice failed", zap.Int64("user_id", ev.Sender.ID), zap.Error(err))
	}
}

// Assign handles /assign. Group-only; the trigger message is always
// suppressed; the only two creation preconditions are a resolvable
// assignee and non-empty text.
func (s *AssignmentService) Assign(ctx context.Context, ev *models.Event) {
	if !ev.FromGroup() {
		s.reply(ctx, ev.Sender.ID, msgAssignOnlyGroup)
		return
	}

	if out := s.tg.DeleteMessage(ctx, ev.ChatID, ev.MessageID); out == models.SuppressionFailed {
		s.logger.Debug("trigger suppression failed", zap.Int64("chat_id", ev.ChatID), zap.Int("message_id", ev.MessageID))
	}

	if s.opts.AdminOnly && !s.isAdmin(ctx, ev) {
		s.reply(ctx, ev.Sender.ID, msgAssignAdminOnly)
		return
	}

	assignee, text, ok := s.resolveTarget(ev)
	if !ok {
		// нет ни реплая, ни @username: задачу записывать не на кого
		s.reply(ctx, ev.Sender.ID, msgAssignHowTo)
		return
	}

	if strings.TrimSpace(text) == "" {
		s.openFlow(ev.Sender.ID, ev.ChatID, assignee)
		s.reply(ctx, ev.Sender.ID, msgAssignNeedText)
		return
	}

	s.createTask(ctx, ev.ChatID, ev.Sender.ID, assignee, text)
}

// PlainText handles non-command private messages: they complete a
// pending assignment flow, if the sender has one that has not expired.
func (s *AssignmentService) PlainText(ctx context.Context, ev *models.Event) {
	if ev.FromGroup() || strings.TrimSpace(ev.Args) == "" {
		return
	}
	flow, ok := s.takeFlow(ev.Sender.ID)
	if !ok {
		return
	}
	s.logger.Info("pending flow completed", zap.String("flow_id", flow.ID), zap.Int64("assigner_id", ev.Sender.ID))
	s.createTask(ctx, flow.ChatID, ev.Sender.ID, flow.Assignee, ev.Args)
}

// Done handles /done <id>. Closure is permissive: any requester quoting
// a valid numeric id may close the task.
func (s *AssignmentService) Done(ctx context.Context, ev *models.Event) {
	s.suppressInGroup(ctx, ev)

	arg := strings.TrimSpace(ev.Args)
	id, err := strconv.ParseInt(arg, 10, 64)
	if arg == "" || err != nil || id <= 0 {
		s.reply(ctx, ev.Sender.ID, msgDoneUsage)
		return
	}

	ok, err := s.repo.MarkDone(ctx, id)
	if err != nil {
		s.logger.Error("mark done failed", zap.Int64("task_id", id), zap.Error(err))
		s.reply(ctx, ev.Sender.ID, msgActionFailed)
		return
	}
	if ok {
		s.reply(ctx, ev.Sender.ID, msgDoneOK)
	} else {
		s.reply(ctx, ev.Sender.ID, msgDoneNotFound)
	}
}

// MyTasks handles /mytasks and the matching menu button.
func (s *AssignmentService) MyTasks(ctx context.Context, ev *models.Event) {
	s.suppressInGroup(ctx, ev)

	tasks, err := s.repo.ListOpen(ctx, ev.Sender.ID)
	if err != nil {
		s.logger.Error("list open failed", zap.Int64("user_id", ev.Sender.ID), zap.Error(err))
		s.reply(ctx, ev.Sender.ID, msgActionFailed)
		return
	}
	if len(tasks) == 0 {
		s.reply(ctx, ev.Sender.ID, msgNoOpenTasks)
		return
	}
	s.reply(ctx, ev.Sender.ID, renderMyTasks(tasks))
}

// OpenTasksText renders the sender's open-task list for the inline
// menu, where the transport edits the menu message in place.
func (s *AssignmentService) OpenTasksText(ctx context.Context, userID int64) (string, error) {
	tasks, err := s.repo.ListOpen(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return msgNoOpenTasks, nil
	}
	return renderMyTasks(tasks), nil
}

// Start handles /start: greeting plus menu, privately.
func (s *AssignmentService) Start(ctx context.Context, ev *models.Event) {
	s.suppressInGroup(ctx, ev)
	s.reply(ctx, ev.Sender.ID, msgGreeting(s.opts.Timezone))
	s.Menu(ctx, ev)
}

// Menu handles /menu.
func (s *AssignmentService) Menu(ctx context.Context, ev *models.Event) {
	s.suppressInGroup(ctx, ev)
	if err := s.tg.SendMenu(ctx, ev.Sender.ID, msgMenu()); err != nil && !errors.Is(err, models.ErrUnreachable) {
		s.logger.Warn("menu send failed", zap.Int64("user_id", ev.Sender.ID), zap.Error(err))
	}
}

// HowToAssignText is the menu-button variant of the assign hint.
func (s *AssignmentService) HowToAssignText() string {
	return msgAssignHowTo
}

func (s *AssignmentService) createTask(ctx context.Context, chatID, assignerID int64, assignee models.Peer, text string) {
	task := &models.Task{
		ChatID:     chatID,
		AssignerID: assignerID,
		Text:       text,
	}
	if assignee.ID != 0 {
		task.AssigneeID = &assignee.ID
	} else {
		task.AssigneeHandle = assignee.Handle
	}

	id, err := s.repo.Add(ctx, task)
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		s.reply(ctx, assignerID, msgAssignNeedText)
		return
	case err != nil:
		s.logger.Error("task insert failed", zap.Int64("chat_id", chatID), zap.Error(err))
		s.reply(ctx, assignerID, msgActionFailed)
		return
	}

	s.logger.Info("task created",
		zap.Int64("task_id", id),
		zap.Int64("chat_id", chatID),
		zap.Int64("assigner_id", assignerID),
		zap.Bool("resolved", task.Resolved()))

	if !task.Resolved() {
		// Некому слать ЛС, пока человек не напишет боту сам.
		s.reply(ctx, assignerID, msgAssignPendingHandle(id, models.NormalizeHandle(assignee.Handle)))
		return
	}
	if _, err := s.notify.NotifyAssignment(ctx, task, assignee); err != nil {
		s.logger.Error("assignment notification failed", zap.Int64("task_id", id), zap.Error(err))
	}
}

// resolveTarget infers who the task is for: the quoted message's author
// when the event is a reply, otherwise a leading @username argument.
// The remaining text is the task body.
func (s *AssignmentService) resolveTarget(ev *models.Event) (models.Peer, string, bool) {
	if ev.ReplyTo != nil && ev.ReplyTo.ID != 0 {
		return *ev.ReplyTo, ev.Args, true
	}
	args := strings.TrimSpace(ev.Args)
	if strings.HasPrefix(args, "@") {
		handle, rest, _ := strings.Cut(args, " ")
		if h := models.NormalizeHandle(handle); h != "" {
			return models.Peer{Handle: h}, rest, true
		}
	}
	return models.Peer{}, "", false
}

func (s *AssignmentService) isAdmin(ctx context.Context, ev *models.Event) bool {
	role, err := s.tg.ChatRole(ctx, ev.ChatID, ev.Sender.ID)
	if err != nil {
		s.logger.Warn("chat role lookup failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
		return false
	}
	return role == "administrator" || role == "creator"
}

func (s *AssignmentService) suppressInGroup(ctx context.Context, ev *models.Event) {
	if !ev.FromGroup() {
		return
	}
	if out := s.tg.DeleteMessage(ctx, ev.ChatID, ev.MessageID); out == models.SuppressionFailed {
		s.logger.Debug("trigger suppression failed", zap.Int64("chat_id", ev.ChatID), zap.Int("message_id", ev.MessageID))
	}
}

func (s *AssignmentService) reply(ctx context.Context, userID int64, text string) {
	if _, err := s.notify.DeliverPrivate(ctx, userID, text); err != nil {
		s.logger.Warn("private reply failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *AssignmentService) openFlow(assignerID, chatID int64, assignee models.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireFlowsLocked()
	s.flows[assignerID] = pendingFlow{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Assignee:  assignee,
		ExpiresAt: s.Now().Add(s.opts.FlowTTL),
	}
}

func (s *AssignmentService) takeFlow(assignerID int64) (pendingFlow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireFlowsLocked()
	flow, ok := s.flows[assignerID]
	if ok {
		delete(s.flows, assignerID)
	}
	return flow, ok
}

// expireFlowsLocked drops abandoned flows so they do not leak. Caller
// holds s.mu.
func (s *AssignmentService) expireFlowsLocked() {
	now := s.Now()
	for id, flow := range s.flows {
		if now.After(flow.ExpiresAt) {
			delete(s.flows, id)
		}
	}
}
