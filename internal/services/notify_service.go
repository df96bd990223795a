package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ussbot/internal/models"
)

// Messenger is the outbound side of the chat transport: a private,
// one-to-one delivery path to an identity.
type Messenger interface {
	// SendPrivate delivers text to the identity's private channel.
	// Returns an error wrapping models.ErrUnreachable when the person
	// has never initiated contact with the bot.
	SendPrivate(ctx context.Context, userID int64, text string) error
}

// NotifyService turns transport sends into DeliveryOutcome values and
// owns the assignment-confirmation fan-out policy.
type NotifyService struct {
	tg     Messenger
	logger *zap.Logger
}

func NewNotifyService(tg Messenger, logger *zap.Logger) *NotifyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyService{tg: tg, logger: logger}
}

// DeliverPrivate attempts a single private send. Unreachable is a
// normal outcome, not an error; anything else transport-level is.
func (s *NotifyService) DeliverPrivate(ctx context.Context, userID int64, text string) (models.DeliveryOutcome, error) {
	err := s.tg.SendPrivate(ctx, userID, text)
	if err == nil {
		return models.Delivered, nil
	}
	if errors.Is(err, models.ErrUnreachable) {
		return models.Unreachable, nil
	}
	return "", err
}

// NotifyAssignment runs the two-step confirmation fan-out for a freshly
// created task:
//  1. new-task notice to the assignee;
//  2. on success, confirmation to the assigner (the assigner just
//     triggered the action and is assumed reachable, so an Unreachable
//     here is absorbed);
//  3. on Unreachable, exactly one fallback message to the assigner and
//     no confirmation, so the assigner never sees two conflicting
//     reports.
//
// The returned outcome is the assignee delivery result.
func (s *NotifyService) NotifyAssignment(ctx context.Context, task *models.Task, assignee models.Peer) (models.DeliveryOutcome, error) {
	outcome, err := s.DeliverPrivate(ctx, *task.AssigneeID, msgNewTask(task.ID, task.Text))
	if err != nil {
		return "", err
	}

	switch outcome {
	case models.Delivered:
		if _, err := s.DeliverPrivate(ctx, task.AssignerID, msgAssignConfirm(task.ID, assignee)); err != nil {
			s.logger.Warn("assigner confirmation failed", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	case models.Unreachable:
		s.logger.Info("assignee unreachable, redirecting to assigner",
			zap.Int64("task_id", task.ID), zap.Int64("assignee_id", *task.AssigneeID))
		if _, err := s.DeliverPrivate(ctx, task.AssignerID, msgAssignUnreachable(task.ID, assignee)); err != nil {
			s.logger.Warn("assigner fallback failed", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
	return outcome, nil
}
