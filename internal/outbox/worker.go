package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"coursebook/internal/dto"
	"coursebook/internal/mailer"
	"coursebook/internal/rabbit"
	"coursebook/internal/repo"
)

// NoticeWorker consumes booking notices from the broker and mails the
// affected user.
type NoticeWorker struct {
	rmq    *rabbit.Client
	repo   repo.Repository
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewNoticeWorker(rmq *rabbit.Client, repo repo.Repository, mail *mailer.Mailer) *NoticeWorker {
	return &NoticeWorker{
		rmq:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (w *NoticeWorker) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	zlog.Logger.Info().Msg("Booking notice worker started")

	go func() {
		defer close(w.done)

		handler := func(body []byte) error {
			var msg dto.BookingNoticeMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal notice: %s", string(body))
				// Malformed payloads never become parseable; drop them.
				return nil
			}

			zlog.Logger.Info().
				Str("kind", msg.Kind).
				Str("user_id", msg.UserID).
				Msg("Received booking notice")

			if err := w.handleNotice(cctx, &msg); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Str("kind", msg.Kind).
					Msg("Failed to handle booking notice")
			}
			return nil
		}

		if err := w.rmq.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("Booking notice worker stopped by context")
	}()
}

func (w *NoticeWorker) handleNotice(ctx context.Context, msg *dto.BookingNoticeMessage) error {
	user, err := w.repo.GetUserByID(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	var subject, body string
	switch msg.Kind {
	case dto.NoticeReserved, dto.NoticePaymentConfirmed:
		courseName, startTime, err := w.sessionDetails(ctx, msg.SessionID)
		if err != nil {
			return err
		}
		subject = "Your spot is confirmed"
		body = fmt.Sprintf("Hello %s,\n\nYour registration for %s on %s is confirmed.\nSee you there!",
			user.FirstName, courseName, startTime)
	case dto.NoticeCancelled:
		courseName, startTime, err := w.sessionDetails(ctx, msg.SessionID)
		if err != nil {
			return err
		}
		subject = "Your registration was cancelled"
		body = fmt.Sprintf("Hello %s,\n\nYour registration for %s on %s has been cancelled.",
			user.FirstName, courseName, startTime)
	case dto.NoticeBookPurchased:
		subject = "Your session book is ready"
		body = fmt.Sprintf("Hello %s,\n\nYour session book purchase is confirmed. Your credits are ready to use.",
			user.FirstName)
	default:
		zlog.Logger.Warn().Str("kind", msg.Kind).Msg("Unknown notice kind, skipping")
		return nil
	}

	if err := w.mail.Send(user.Email, subject, body); err != nil {
		return err
	}
	zlog.Logger.Info().
		Str("email", user.Email).
		Str("kind", msg.Kind).
		Msg("Notification email sent")
	return nil
}

func (w *NoticeWorker) sessionDetails(ctx context.Context, sessionID int64) (string, string, error) {
	sess, err := w.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("load session: %w", err)
	}
	course, err := w.repo.GetCourseByID(ctx, sess.CourseID)
	if err != nil {
		return "", "", fmt.Errorf("load course: %w", err)
	}
	return course.Name, sess.StartTime.Format("Mon, 02 Jan 2006 15:04"), nil
}

func (w *NoticeWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}
