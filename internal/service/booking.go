package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/gateway"
	"coursebook/internal/model"
	"coursebook/internal/repo"
)

func parsePositiveInt64(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("value must be positive")
	}
	return v, nil
}

// Reserve books one spot on a session. A valid session book pays for the spot
// directly; without one the handler answers with a hosted-checkout URL and the
// registration is created only after the payment is confirmed.
func (s *service) Reserve(ctx *ginext.Context) {
	sessionID, ok := parseIDParam(ctx, "sessionId")
	if !ok {
		return
	}
	userID := callerID(ctx)
	now := s.now()

	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	if sess.Status != model.SessionScheduled {
		dto.ConflictError(ctx, dto.AlreadyCancelled, "Session is not open for booking")
		return
	}
	if !sess.StartTime.After(now) {
		dto.BadResponseError(ctx, dto.AlreadyPast, "Session has already started")
		return
	}

	res, err := s.repo.ReserveWithCreditTx(ctx, userID, sessionID, now)
	if err == nil {
		s.log.Info().
			Str("user_id", userID).
			Int64("session_id", sessionID).
			Int64("registration_id", res.Registration.ID).
			Msg("session reserved with credit")
		dto.SuccessCreatedResponse(ctx, dto.ReserveResponse{
			RegistrationID:    res.Registration.ID,
			SessionID:         sessionID,
			Status:            res.Registration.Status,
			UsedSessionBook:   true,
			RemainingSessions: res.Book.RemainingSessions,
		})
		return
	}

	switch {
	case errors.Is(err, repo.ErrNoCapacity):
		dto.ConflictError(ctx, dto.NoCapacity, "No available spots for this session")
		return
	case errors.Is(err, repo.ErrDuplicateRegistration):
		dto.ConflictError(ctx, dto.DuplicateRegistration, "You already have a confirmed registration for this session")
		return
	case errors.Is(err, repo.ErrSessionNotFound):
		dto.NotFoundError(ctx, "Session not found")
		return
	case errors.Is(err, repo.ErrNoUsableBook):
		// Fall through to the paid flow.
	default:
		s.log.Error().Err(err).Msg("failed to reserve session")
		dto.InternalServerError(ctx)
		return
	}

	course, err := s.repo.GetCourseByID(ctx, sess.CourseID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	intent, err := s.checkout.CreateCheckout(ctx, gateway.CreateParams{
		AmountCents: amountCents(course.Price),
		Currency:    s.cfg.Currency,
		Name:        course.Name,
		Description: fmt.Sprintf("Session on %s", sess.StartTime.In(s.cfg.Location).Format("Mon, 02 Jan 2006 15:04")),
		SuccessURL: s.cfg.BaseURL + fmt.Sprintf(
			"/booking/payment-success?sessionId=%d&session_id={CHECKOUT_SESSION_ID}", sess.ID),
		CancelURL:     s.cfg.BaseURL + "/sessions",
		CustomerEmail: user.Email,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("session_id", sessionID).Msg("failed to create checkout session")
		dto.GatewayFailureError(ctx, "Payment provider is unavailable")
		return
	}

	s.log.Info().
		Str("user_id", userID).
		Int64("session_id", sessionID).
		Str("checkout_id", intent.ID).
		Msg("checkout session created for reservation")

	dto.SuccessResponse(ctx, dto.ReserveResponse{
		SessionID:       sessionID,
		UsedSessionBook: false,
		CheckoutURL:     intent.URL,
	})
}

func (s *service) Cancel(ctx *ginext.Context) {
	registrationID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	userID := callerID(ctx)

	reg, err := s.repo.CancelRegistrationTx(ctx, userID, registrationID, s.now(), false)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRegistrationNotFound):
			dto.NotFoundError(ctx, "Registration not found")
		case errors.Is(err, repo.ErrForbidden):
			dto.ForbiddenError(ctx, "Registration belongs to another user")
		case errors.Is(err, repo.ErrAlreadyCancelled):
			dto.ConflictError(ctx, dto.AlreadyCancelled, "Registration is already cancelled")
		case errors.Is(err, repo.ErrSessionPast):
			dto.BadResponseError(ctx, dto.AlreadyPast, "Session has already started")
		default:
			s.log.Error().Err(err).Msg("failed to cancel registration")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("user_id", userID).
		Int64("registration_id", registrationID).
		Msg("registration cancelled")

	dto.SuccessResponse(ctx, registrationToResponse(reg))
}

// PaymentReturn is the success-URL landing for single-session payments. The
// client only carries identifiers; the paid state and amount are re-read from
// the gateway.
func (s *service) PaymentReturn(ctx *ginext.Context) {
	rawSessionID := ctx.Query("sessionId")
	externalID := ctx.Query("session_id")
	if rawSessionID == "" || externalID == "" {
		dto.BadResponseError(ctx, dto.MissingParameters, "sessionId and session_id query parameters are required")
		return
	}
	sessionID, err := parsePositiveInt64(rawSessionID)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid sessionId parameter")
		return
	}
	userID := callerID(ctx)

	if prior, err := s.repo.GetPaymentByExternalID(ctx, externalID); err != nil {
		s.log.Error().Err(err).Msg("failed to look up payment")
		dto.InternalServerError(ctx)
		return
	} else if prior != nil {
		dto.SuccessResponse(ctx, paymentToConfirmedResponse(prior, true))
		return
	}

	st, err := s.checkout.GetCheckout(ctx, externalID)
	if err != nil {
		s.log.Error().Err(err).Str("checkout_id", externalID).Msg("failed to retrieve checkout session")
		dto.GatewayFailureError(ctx, "Could not verify payment with the provider")
		return
	}
	if !st.Paid {
		dto.BadResponseError(ctx, dto.PaymentNotCompleted, "Payment has not been completed")
		return
	}

	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	course, err := s.repo.GetCourseByID(ctx, sess.CourseID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}
	if st.AmountCents != amountCents(course.Price) {
		s.log.Warn().
			Str("checkout_id", externalID).
			Int64("paid_cents", st.AmountCents).
			Int64("expected_cents", amountCents(course.Price)).
			Msg("paid amount does not match course price")
		dto.BadResponseError(ctx, dto.AmountMismatch, "Paid amount does not match the course price")
		return
	}

	res, err := s.repo.ConfirmSessionPaymentTx(ctx, userID, sessionID, course.Price, externalID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrPaymentProcessed):
			prior, lookupErr := s.repo.GetPaymentByExternalID(ctx, externalID)
			if lookupErr != nil || prior == nil {
				s.log.Error().Err(lookupErr).Msg("failed to load already processed payment")
				dto.InternalServerError(ctx)
				return
			}
			dto.SuccessResponse(ctx, paymentToConfirmedResponse(prior, true))
		case errors.Is(err, repo.ErrNoCapacity):
			dto.ConflictError(ctx, dto.NoCapacity, "Session filled up before the payment was confirmed")
		case errors.Is(err, repo.ErrDuplicateRegistration):
			dto.ConflictError(ctx, dto.DuplicateRegistration, "You already have a confirmed registration for this session")
		default:
			s.log.Error().Err(err).Msg("failed to confirm session payment")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("user_id", userID).
		Int64("session_id", sessionID).
		Str("checkout_id", externalID).
		Msg("session payment confirmed")

	dto.SuccessResponse(ctx, paymentToConfirmedResponse(res.Payment, false))
}

// Dashboard aggregates the caller's registrations, session books and payments.
func (s *service) Dashboard(ctx *ginext.Context) {
	userID := callerID(ctx)

	regs, err := s.repo.GetUserRegistrations(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list registrations")
		dto.InternalServerError(ctx)
		return
	}
	books, err := s.repo.GetUserSessionBooks(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list session books")
		dto.InternalServerError(ctx)
		return
	}
	payments, err := s.repo.GetUserPayments(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list payments")
		dto.InternalServerError(ctx)
		return
	}

	regResp := make([]dto.RegistrationResponse, 0, len(regs))
	for i := range regs {
		regResp = append(regResp, registrationToResponse(&regs[i]))
	}
	bookResp := make([]dto.SessionBookResponse, 0, len(books))
	for _, b := range books {
		bookResp = append(bookResp, dto.SessionBookResponse{
			ID:                b.ID,
			Name:              b.Name,
			TotalSessions:     b.TotalSessions,
			RemainingSessions: b.RemainingSessions,
			Price:             b.Price,
			ExpiresAt:         b.ExpiresAt,
		})
	}

	payResp := make([]dto.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		payResp = append(payResp, dto.PaymentResponse{
			ID:                p.ID,
			Amount:            p.Amount,
			ExternalPaymentID: p.ExternalPaymentID,
			RegistrationID:    p.RegistrationID,
			SessionBookID:     p.SessionBookID,
			CreatedAt:         p.CreatedAt,
		})
	}

	dto.SuccessResponse(ctx, dto.DashboardResponse{
		Registrations: regResp,
		SessionBooks:  bookResp,
		Payments:      payResp,
	})
}

func registrationToResponse(reg *model.Registration) dto.RegistrationResponse {
	return dto.RegistrationResponse{
		ID:            reg.ID,
		UserID:        reg.UserID,
		SessionID:     reg.SessionID,
		SessionBookID: reg.SessionBookID,
		Status:        reg.Status,
		RegisteredAt:  reg.RegisteredAt,
		CancelledAt:   reg.CancelledAt,
	}
}

func paymentToConfirmedResponse(p *model.Payment, alreadyProcessed bool) dto.PaymentConfirmedResponse {
	return dto.PaymentConfirmedResponse{
		PaymentID:         p.ID,
		ExternalPaymentID: p.ExternalPaymentID,
		Amount:            p.Amount,
		RegistrationID:    p.RegistrationID,
		SessionBookID:     p.SessionBookID,
		AlreadyProcessed:  alreadyProcessed,
	}
}
