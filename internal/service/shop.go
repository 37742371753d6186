package service

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/gateway"
	"coursebook/internal/repo"
	"coursebook/pkg/validator"
)

func (s *service) ListBundles(ctx *ginext.Context) {
	sizes := make([]int, 0, len(bundleCatalog))
	for size := range bundleCatalog {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	resp := make([]dto.BundleResponse, 0, len(sizes))
	for _, size := range sizes {
		b := bundleCatalog[size]
		resp = append(resp, dto.BundleResponse{
			TotalSessions: b.TotalSessions,
			Name:          b.Name,
			Price:         b.Price,
			Description:   b.Description,
		})
	}
	dto.SuccessResponse(ctx, resp)
}

// CheckoutBundle starts a hosted-checkout payment for a session book. The
// bundle price comes from the server-side catalog; the request only selects a
// size.
func (s *service) CheckoutBundle(ctx *ginext.Context) {
	var req dto.CheckoutBookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	b, ok := bundleFor(req.TotalSessions)
	if !ok {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown bundle size")
		return
	}

	userID := callerID(ctx)
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.respondRepoError(ctx, err)
		return
	}

	intent, err := s.checkout.CreateCheckout(ctx, gateway.CreateParams{
		AmountCents: amountCents(b.Price),
		Currency:    s.cfg.Currency,
		Name:        b.Name,
		Description: b.Description,
		SuccessURL: s.cfg.BaseURL + fmt.Sprintf(
			"/shop/success?totalSessions=%d&session_id={CHECKOUT_SESSION_ID}", b.TotalSessions),
		CancelURL:     s.cfg.BaseURL + "/shop",
		CustomerEmail: user.Email,
	})
	if err != nil {
		s.log.Error().Err(err).Int("total_sessions", b.TotalSessions).Msg("failed to create checkout session")
		dto.GatewayFailureError(ctx, "Payment provider is unavailable")
		return
	}

	s.log.Info().
		Str("user_id", userID).
		Int("total_sessions", b.TotalSessions).
		Str("checkout_id", intent.ID).
		Msg("checkout session created for bundle")

	dto.SuccessResponse(ctx, dto.CheckoutResponse{CheckoutURL: intent.URL})
}

// ShopReturn is the success-URL landing for bundle purchases. The paid amount
// is checked against the catalog price before any credits are granted.
func (s *service) ShopReturn(ctx *ginext.Context) {
	rawTotal := ctx.Query("totalSessions")
	externalID := ctx.Query("session_id")
	if rawTotal == "" || externalID == "" {
		dto.BadResponseError(ctx, dto.MissingParameters, "totalSessions and session_id query parameters are required")
		return
	}
	total, err := strconv.Atoi(rawTotal)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid totalSessions parameter")
		return
	}
	b, ok := bundleFor(total)
	if !ok {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown bundle size")
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
	if st.AmountCents != amountCents(b.Price) {
		s.log.Warn().
			Str("checkout_id", externalID).
			Int64("paid_cents", st.AmountCents).
			Int64("expected_cents", amountCents(b.Price)).
			Msg("paid amount does not match bundle price")
		dto.BadResponseError(ctx, dto.AmountMismatch, "Paid amount does not match the bundle price")
		return
	}

	res, err := s.repo.ConfirmCreditPurchaseTx(ctx, userID, b.Name, b.TotalSessions, b.Price, externalID, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrPaymentProcessed) {
			prior, lookupErr := s.repo.GetPaymentByExternalID(ctx, externalID)
			if lookupErr != nil || prior == nil {
				s.log.Error().Err(lookupErr).Msg("failed to load already processed payment")
				dto.InternalServerError(ctx)
				return
			}
			dto.SuccessResponse(ctx, paymentToConfirmedResponse(prior, true))
			return
		}
		s.log.Error().Err(err).Msg("failed to confirm bundle purchase")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("user_id", userID).
		Int("total_sessions", b.TotalSessions).
		Str("checkout_id", externalID).
		Msg("bundle purchase confirmed")

	dto.SuccessResponse(ctx, paymentToConfirmedResponse(res.Payment, false))
}
