package handler

import (
	"errors"
	"net/http"

	"chatmind/backend/internal/api/middleware"
	"chatmind/backend/internal/billing"

	"github.com/gin-gonic/gin"
)

// SubscribePro handles POST /subscribe/pro: opens a Stripe Checkout session
// for the PRO price and hands the URL back to the client.
func (h *Handler) SubscribePro(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	session, err := h.Billing.CreateCheckoutSession(user)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Checkout session created", session)
}

// SubscriptionStatus handles GET /subscription/status: tier, period bounds
// and today's usage against the tier limit.
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	sub, err := h.Billing.Current(userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	decision, err := h.Usage.Check(userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "OK", gin.H{
		"subscription": sub,
		"usage":        decision,
	})
}

// StripeWebhook handles POST /webhook/stripe. Stripe authenticates itself
// through the signature header, not a JWT.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "unreadable payload")
		return
	}

	if err := h.Billing.HandleWebhook(payload, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			respondError(c, http.StatusBadRequest, "invalid signature")
			return
		}
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "OK", gin.H{"received": true})
}
