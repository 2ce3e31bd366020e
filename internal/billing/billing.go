// Package billing integrates Stripe subscriptions: Checkout sessions for
// the PRO upgrade and the webhook that keeps local subscription rows in
// sync. Webhook deliveries are idempotent via the billing_events table.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/datatypes"
)

var (
	// ErrNotConfigured is returned when Stripe keys or the PRO price are
	// missing from the environment.
	ErrNotConfigured = errors.New("billing is not configured")
	// ErrBadSignature is returned for webhook deliveries that fail
	// signature verification.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// CheckoutConfig is what a PRO upgrade session needs.
type CheckoutConfig struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the handle returned to the client.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// Service owns the Stripe integration.
type Service struct {
	store         storage.Storage
	log           *logger.Logger
	webhookSecret string
	checkout      CheckoutConfig
}

// NewService Constructor. The API key is set process-wide, matching how the
// stripe-go static bindings work.
func NewService(store storage.Storage, log *logger.Logger, apiKey, webhookSecret string, checkout CheckoutConfig) *Service {
	if apiKey != "" {
		stripe.Key = apiKey
	}
	return &Service{
		store:         store,
		log:           log,
		webhookSecret: webhookSecret,
		checkout:      checkout,
	}
}

// CreateCheckoutSession starts a Stripe Checkout for the PRO subscription.
// The user ID travels as client_reference_id so the webhook can attribute
// the completed session.
func (s *Service) CreateCheckoutSession(user *models.User) (*CheckoutSession, error) {
	if stripe.Key == "" || s.checkout.PriceID == "" {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.checkout.PriceID),
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID:   stripe.String(user.ID.String()),
		SuccessURL:          stripe.String(s.checkout.SuccessURL),
		CancelURL:           stripe.String(s.checkout.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
	}
	if user.Email != "" {
		params.CustomerEmail = stripe.String(user.Email)
	}
	params.AddMetadata("user_id", user.ID.String())

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.log.Info("checkout session created", "user_id", user.ID, "session_id", sess.ID)
	return &CheckoutSession{SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}

// Current returns the user's subscription, materializing a BASIC default
// for users who never subscribed. The default is not persisted.
func (s *Service) Current(userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Subscription{UserID: userID, Tier: models.TierBasic, Status: "none"}, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// HandleWebhook verifies, records and applies one Stripe webhook delivery.
// Replayed deliveries are acknowledged without reapplying.
func (s *Service) HandleWebhook(payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	fresh, err := s.store.RecordBillingEvent(&models.BillingEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Payload: datatypes.JSON(payload),
	})
	if err != nil {
		return fmt.Errorf("record billing event: %w", err)
	}
	if !fresh {
		s.log.Info("skipping replayed webhook event", "event_id", event.ID)
		return nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.activatePro(&cs)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.syncSubscription(&sub, false)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.syncSubscription(&sub, true)
	default:
		s.log.Debug("ignoring webhook event", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

// activatePro flips the user referenced by the completed checkout to PRO.
func (s *Service) activatePro(cs *stripe.CheckoutSession) error {
	ref := cs.ClientReferenceID
	if ref == "" {
		ref = cs.Metadata["user_id"]
	}
	userID, err := uuid.Parse(ref)
	if err != nil {
		return fmt.Errorf("checkout session %s carries no usable user reference: %w", cs.ID, err)
	}

	sub, err := s.store.GetSubscription(userID)
	if errors.Is(err, storage.ErrNotFound) {
		sub = &models.Subscription{UserID: userID}
	} else if err != nil {
		return err
	}

	sub.Tier = models.TierPro
	sub.Status = "active"
	if cs.Customer != nil {
		sub.StripeCustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		sub.StripeSubscriptionID = cs.Subscription.ID
	}
	if err := s.store.UpsertSubscription(sub); err != nil {
		return err
	}

	s.log.Info("subscription activated", "user_id", userID, "stripe_subscription_id", sub.StripeSubscriptionID)
	return nil
}

// syncSubscription updates the local row from a subscription event. Deleted
// subscriptions revert the user to BASIC.
func (s *Service) syncSubscription(stripeSub *stripe.Subscription, deleted bool) error {
	sub, err := s.store.GetSubscriptionByStripeID(stripeSub.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// An update for a subscription we never activated. Nothing to sync.
		s.log.Warn("webhook for unknown subscription", "stripe_subscription_id", stripeSub.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if deleted {
		sub.Tier = models.TierBasic
		sub.Status = "canceled"
	} else {
		sub.Status = string(stripeSub.Status)
	}
	start, end := periodBounds(stripeSub)
	if start != nil {
		sub.CurrentPeriodStart = start
	}
	if end != nil {
		sub.CurrentPeriodEnd = end
	}

	if err := s.store.UpsertSubscription(sub); err != nil {
		return err
	}

	s.log.Info("subscription synced",
		"user_id", sub.UserID,
		"tier", sub.Tier,
		"status", sub.Status,
	)
	return nil
}

// periodBounds extracts the current billing period, which Stripe reports on
// the subscription items.
func periodBounds(sub *stripe.Subscription) (start, end *time.Time) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, nil
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodStart > 0 {
		t := time.Unix(item.CurrentPeriodStart, 0)
		start = &t
	}
	if item.CurrentPeriodEnd > 0 {
		t := time.Unix(item.CurrentPeriodEnd, 0)
		end = &t
	}
	return start, end
}
