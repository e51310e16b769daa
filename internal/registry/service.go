// Package registry manages the external destinations a user can register:
// payout methods (bank, PayPal, crypto) and webhook endpoints for domain
// events.
package registry

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/milestonepay/backend/internal/models"
)

type MethodStore interface {
	Create(ctx context.Context, m *models.PayoutMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.PayoutMethod, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type WebhookStore interface {
	Register(ctx context.Context, id uuid.UUID, userID uuid.UUID, url string) error
	Unregister(ctx context.Context, id uuid.UUID) error
}

type Service interface {
	AddMethod(ctx context.Context, userID uuid.UUID, kind, destination, label string) (*models.PayoutMethod, error)
	ListMethods(ctx context.Context, userID uuid.UUID) ([]*models.PayoutMethod, error)
	RemoveMethod(ctx context.Context, userID, methodID uuid.UUID) error
	AddWebhook(ctx context.Context, userID uuid.UUID, endpoint string) (uuid.UUID, error)
}

type service struct {
	methods  MethodStore
	webhooks WebhookStore
}

func NewService(methods MethodStore, webhooks WebhookStore) *service {
	return &service{methods: methods, webhooks: webhooks}
}

var _ Service = (*service)(nil)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	ibanRe  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)
	// Hex addresses with 0x prefix, 40-64 hex chars.
	cryptoRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40,64}$`)
)

// validateDestination applies a per-kind shape check. It is a plausibility
// filter, not proof the destination exists; the gateway finds that out.
func validateDestination(kind, destination string) error {
	switch kind {
	case models.PayoutMethodBank:
		if !ibanRe.MatchString(strings.ToUpper(strings.ReplaceAll(destination, " ", ""))) {
			return errors.New("destination is not a valid bank account")
		}
	case models.PayoutMethodPaypal:
		if !emailRe.MatchString(destination) {
			return errors.New("destination is not a valid email")
		}
	case models.PayoutMethodCrypto:
		if !cryptoRe.MatchString(destination) {
			return errors.New("destination is not a valid wallet address")
		}
	default:
		return errors.New("unsupported payout method kind")
	}
	return nil
}

func (s *service) AddMethod(ctx context.Context, userID uuid.UUID, kind, destination, label string) (*models.PayoutMethod, error) {
	if err := validateDestination(kind, destination); err != nil {
		return nil, err
	}
	m := &models.PayoutMethod{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        kind,
		Destination: destination,
		Label:       label,
	}
	if err := s.methods.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) ListMethods(ctx context.Context, userID uuid.UUID) ([]*models.PayoutMethod, error) {
	return s.methods.ListByUserID(ctx, userID)
}

func (s *service) RemoveMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	m, err := s.methods.GetByID(ctx, methodID)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return errors.New("method belongs to another user")
	}
	return s.methods.Delete(ctx, methodID)
}

func (s *service) AddWebhook(ctx context.Context, userID uuid.UUID, endpoint string) (uuid.UUID, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return uuid.Nil, errors.New("endpoint must be an absolute http(s) URL")
	}
	id := uuid.New()
	if err := s.webhooks.Register(ctx, id, userID, endpoint); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
