package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trektide/apiserver/internal/mail"
	"github.com/trektide/apiserver/internal/payments"
	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BookingRepository defines persistence operations for bookings.
type BookingRepository interface {
	List(ctx context.Context, opts query.Options) ([]types.Booking, int, error)
	ListByAccount(ctx context.Context, accountID bson.ObjectID) ([]types.Booking, error)
	GetByID(ctx context.Context, id bson.ObjectID) (types.Booking, error)
	Create(ctx context.Context, booking types.Booking) (types.Booking, error)
	Update(ctx context.Context, id bson.ObjectID, price float64, paid bool) (types.Booking, error)
	Delete(ctx context.Context, id bson.ObjectID) error
}

// BookingTours is the slice of tour lookups the booking flow needs.
type BookingTours interface {
	GetByID(ctx context.Context, id bson.ObjectID) (types.Tour, error)
}

// BookingAccounts resolves the paying account from the checkout email.
type BookingAccounts interface {
	GetActiveByEmail(ctx context.Context, email string) (types.Account, error)
}

// BookingService encapsulates booking use-cases: creating external
// checkout sessions and fulfilling them when the gateway confirms
// payment.
type BookingService struct {
	repo     BookingRepository
	tours    BookingTours
	accounts BookingAccounts
	provider payments.Provider
	notify   mail.Sender
	logger   *slog.Logger
}

func NewBookingService(
	repo BookingRepository,
	tours BookingTours,
	accounts BookingAccounts,
	provider payments.Provider,
	notify mail.Sender,
	logger *slog.Logger,
) *BookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		repo:     repo,
		tours:    tours,
		accounts: accounts,
		provider: provider,
		notify:   notify,
		logger:   logger,
	}
}

// CreateCheckout creates an external checkout session for account to book
// the tour. The returned URL is where the client completes payment.
func (s *BookingService) CreateCheckout(ctx context.Context, account types.Account, tourID bson.ObjectID, baseURL string) (payments.CheckoutSession, error) {
	tour, err := s.tours.GetByID(ctx, tourID)
	if err != nil {
		return payments.CheckoutSession{}, err
	}

	return s.provider.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		TourID:        tour.ID.Hex(),
		TourName:      tour.Name,
		TourSummary:   tour.Summary,
		ImageURL:      fmt.Sprintf("%s/img/%s", baseURL, tour.ImageCover),
		CustomerEmail: account.Email,
		AmountCents:   int64(tour.Price * 100),
		SuccessURL:    baseURL + "/?alert=booking",
		CancelURL:     baseURL + "/tours/" + tour.Slug,
	})
}

// FulfillCheckout records the booking for a gateway-confirmed checkout
// and dispatches a confirmation mail fire-and-forget.
func (s *BookingService) FulfillCheckout(ctx context.Context, done payments.CompletedCheckout, baseURL string) (types.Booking, error) {
	tourID, err := bson.ObjectIDFromHex(done.TourID)
	if err != nil {
		return types.Booking{}, invalidf("bad tour reference %q", done.TourID)
	}
	account, err := s.accounts.GetActiveByEmail(ctx, done.CustomerEmail)
	if err != nil {
		return types.Booking{}, fmt.Errorf("resolve checkout account: %w", err)
	}

	booking, err := s.repo.Create(ctx, types.Booking{
		TourID:    tourID,
		AccountID: account.ID,
		Price:     float64(done.AmountCents) / 100,
		Paid:      true,
	})
	if err != nil {
		return types.Booking{}, err
	}

	if s.notify != nil {
		msg := mail.Message{
			Kind: mail.KindBookingConfirmed,
			To:   account.Email,
			Name: account.Name,
			URL:  baseURL + "/me/bookings",
		}
		if err := s.notify.Send(ctx, msg); err != nil {
			s.logger.Warn("booking mail dispatch failed", "email", account.Email, "err", err)
		}
	}
	return booking, nil
}

func (s *BookingService) List(ctx context.Context, opts query.Options) ([]types.Booking, int, error) {
	return s.repo.List(ctx, opts)
}

func (s *BookingService) ListForAccount(ctx context.Context, accountID bson.ObjectID) ([]types.Booking, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

func (s *BookingService) Get(ctx context.Context, id bson.ObjectID) (types.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateManual records a staff-created booking, optionally unpaid.
func (s *BookingService) CreateManual(ctx context.Context, tourID, accountID bson.ObjectID, price float64, paid bool) (types.Booking, error) {
	if price < 0 {
		return types.Booking{}, invalidf("price must not be negative")
	}
	return s.repo.Create(ctx, types.Booking{
		TourID:    tourID,
		AccountID: accountID,
		Price:     price,
		Paid:      paid,
	})
}

func (s *BookingService) Update(ctx context.Context, id bson.ObjectID, price float64, paid bool) (types.Booking, error) {
	return s.repo.Update(ctx, id, price, paid)
}

func (s *BookingService) Delete(ctx context.Context, id bson.ObjectID) error {
	return s.repo.Delete(ctx, id)
}
