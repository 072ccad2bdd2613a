package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/show-booking-engine/internal/coupon"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/metinatakli/show-booking-engine/internal/inventory"
	"github.com/metinatakli/show-booking-engine/internal/mocks"
	"github.com/metinatakli/show-booking-engine/internal/popularity"
	"github.com/metinatakli/show-booking-engine/internal/repository"
	"github.com/metinatakli/show-booking-engine/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type BookingTestSuite struct {
	suite.Suite
	now time.Time

	shows     *repository.MemoryShowRepository
	bookings  *repository.MemoryBookingRepository
	catalog   *repository.MemoryCatalog
	movies    *mocks.MockMovieCatalog
	payments  *mocks.MockPaymentGateway
	notifier  *mocks.MockNotifier
	inventory *inventory.Service
	deps      Deps
	clock     func() time.Time
	service   *Service
	show      *domain.Show
}

func (s *BookingTestSuite) SetupTest() {
	s.now = testNow
	clock := func() time.Time { return s.now }
	s.clock = clock
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validator.NewValidator()

	s.shows = repository.NewMemoryShowRepository()
	s.bookings = repository.NewMemoryBookingRepository()
	s.catalog = repository.NewMemoryCatalog()
	s.movies = new(mocks.MockMovieCatalog)
	s.payments = new(mocks.MockPaymentGateway)
	s.notifier = &mocks.MockNotifier{}

	s.catalog.AddMovie(domain.Movie{ID: 1, Title: "Hamlet", DurationMinutes: 150})
	s.catalog.AddTheater(domain.Theater{ID: 1, Name: "Globe", City: "London"})
	s.catalog.AddScreen(domain.Screen{
		ID:        1,
		TheaterID: 1,
		Name:      "Main",
		Layout: []domain.LayoutSeat{
			{SeatID: "A1", Row: "A", Column: 1, Category: "GOLD"},
			{SeatID: "A2", Row: "A", Column: 2, Category: "SILVER"},
			{SeatID: "A3", Row: "A", Column: 3, Category: "SILVER"},
			{SeatID: "A4", Row: "A", Column: 4, Category: "SILVER"},
		},
	})
	s.catalog.AddCoupon(domain.Coupon{
		ID:               1,
		Code:             "SAVE10",
		DiscountType:     domain.DiscountPercentage,
		Value:            decimal.NewFromInt(10),
		MinBookingAmount: decimal.NewFromInt(100),
		MaxDiscount:      decimal.NewFromInt(50),
		ValidFrom:        testNow.Add(-24 * time.Hour),
		ValidUntil:       testNow.Add(30 * 24 * time.Hour),
		Status:           domain.CouponActive,
	})

	s.inventory = inventory.NewService(s.shows, s.catalog, s.catalog, v, logger, inventory.WithClock(clock))

	s.deps = Deps{
		Shows:     s.shows,
		Bookings:  s.bookings,
		Inventory: s.inventory,
		Coupons:   coupon.NewEngine(s.catalog, s.bookings, logger, clock),
		Scorer:    popularity.NewScorer(s.shows, s.movies, logger),
		Catalog:   s.catalog,
		Movies:    s.catalog,
		Payments:  s.payments,
		Notifier:  s.notifier,
		Validator: v,
		Logger:    logger,
	}
	s.service = NewService(s.deps, DefaultConfig(), WithClock(clock))

	show, err := s.inventory.ScheduleShow(context.Background(), inventory.ScheduleInput{
		MovieID:   1,
		TheaterID: 1,
		ScreenID:  1,
		ShowTime:  testNow.Add(48 * time.Hour),
		Pricing: map[string]domain.PriceTier{
			"GOLD":   {BasePrice: decimal.NewFromInt(200)},
			"SILVER": {BasePrice: decimal.NewFromInt(150)},
		},
	})
	s.Require().NoError(err)
	s.show = show
}

func TestBookingSuite(t *testing.T) {
	suite.Run(t, new(BookingTestSuite))
}

func (s *BookingTestSuite) initiate(seatIDs ...string) *domain.Booking {
	booking, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:       42,
		ShowID:       s.show.ID,
		SeatIDs:      seatIDs,
		ContactEmail: "guest@example.com",
	})
	s.Require().NoError(err)
	return booking
}

func (s *BookingTestSuite) confirm(booking *domain.Booking) *domain.Booking {
	s.payments.On("Verify", mock.Anything, mock.Anything, "pay_"+booking.BookingNumber, "sig").Return(true, nil).Once()
	s.movies.On("RecordSale", mock.Anything, int64(1), mock.Anything).Return(nil).Once()

	confirmed, err := s.service.Confirm(context.Background(), PaymentConfirmation{
		BookingID:  booking.ID,
		OrderRef:   "order_1",
		PaymentRef: "pay_" + booking.BookingNumber,
		Signature:  "sig",
	})
	s.Require().NoError(err)
	s.service.Wait()

	return confirmed
}

func (s *BookingTestSuite) stored(id uuid.UUID) *domain.Booking {
	booking, err := s.service.Get(context.Background(), id)
	s.Require().NoError(err)
	return booking
}

func (s *BookingTestSuite) seatStatuses() map[string]domain.SeatStatus {
	show, err := s.shows.GetByID(context.Background(), s.show.ID)
	s.Require().NoError(err)

	statuses := make(map[string]domain.SeatStatus, len(show.Seats))
	for _, seat := range show.Seats {
		statuses[seat.SeatID] = seat.Status
	}
	return statuses
}

func (s *BookingTestSuite) requireAmount(want string, got decimal.Decimal) {
	s.T().Helper()
	s.True(decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func (s *BookingTestSuite) TestInitiate() {
	booking := s.initiate("A1", "A2")

	s.Equal(domain.BookingPaymentPending, booking.Status)
	s.Equal(domain.TicketNotIssued, booking.TicketStatus)
	s.Regexp(regexp.MustCompile(`^BK260310-[A-Z2-7]{8}$`), booking.BookingNumber)
	s.requireAmount("350", booking.SubtotalAmount)
	s.requireAmount("0", booking.DiscountAmount)
	s.requireAmount("17.5", booking.AdditionalCharges)
	s.requireAmount("367.5", booking.TotalAmount)
	s.requireAmount("200", booking.Seats[0].Price)
	s.requireAmount("150", booking.Seats[1].Price)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatBlocked, statuses["A1"])
	s.Equal(domain.SeatBlocked, statuses["A2"])
	s.Equal(domain.SeatAvailable, statuses["A3"])

	show, err := s.shows.GetByID(context.Background(), s.show.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), show.BookingAttempts)

	byNumber, err := s.service.GetByNumber(context.Background(), booking.BookingNumber)
	s.Require().NoError(err)
	s.Equal(booking.ID, byNumber.ID)
}

func (s *BookingTestSuite) TestInitiateWithCoupon() {
	tests := []struct {
		name         string
		code         string
		wantDiscount string
		wantTotal    string
		wantCoupon   bool
	}{
		{
			name:         "should apply a valid coupon",
			code:         "save10",
			wantDiscount: "35",
			wantTotal:    "332.5",
			wantCoupon:   true,
		},
		{
			name:         "should ignore an unknown coupon",
			code:         "NOPE",
			wantDiscount: "0",
			wantTotal:    "367.5",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			booking, err := s.service.Initiate(context.Background(), InitiateInput{
				UserID:     42,
				ShowID:     s.show.ID,
				SeatIDs:    []string{"A1", "A2"},
				CouponCode: tt.code,
			})
			s.Require().NoError(err)

			s.requireAmount(tt.wantDiscount, booking.DiscountAmount)
			s.requireAmount(tt.wantTotal, booking.TotalAmount)
			s.Equal(tt.wantCoupon, booking.Coupon != nil)
		})
	}
}

func (s *BookingTestSuite) TestInitiateValidation() {
	tests := []struct {
		name  string
		input InitiateInput
	}{
		{
			name:  "should fail without seats",
			input: InitiateInput{UserID: 42, ShowID: 1},
		},
		{
			name:  "should fail with duplicate seats",
			input: InitiateInput{UserID: 42, ShowID: 1, SeatIDs: []string{"A1", "A1"}},
		},
		{
			name: "should fail with more than ten seats",
			input: InitiateInput{UserID: 42, ShowID: 1, SeatIDs: []string{
				"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9", "A10", "A11",
			}},
		},
		{
			name:  "should fail with an invalid contact email",
			input: InitiateInput{UserID: 42, ShowID: 1, SeatIDs: []string{"A1"}, ContactEmail: "nope"},
		},
		{
			name:  "should fail with an unknown seat",
			input: InitiateInput{UserID: 42, ShowID: 1, SeatIDs: []string{"Z9"}},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			tt.input.ShowID = s.show.ID

			_, err := s.service.Initiate(context.Background(), tt.input)
			s.ErrorIs(err, domain.ErrValidation)
		})
	}

	for _, status := range s.seatStatuses() {
		s.Equal(domain.SeatAvailable, status)
	}
}

func (s *BookingTestSuite) TestInitiateSeatsTaken() {
	first := s.initiate("A1", "A2")

	_, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:  7,
		ShowID:  s.show.ID,
		SeatIDs: []string{"A2", "A3"},
	})
	s.ErrorIs(err, domain.ErrSeatAlreadyReserved)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatBlocked, statuses["A2"])
	s.Equal(domain.SeatAvailable, statuses["A3"])

	bookings, meta, err := s.service.ListForUser(context.Background(), ListInput{UserID: 7, Page: 1, PageSize: 10})
	s.Require().NoError(err)
	s.Empty(bookings)
	s.Equal(0, meta.TotalRecords)

	s.Equal(domain.BookingPaymentPending, s.stored(first.ID).Status)
}

func (s *BookingTestSuite) TestInitiateShowNotBookable() {
	s.now = testNow.Add(49 * time.Hour)

	_, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:  42,
		ShowID:  s.show.ID,
		SeatIDs: []string{"A1"},
	})
	s.ErrorIs(err, domain.ErrShowNotBookable)
}

func (s *BookingTestSuite) TestInitiateMissingCatalogEntries() {
	tests := []struct {
		name      string
		movieID   int64
		theaterID int64
	}{
		{name: "should fail when the movie is missing", movieID: 999, theaterID: 1},
		{name: "should fail when the theater is missing", movieID: 1, theaterID: 999},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			show := &domain.Show{
				MovieID:   tt.movieID,
				TheaterID: tt.theaterID,
				ScreenID:  1,
				ShowTime:  testNow.Add(time.Hour),
				Status:    domain.ShowOpen,
				Pricing: map[string]domain.PriceTier{
					"SILVER": domain.NewPriceTier(decimal.NewFromInt(150)),
				},
				Seats: []domain.ShowSeat{
					{SeatID: "C1", Category: "SILVER", Status: domain.SeatAvailable},
				},
			}
			show.RecomputeCounters()
			s.Require().NoError(s.shows.Create(context.Background(), show))

			_, err := s.service.Initiate(context.Background(), InitiateInput{
				UserID:  42,
				ShowID:  show.ID,
				SeatIDs: []string{"C1"},
			})
			s.ErrorIs(err, domain.ErrRecordNotFound)

			stored, err := s.shows.GetByID(context.Background(), show.ID)
			s.Require().NoError(err)
			s.Equal(domain.SeatAvailable, stored.Seats[0].Status)
			s.Equal(int64(0), stored.BookingAttempts)
		})
	}
}

func (s *BookingTestSuite) TestInitiateMissingPriceTier() {
	show := &domain.Show{
		MovieID:   1,
		TheaterID: 1,
		ScreenID:  1,
		ShowTime:  testNow.Add(time.Hour),
		Status:    domain.ShowOpen,
		Pricing: map[string]domain.PriceTier{
			"SILVER": domain.NewPriceTier(decimal.NewFromInt(150)),
		},
		Seats: []domain.ShowSeat{
			{SeatID: "B1", Category: "PLATINUM", Status: domain.SeatAvailable},
			{SeatID: "B2", Category: "SILVER", Status: domain.SeatAvailable},
		},
	}
	show.RecomputeCounters()
	s.Require().NoError(s.shows.Create(context.Background(), show))

	_, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:  42,
		ShowID:  show.ID,
		SeatIDs: []string{"B1", "B2"},
	})
	s.ErrorIs(err, domain.ErrMissingPriceTier)

	stored, err := s.shows.GetByID(context.Background(), show.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.AvailableSeats)
}

func (s *BookingTestSuite) TestBookingNumberCollision() {
	numbers := []string{"BK-1", "BK-1", "BK-2"}
	s.service.newNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	first := s.initiate("A1")
	second := s.initiate("A2")

	s.Equal("BK-1", first.BookingNumber)
	s.Equal("BK-2", second.BookingNumber)
}

func (s *BookingTestSuite) TestBookingNumberAttemptsExhausted() {
	s.service.newNumber = func(time.Time) string { return "BK-1" }
	s.initiate("A1")

	_, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:  42,
		ShowID:  s.show.ID,
		SeatIDs: []string{"A2"},
	})
	s.ErrorIs(err, domain.ErrDuplicateBookingNumber)
	s.Equal(domain.SeatAvailable, s.seatStatuses()["A2"])
}

func (s *BookingTestSuite) TestCreatePaymentOrder() {
	booking := s.initiate("A1", "A2")

	s.payments.On("Initiate", mock.Anything, mock.MatchedBy(func(order domain.PaymentOrder) bool {
		return order.BookingNumber == booking.BookingNumber && order.Amount.Equal(booking.TotalAmount)
	})).Return("order_1", nil).Once()

	updated, err := s.service.CreatePaymentOrder(context.Background(), booking.ID)
	s.Require().NoError(err)
	s.Equal("order_1", updated.Payment.OrderRef)
	s.Equal("order_1", s.stored(booking.ID).Payment.OrderRef)
	s.payments.AssertExpectations(s.T())
}

func (s *BookingTestSuite) TestCreatePaymentOrderGatewayFailure() {
	booking := s.initiate("A1")

	s.payments.On("Initiate", mock.Anything, mock.Anything).Return("", errors.New("gateway timeout"))

	_, err := s.service.CreatePaymentOrder(context.Background(), booking.ID)
	s.ErrorIs(err, domain.ErrPaymentUnavailable)
	s.Equal(domain.BookingPaymentPending, s.stored(booking.ID).Status)
}

func (s *BookingTestSuite) TestConfirm() {
	booking := s.initiate("A1", "A2")
	confirmed := s.confirm(booking)

	s.Equal(domain.BookingConfirmed, confirmed.Status)
	s.Equal(domain.TicketIssued, confirmed.TicketStatus)
	s.Equal("pay_"+booking.BookingNumber, confirmed.Payment.TransactionRef)
	s.Require().NotNil(confirmed.Payment.PaidAt)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatBooked, statuses["A1"])
	s.Equal(domain.SeatBooked, statuses["A2"])

	sent := s.notifier.Sent()
	s.Require().Len(sent, 1)
	s.Equal(domain.TicketEventConfirmed, sent[0].Event)
	s.Equal("guest@example.com", sent[0].Recipient)
	s.Equal(s.show.ShowTime, sent[0].ShowTime)

	_, err := s.service.Confirm(context.Background(), PaymentConfirmation{
		BookingID:  booking.ID,
		PaymentRef: "pay_" + booking.BookingNumber,
		Signature:  "sig",
	})
	s.ErrorIs(err, domain.ErrInvalidState)

	s.movies.AssertNumberOfCalls(s.T(), "RecordSale", 1)
}

func (s *BookingTestSuite) TestConfirmRecordsCouponUsage() {
	booking, err := s.service.Initiate(context.Background(), InitiateInput{
		UserID:     42,
		ShowID:     s.show.ID,
		SeatIDs:    []string{"A1"},
		CouponCode: "SAVE10",
	})
	s.Require().NoError(err)

	s.confirm(booking)

	c, err := s.catalog.GetByCode(context.Background(), "SAVE10")
	s.Require().NoError(err)
	s.Equal(1, c.UsageCount)
}

func (s *BookingTestSuite) TestConfirmPaymentFailures() {
	tests := []struct {
		name       string
		verifyOK   bool
		verifyErr  error
		wantErr    error
		wantStatus domain.BookingStatus
	}{
		{
			name:       "should keep the hold when the payment is rejected",
			verifyOK:   false,
			wantErr:    domain.ErrPaymentRejected,
			wantStatus: domain.BookingPaymentPending,
		},
		{
			name:       "should keep the hold when the gateway is unavailable",
			verifyErr:  errors.New("connection refused"),
			wantErr:    domain.ErrPaymentUnavailable,
			wantStatus: domain.BookingPaymentPending,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			booking := s.initiate("A1")

			s.payments.On("Verify", mock.Anything, mock.Anything, "pay_1", "sig").Return(tt.verifyOK, tt.verifyErr)

			_, err := s.service.Confirm(context.Background(), PaymentConfirmation{
				BookingID:  booking.ID,
				PaymentRef: "pay_1",
				Signature:  "sig",
			})
			s.ErrorIs(err, tt.wantErr)
			s.Equal(tt.wantStatus, s.stored(booking.ID).Status)
			s.Equal(domain.SeatBlocked, s.seatStatuses()["A1"])
			s.movies.AssertNotCalled(s.T(), "RecordSale", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func (s *BookingTestSuite) TestConfirmAfterHoldLost() {
	booking := s.initiate("A1")
	s.Require().NoError(s.inventory.Release(context.Background(), s.show.ID, []string{"A1"}, booking.ID))

	s.payments.On("Verify", mock.Anything, mock.Anything, "pay_1", "sig").Return(true, nil)
	s.payments.On("Refund", mock.Anything, "pay_1", mock.MatchedBy(booking.TotalAmount.Equal)).Return("re_1", nil).Once()

	_, err := s.service.Confirm(context.Background(), PaymentConfirmation{
		BookingID:  booking.ID,
		PaymentRef: "pay_1",
		Signature:  "sig",
	})
	s.ErrorIs(err, domain.ErrSeatLockExpired)

	stored := s.stored(booking.ID)
	s.Equal(domain.BookingRefunded, stored.Status)
	s.Equal(domain.TicketNotIssued, stored.TicketStatus)
	s.Require().NotNil(stored.Refund)
	s.Equal(domain.RefundProcessed, stored.Refund.Status)
	s.Equal("re_1", stored.Refund.Ref)
	s.Require().NotNil(stored.Cancellation)
	s.Equal(systemActor, stored.Cancellation.Actor)

	s.Equal(domain.SeatAvailable, s.seatStatuses()["A1"])
	s.payments.AssertExpectations(s.T())
	s.movies.AssertNotCalled(s.T(), "RecordSale", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BookingTestSuite) TestConcurrentConfirm() {
	tests := []struct {
		name        string
		paymentRefs [2]string
		wantRefund  bool
	}{
		{
			name:        "should apply a repeated payment once without refunding it",
			paymentRefs: [2]string{"pay_1", "pay_1"},
		},
		{
			name:        "should refund the payment that lost the booking",
			paymentRefs: [2]string{"pay_1", "pay_2"},
			wantRefund:  true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			booking := s.initiate("A1", "A2")

			var verifying sync.WaitGroup
			verifying.Add(2)
			s.payments.On("Verify", mock.Anything, mock.Anything, mock.Anything, "sig").
				Run(func(mock.Arguments) {
					verifying.Done()
					verifying.Wait()
				}).
				Return(true, nil).Twice()
			s.movies.On("RecordSale", mock.Anything, int64(1), mock.Anything).Return(nil).Once()

			var refunded []string
			if tt.wantRefund {
				s.payments.On("Refund", mock.Anything, mock.Anything, mock.MatchedBy(booking.TotalAmount.Equal)).
					Run(func(args mock.Arguments) { refunded = append(refunded, args.String(1)) }).
					Return("re_1", nil).Once()
			}

			errs := make([]error, 2)
			var wg sync.WaitGroup
			for i, ref := range tt.paymentRefs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = s.service.Confirm(context.Background(), PaymentConfirmation{
						BookingID:  booking.ID,
						PaymentRef: ref,
						Signature:  "sig",
					})
				}()
			}
			wg.Wait()
			s.service.Wait()

			var won int
			for _, err := range errs {
				if err == nil {
					won++
					continue
				}
				s.ErrorIs(err, domain.ErrInvalidState)
			}
			s.Equal(1, won)

			stored := s.stored(booking.ID)
			s.Equal(domain.BookingConfirmed, stored.Status)

			statuses := s.seatStatuses()
			s.Equal(domain.SeatBooked, statuses["A1"])
			s.Equal(domain.SeatBooked, statuses["A2"])

			if tt.wantRefund {
				s.Require().Len(refunded, 1)
				s.NotEqual(stored.Payment.PaymentRef, refunded[0])
			} else {
				s.payments.AssertNotCalled(s.T(), "Refund", mock.Anything, mock.Anything, mock.Anything)
			}

			s.payments.AssertExpectations(s.T())
			s.movies.AssertNumberOfCalls(s.T(), "RecordSale", 1)
			s.Len(s.notifier.Sent(), 1)
		})
	}
}

func (s *BookingTestSuite) TestConfirmWhileHoldExpires() {
	ctx := context.Background()
	booking := s.initiate("A1")

	s.payments.On("Verify", mock.Anything, mock.Anything, "pay_1", "sig").
		Run(func(mock.Arguments) {
			s.now = testNow.Add(11 * time.Minute)
			expired, err := s.service.ExpireStaleHolds(ctx, s.now)
			s.Require().NoError(err)
			s.Equal(1, expired)
		}).
		Return(true, nil).Once()
	s.payments.On("Refund", mock.Anything, "pay_1", mock.MatchedBy(booking.TotalAmount.Equal)).Return("re_1", nil).Once()

	_, err := s.service.Confirm(ctx, PaymentConfirmation{
		BookingID:  booking.ID,
		PaymentRef: "pay_1",
		Signature:  "sig",
	})
	s.ErrorIs(err, domain.ErrInvalidState)

	s.Equal(domain.BookingExpired, s.stored(booking.ID).Status)
	s.Equal(domain.SeatAvailable, s.seatStatuses()["A1"])
	s.payments.AssertExpectations(s.T())
}

func (s *BookingTestSuite) TestConfirmAfterExpiry() {
	booking := s.initiate("A1")

	s.now = testNow.Add(11 * time.Minute)
	expired, err := s.service.ExpireStaleHolds(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(1, expired)

	_, err = s.service.Confirm(context.Background(), PaymentConfirmation{
		BookingID:  booking.ID,
		PaymentRef: "pay_1",
	})
	s.ErrorIs(err, domain.ErrInvalidState)
	s.payments.AssertNotCalled(s.T(), "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *BookingTestSuite) TestCancelAndRefund() {
	booking := s.confirm(s.initiate("A1", "A2"))

	cancelled, err := s.service.Cancel(context.Background(), CancelInput{
		BookingID: booking.ID,
		Reason:    "plans changed",
		Actor:     "user",
	})
	s.Require().NoError(err)
	s.service.Wait()

	s.Equal(domain.BookingCancelled, cancelled.Status)
	s.Require().NotNil(cancelled.Cancellation)
	s.Equal("user", cancelled.Cancellation.Actor)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatAvailable, statuses["A1"])
	s.Equal(domain.SeatAvailable, statuses["A2"])

	sent := s.notifier.Sent()
	s.Require().Len(sent, 2)
	s.Equal(domain.TicketEventCancelled, sent[1].Event)

	requested, err := s.service.RequestRefund(context.Background(), booking.ID)
	s.Require().NoError(err)
	s.Equal(domain.RefundPending, requested.Refund.Status)
	s.requireAmount("367.5", requested.Refund.Amount)

	_, err = s.service.RequestRefund(context.Background(), booking.ID)
	s.ErrorIs(err, domain.ErrInvalidState)

	s.payments.On("Refund", mock.Anything, booking.Payment.TransactionRef, mock.Anything).Return("re_1", nil).Once()

	refunded, err := s.service.ProcessRefund(context.Background(), booking.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingRefunded, refunded.Status)
	s.Equal(domain.RefundProcessed, refunded.Refund.Status)
	s.Equal("re_1", refunded.Refund.Ref)
	s.NotNil(refunded.Refund.ProcessedAt)
}

func (s *BookingTestSuite) TestProcessRefundFailure() {
	booking := s.confirm(s.initiate("A1"))

	s.now = testNow.Add(30 * time.Hour)
	_, err := s.service.Cancel(context.Background(), CancelInput{BookingID: booking.ID, Actor: "admin"})
	s.Require().NoError(err)

	requested, err := s.service.RequestRefund(context.Background(), booking.ID)
	s.Require().NoError(err)
	s.requireAmount(domain.Percent(booking.TotalAmount, decimal.NewFromInt(75)).String(), requested.Refund.Amount)

	s.payments.On("Refund", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("card expired")).Once()

	_, err = s.service.ProcessRefund(context.Background(), booking.ID)
	s.ErrorIs(err, domain.ErrPaymentUnavailable)

	stored := s.stored(booking.ID)
	s.Equal(domain.BookingCancelled, stored.Status)
	s.Equal(domain.RefundFailed, stored.Refund.Status)
	s.Equal("card expired", stored.Refund.FailureReason)

	s.payments.On("Refund", mock.Anything, mock.Anything, mock.Anything).Return("re_2", nil).Once()

	refunded, err := s.service.ProcessRefund(context.Background(), booking.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingRefunded, refunded.Status)
	s.Empty(refunded.Refund.FailureReason)
}

func (s *BookingTestSuite) TestRefundAmount() {
	total := decimal.RequireFromString("367.5")
	showTime := testNow.Add(48 * time.Hour)

	tests := []struct {
		name        string
		cancelledAt time.Time
		want        string
	}{
		{name: "should refund in full two days ahead", cancelledAt: testNow, want: "367.5"},
		{name: "should refund in full just over a day ahead", cancelledAt: showTime.Add(-25 * time.Hour), want: "367.5"},
		{name: "should refund 75 percent within a day", cancelledAt: showTime.Add(-23 * time.Hour), want: "275.63"},
		{name: "should refund 75 percent exactly a day ahead", cancelledAt: showTime.Add(-24 * time.Hour), want: "275.63"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.requireAmount(tt.want, RefundAmount(total, showTime, tt.cancelledAt))
		})
	}
}

func (s *BookingTestSuite) TestCancelRejected() {
	pending := s.initiate("A1")

	_, err := s.service.Cancel(context.Background(), CancelInput{BookingID: pending.ID, Actor: "user"})
	s.ErrorIs(err, domain.ErrInvalidState)

	confirmed := s.confirm(s.initiate("A2"))

	_, err = s.service.Cancel(context.Background(), CancelInput{BookingID: confirmed.ID})
	s.ErrorIs(err, domain.ErrValidation)

	s.now = s.show.ShowTime.Add(time.Minute)
	_, err = s.service.Cancel(context.Background(), CancelInput{BookingID: confirmed.ID, Actor: "user"})
	s.ErrorIs(err, domain.ErrInvalidState)
	s.Equal(domain.SeatBooked, s.seatStatuses()["A2"])
}

func (s *BookingTestSuite) TestCheckIn() {
	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{name: "should reject three hours early", offset: -3 * time.Hour, wantErr: domain.ErrCheckInWindow},
		{name: "should accept two hours early", offset: -2 * time.Hour},
		{name: "should accept during the show", offset: 30 * time.Minute},
		{name: "should accept two hours late", offset: 2 * time.Hour},
		{name: "should reject after the window", offset: 2*time.Hour + time.Minute, wantErr: domain.ErrCheckInWindow},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			booking := s.confirm(s.initiate("A1"))

			s.now = s.show.ShowTime.Add(tt.offset)
			checkedIn, err := s.service.CheckIn(context.Background(), booking.BookingNumber)

			if tt.wantErr != nil {
				s.ErrorIs(err, tt.wantErr)
				s.Equal(domain.TicketIssued, s.stored(booking.ID).TicketStatus)
				return
			}

			s.Require().NoError(err)
			s.Equal(domain.TicketCheckedIn, checkedIn.TicketStatus)
			s.Require().NotNil(checkedIn.CheckedInAt)

			_, err = s.service.CheckIn(context.Background(), booking.BookingNumber)
			s.ErrorIs(err, domain.ErrInvalidState)
		})
	}
}

func (s *BookingTestSuite) TestDelete() {
	pending := s.initiate("A1")

	s.Require().NoError(s.service.Delete(context.Background(), pending.ID))
	s.Equal(domain.SeatAvailable, s.seatStatuses()["A1"])

	_, err := s.service.Get(context.Background(), pending.ID)
	s.ErrorIs(err, domain.ErrRecordNotFound)

	confirmed := s.confirm(s.initiate("A2"))
	err = s.service.Delete(context.Background(), confirmed.ID)
	s.ErrorIs(err, domain.ErrInvalidState)
	s.Equal(domain.SeatBooked, s.seatStatuses()["A2"])
}

// confirmBeforeDelete lets a confirmation land between the read and the
// delete of a booking.
type confirmBeforeDelete struct {
	domain.BookingRepository
	confirm func()
}

func (r *confirmBeforeDelete) Delete(ctx context.Context, id uuid.UUID, from ...domain.BookingStatus) error {
	r.confirm()
	return r.BookingRepository.Delete(ctx, id, from...)
}

func (s *BookingTestSuite) TestDeleteLosesToConfirm() {
	booking := s.initiate("A1")

	deps := s.deps
	deps.Bookings = &confirmBeforeDelete{
		BookingRepository: s.bookings,
		confirm:           func() { s.confirm(booking) },
	}
	service := NewService(deps, DefaultConfig(), WithClock(s.clock))

	err := service.Delete(context.Background(), booking.ID)
	s.ErrorIs(err, domain.ErrInvalidState)

	s.Equal(domain.BookingConfirmed, s.stored(booking.ID).Status)
	s.Equal(domain.SeatBooked, s.seatStatuses()["A1"])
}

func (s *BookingTestSuite) TestExpireStaleHolds() {
	old := s.initiate("A1")

	s.now = testNow.Add(5 * time.Minute)
	fresh := s.initiate("A2")

	s.now = testNow.Add(11 * time.Minute)
	expired, err := s.service.ExpireStaleHolds(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(1, expired)

	s.Equal(domain.BookingExpired, s.stored(old.ID).Status)
	s.Equal(domain.BookingPaymentPending, s.stored(fresh.ID).Status)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatAvailable, statuses["A1"])
	s.Equal(domain.SeatBlocked, statuses["A2"])

	expired, err = s.service.ExpireStaleHolds(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(0, expired)

	s.Require().NoError(s.service.Delete(context.Background(), old.ID))
}

func (s *BookingTestSuite) TestReconcileOrphanedHolds() {
	ctx := context.Background()

	orphan := uuid.New()
	s.Require().NoError(s.inventory.Reserve(ctx, s.show.ID, []string{"A3", "A4"}, orphan))
	live := s.initiate("A1")

	s.now = testNow.Add(11 * time.Minute)
	reconciled, err := s.service.ReconcileOrphanedHolds(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, reconciled)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatAvailable, statuses["A3"])
	s.Equal(domain.SeatAvailable, statuses["A4"])
	s.Equal(domain.SeatBlocked, statuses["A1"])
	s.Equal(domain.BookingPaymentPending, s.stored(live.ID).Status)
}

func (s *BookingTestSuite) TestReconcileOrphanedBookedSeats() {
	ctx := context.Background()

	cancelled := s.confirm(s.initiate("A1", "A2"))
	cancelled.Status = domain.BookingCancelled
	cancelled.TicketStatus = domain.TicketNotIssued
	s.Require().NoError(s.bookings.Update(ctx, cancelled, domain.BookingConfirmed))

	missing := uuid.New()
	s.Require().NoError(s.inventory.Reserve(ctx, s.show.ID, []string{"A3"}, missing))
	s.Require().NoError(s.inventory.Confirm(ctx, s.show.ID, []string{"A3"}, missing))

	live := s.confirm(s.initiate("A4"))

	s.now = testNow.Add(11 * time.Minute)
	reconciled, err := s.service.ReconcileOrphanedHolds(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(2, reconciled)

	statuses := s.seatStatuses()
	s.Equal(domain.SeatAvailable, statuses["A1"])
	s.Equal(domain.SeatAvailable, statuses["A2"])
	s.Equal(domain.SeatAvailable, statuses["A3"])
	s.Equal(domain.SeatBooked, statuses["A4"])
	s.Equal(domain.BookingConfirmed, s.stored(live.ID).Status)

	reconciled, err = s.service.ReconcileOrphanedHolds(ctx, s.now)
	s.Require().NoError(err)
	s.Zero(reconciled)
}

func (s *BookingTestSuite) TestListForUser() {
	s.initiate("A1")
	s.now = testNow.Add(time.Minute)
	latest := s.initiate("A2")

	bookings, meta, err := s.service.ListForUser(context.Background(), ListInput{UserID: 42, Page: 1, PageSize: 1})
	s.Require().NoError(err)
	s.Require().Len(bookings, 1)
	s.Equal(latest.ID, bookings[0].ID)
	s.Equal(2, meta.TotalRecords)

	_, _, err = s.service.ListForUser(context.Background(), ListInput{UserID: 42, Page: 0, PageSize: 1})
	s.ErrorIs(err, domain.ErrValidation)
}
