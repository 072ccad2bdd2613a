package integration_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/show-booking-engine/internal/domain"
	"github.com/metinatakli/show-booking-engine/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "show_booking"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"
)

type BaseSuite struct {
	suite.Suite
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer

	db     *pgxpool.Pool
	redis  *redis.Client
	logger *slog.Logger

	shows    *repository.PostgresShowRepository
	bookings *repository.PostgresBookingRepository
	coupons  *repository.PostgresCouponRepository
	catalog  *repository.PostgresCatalogRepository
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	s.Require().NoError(err)
	s.dbContainer = postgresContainer

	redisContainer, err := getCacheContainer(ctx)
	s.Require().NoError(err)
	s.cacheContainer = redisContainer

	s.db, err = pgxpool.New(ctx, postgresContainer.ConnectionString)
	s.Require().NoError(err)

	s.redis = redis.NewClient(&redis.Options{Addr: redisContainer.ConnectionString})
	s.Require().NoError(s.redis.Ping(ctx).Err())

	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	s.shows = repository.NewPostgresShowRepository(s.db)
	s.bookings = repository.NewPostgresBookingRepository(s.db)
	s.coupons = repository.NewPostgresCouponRepository(s.db)
	s.catalog = repository.NewPostgresCatalogRepository(s.db)
}

func (s *BaseSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
}

// TearDownTest truncates every table so each test starts from an empty
// catalog.
func (s *BaseSuite) TearDownTest() {
	_, err := s.db.Exec(context.Background(), `
		TRUNCATE booking_seats, bookings, show_seats, shows, coupons, screen_seats, screens, theaters, movies
		RESTART IDENTITY CASCADE
	`)
	s.Require().NoError(err)
	s.Require().NoError(s.redis.FlushAll(context.Background()).Err())
}

// seedShow stores a movie, a theater with one screen and a show on that
// screen with seats A1..An. A1 is GOLD, the rest SILVER.
func (s *BaseSuite) seedShow(showTime time.Time, seats int) *domain.Show {
	ctx := context.Background()

	var movieID, theaterID, screenID int64

	err := s.db.QueryRow(ctx,
		`INSERT INTO movies (title, duration_minutes) VALUES ('Hamlet', 150) RETURNING id`,
	).Scan(&movieID)
	s.Require().NoError(err)

	err = s.db.QueryRow(ctx,
		`INSERT INTO theaters (name, city) VALUES ('Globe', 'London') RETURNING id`,
	).Scan(&theaterID)
	s.Require().NoError(err)

	err = s.db.QueryRow(ctx,
		`INSERT INTO screens (theater_id, name) VALUES ($1, 'Main') RETURNING id`, theaterID,
	).Scan(&screenID)
	s.Require().NoError(err)

	show := &domain.Show{
		MovieID:    movieID,
		TheaterID:  theaterID,
		ScreenID:   screenID,
		ShowTime:   showTime,
		EndTime:    showTime.Add(150 * time.Minute),
		Language:   "en",
		Experience: "2D",
		Pricing: map[string]domain.PriceTier{
			"GOLD":   domain.NewPriceTier(decimal.NewFromInt(200)),
			"SILVER": domain.NewPriceTier(decimal.NewFromInt(150)),
		},
	}

	for i := 1; i <= seats; i++ {
		category := "SILVER"
		if i == 1 {
			category = "GOLD"
		}

		seatID := fmt.Sprintf("A%d", i)
		_, err = s.db.Exec(ctx,
			`INSERT INTO screen_seats (screen_id, seat_id, seat_row, seat_col, category) VALUES ($1, $2, 'A', $3, $4)`,
			screenID, seatID, i, category,
		)
		s.Require().NoError(err)

		show.Seats = append(show.Seats, domain.ShowSeat{
			SeatID:   seatID,
			Row:      "A",
			Column:   i,
			Category: category,
			Status:   domain.SeatAvailable,
		})
	}

	show.RecomputeCounters()
	s.Require().NoError(s.shows.Create(ctx, show))

	return show
}

func (s *BaseSuite) seatStatuses(showID int64) map[string]domain.SeatStatus {
	show, err := s.shows.GetByID(context.Background(), showID)
	s.Require().NoError(err)

	statuses := make(map[string]domain.SeatStatus, len(show.Seats))
	for _, seat := range show.Seats {
		statuses[seat.SeatID] = seat.Status
	}
	return statuses
}
