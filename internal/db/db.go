package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/parimut/internal/engine"
	"github.com/xtrntr/parimut/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSeedPerOption is the house liquidity per outcome when an event is
// created without an explicit seed pool.
const DefaultSeedPerOption = 100.0

// DefaultArchivedLimit caps the archived-events listing when the caller does
// not ask for a specific limit.
const DefaultArchivedLimit = 30

// userBetsLimit caps the per-user bet listing, newest first.
const userBetsLimit = 50

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction, so reads can run
// inside or outside the money transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateUser inserts a new user with the given role and starting balance
func (db *DB) CreateUser(ctx context.Context, username, passwordHash, role string, startingBalance float64) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, role, balance) VALUES ($1, $2, $3, $4) RETURNING id, username, password_hash, role, balance, created_at",
		username, passwordHash, role, startingBalance).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role, balance, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, userID int) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role, balance, created_at FROM users WHERE id = $1",
		userID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateEvent validates and inserts a new active event. A nil seed pool gets
// DefaultSeedPerOption for every outcome.
func (db *DB) CreateEvent(ctx context.Context, title, description string, options []string, seedPool map[string]float64, feePercent float64) (*models.Event, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", engine.ErrInvalidArgument)
	}
	options, err := engine.ValidateOptions(options)
	if err != nil {
		return nil, err
	}
	if err := engine.ValidateFee(feePercent); err != nil {
		return nil, err
	}
	if seedPool == nil {
		seedPool = make(map[string]float64, len(options))
		for _, opt := range options {
			seedPool[opt] = DefaultSeedPerOption
		}
	}
	if err := engine.ValidateSeedPool(options, seedPool); err != nil {
		return nil, err
	}

	event := &models.Event{}
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO events (title, description, options, seed_pool, fee_percent, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 RETURNING id, title, COALESCE(description, ''), options, seed_pool, fee_percent, is_active, result_option, result_coeff, closed_at, created_at`,
		title, description, options, seedPool, feePercent).Scan(
		&event.ID, &event.Title, &event.Description, &event.Options, &event.SeedPool,
		&event.FeePercent, &event.IsActive, &event.ResultOption, &event.ResultCoeff,
		&event.ClosedAt, &event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

const eventColumns = "id, title, COALESCE(description, ''), options, seed_pool, fee_percent, is_active, result_option, result_coeff, closed_at, created_at"

func scanEvent(row pgx.Row) (*models.Event, error) {
	event := &models.Event{}
	err := row.Scan(&event.ID, &event.Title, &event.Description, &event.Options,
		&event.SeedPool, &event.FeePercent, &event.IsActive, &event.ResultOption,
		&event.ResultCoeff, &event.ClosedAt, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent retrieves an event by id
func (db *DB) GetEvent(ctx context.Context, eventID int) (*models.Event, error) {
	event, err := scanEvent(db.Pool.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = $1", eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", eventID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// GetActiveEvents retrieves all open events, newest first
func (db *DB) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	return db.listEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE is_active ORDER BY id DESC")
}

// GetArchivedEvents retrieves settled events, newest first
func (db *DB) GetArchivedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultArchivedLimit
	}
	return db.listEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE NOT is_active ORDER BY id DESC LIMIT $1", limit)
}

func (db *DB) listEvents(ctx context.Context, sql string, args ...any) ([]models.Event, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// GetUserBets retrieves a user's bets, newest first. onlyActive keeps
// pending bets only.
func (db *DB) GetUserBets(ctx context.Context, userID int, onlyActive bool) ([]models.Bet, error) {
	sql := `SELECT id, user_id, event_id, option, amount, coeff_snapshot, payout_coefficient, win_amount, status, created_at
		FROM bets WHERE user_id = $1`
	if onlyActive {
		sql += " AND status = 'pending'"
	}
	sql += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", userBetsLimit)

	rows, err := db.Pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bets: %w", err)
	}
	defer rows.Close()

	var bets []models.Bet
	for rows.Next() {
		var bet models.Bet
		if err := rows.Scan(&bet.ID, &bet.UserID, &bet.EventID, &bet.Option, &bet.Amount,
			&bet.CoeffSnapshot, &bet.PayoutCoefficient, &bet.WinAmount, &bet.Status, &bet.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bets, nil
}

// pendingStakes reads the committed pending wagers of an event. Run against
// a transaction that holds the event lock when the result feeds a mutation.
func pendingStakes(ctx context.Context, q querier, eventID int) ([]engine.Stake, error) {
	rows, err := q.Query(ctx,
		"SELECT option, amount FROM bets WHERE event_id = $1 AND status = 'pending'", eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending stakes: %w", err)
	}
	defer rows.Close()

	var stakes []engine.Stake
	for rows.Next() {
		var s engine.Stake
		if err := rows.Scan(&s.Option, &s.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan stake: %w", err)
		}
		stakes = append(stakes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stakes, nil
}

// CurrentOdds computes the live pool and coefficient view of an event.
// Read-only: stakes committing concurrently may shift the numbers by the
// time the caller sees them.
func (db *DB) CurrentOdds(ctx context.Context, eventID int) (*models.OddsView, error) {
	event, err := db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stakes, err := pendingStakes(ctx, db.Pool, eventID)
	if err != nil {
		return nil, err
	}

	pools := engine.ComputePools(event.Options, event.SeedPool, stakes)
	return &models.OddsView{
		EventID:      event.ID,
		IsActive:     event.IsActive,
		Pools:        pools.ByOption,
		TotalPool:    pools.Total,
		Coefficients: engine.Coefficients(pools, event.FeePercent),
		FeePercent:   event.FeePercent,
	}, nil
}
