package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/parimut/internal/engine"
	"github.com/xtrntr/parimut/internal/models"

	"github.com/jackc/pgx/v5"
)

// lockEvent reads an event row under FOR UPDATE, serializing every money
// operation on that event for the duration of the transaction.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID int) (*models.Event, error) {
	event, err := scanEvent(tx.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = $1 FOR UPDATE", eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", eventID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return event, nil
}

// PlaceStake atomically debits the user and records a pending bet against an
// active event. The coefficient snapshot is computed against the pending
// bets committed at this instant; it is indicative only and never drives the
// payout. Any failure rolls back both the debit and the insert.
func (db *DB) PlaceStake(ctx context.Context, userID, eventID int, option string, amount float64) (*models.Bet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: stake amount must be positive", engine.ErrInvalidArgument)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	event, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, fmt.Errorf("event %d: %w", eventID, engine.ErrEventClosed)
	}

	stakes, err := pendingStakes(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	pools := engine.ComputePools(event.Options, event.SeedPool, stakes)
	coeffs := engine.Coefficients(pools, event.FeePercent)
	coeff, ok := coeffs[option]
	if !ok {
		return nil, fmt.Errorf("%w: option %q not in event options", engine.ErrInvalidArgument, option)
	}

	// Event lock is held before the user lock in both money transactions,
	// which keeps lock acquisition order consistent.
	var balance float64
	err = tx.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if balance < amount {
		return nil, fmt.Errorf("balance %.2f below stake %.2f: %w", balance, amount, engine.ErrInsufficientFunds)
	}

	if _, err := tx.Exec(ctx, "UPDATE users SET balance = balance - $1 WHERE id = $2", amount, userID); err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	bet := &models.Bet{
		UserID:        userID,
		EventID:       eventID,
		Option:        option,
		Amount:        amount,
		CoeffSnapshot: coeff,
		Status:        models.BetPending,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bets (user_id, event_id, option, amount, coeff_snapshot, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending')
		 RETURNING id, created_at`,
		userID, eventID, option, amount, coeff).Scan(&bet.ID, &bet.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bet, nil
}

// Settle closes an event exactly once: it fixes the final coefficient from
// the pools pending at this instant, flips the event inactive in the same
// transaction, pays every winning bet amount * finalCoeff, and zeroes the
// losers. A second call fails with no mutation.
func (db *DB) Settle(ctx context.Context, eventID int, winningOption string) (*models.SettlementReport, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	event, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, fmt.Errorf("event %d already settled: %w", eventID, engine.ErrEventClosed)
	}

	stakes, err := pendingStakes(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	pools := engine.ComputePools(event.Options, event.SeedPool, stakes)
	coeffs := engine.Coefficients(pools, event.FeePercent)
	finalCoeff, ok := coeffs[winningOption]
	if !ok {
		return nil, fmt.Errorf("%w: winning option %q not in event options", engine.ErrInvalidArgument, winningOption)
	}

	// The flip and the pool snapshot share the transaction, so no stake can
	// commit after close and stay unsettled.
	if _, err := tx.Exec(ctx,
		"UPDATE events SET is_active = FALSE, result_option = $1, result_coeff = $2, closed_at = NOW() WHERE id = $3",
		winningOption, finalCoeff, eventID); err != nil {
		return nil, fmt.Errorf("failed to close event: %w", err)
	}

	// Drain the cursor before issuing updates on the same connection.
	// Ordered by user id to keep user-row lock acquisition consistent.
	rows, err := tx.Query(ctx,
		`SELECT b.id, b.user_id, u.username, b.option, b.amount
		 FROM bets b JOIN users u ON u.id = b.user_id
		 WHERE b.event_id = $1 AND b.status = 'pending'
		 ORDER BY b.user_id, b.id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending bets: %w", err)
	}
	var results []models.BetResult
	for rows.Next() {
		var r models.BetResult
		if err := rows.Scan(&r.BetID, &r.UserID, &r.Username, &r.Option, &r.Amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		results = append(results, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		r := &results[i]
		if r.Option == winningOption {
			r.Status = models.BetWon
			r.WinAmount = r.Amount * finalCoeff
			if _, err := tx.Exec(ctx,
				"UPDATE users SET balance = balance + $1 WHERE id = $2", r.WinAmount, r.UserID); err != nil {
				return nil, fmt.Errorf("failed to credit winnings: %w", err)
			}
		} else {
			r.Status = models.BetLost
			r.WinAmount = 0
		}
		if _, err := tx.Exec(ctx,
			"UPDATE bets SET status = $1, payout_coefficient = $2, win_amount = $3 WHERE id = $4",
			r.Status, finalCoeff, r.WinAmount, r.BetID); err != nil {
			return nil, fmt.Errorf("failed to settle bet: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.SettlementReport{
		EventID:       eventID,
		EventTitle:    event.Title,
		WinningOption: winningOption,
		FinalCoeff:    finalCoeff,
		TotalPool:     pools.Total,
		Commission:    pools.Total * event.FeePercent,
		Pools:         pools.ByOption,
		Results:       results,
	}, nil
}

// AdjustBalance applies an admin credit or debit to a user. A debit that
// would drive the balance negative is rejected with no mutation.
func (db *DB) AdjustBalance(ctx context.Context, userID int, delta float64) (*models.User, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance float64
	err = tx.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if balance+delta < 0 {
		return nil, fmt.Errorf("balance %.2f with delta %.2f: %w", balance, delta, engine.ErrInsufficientFunds)
	}

	user := &models.User{}
	err = tx.QueryRow(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2 RETURNING id, username, password_hash, role, balance, created_at",
		delta, userID).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return user, nil
}
