package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const tokenColumns = `address, name, symbol, decimals, description, telegram, twitter, website,
	image_uri, created_by, nsfw, completed, completed_at, dusa_pool_address, created_at`

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.Decimals,
		&t.Description,
		&t.Telegram,
		&t.Twitter,
		&t.Website,
		&t.ImageURI,
		&t.CreatedBy,
		&t.NSFW,
		&t.Completed,
		&t.CompletedAt,
		&t.DusaPoolAddress,
		&t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetToken retrieves a token by address
func (db *Database) GetToken(ctx context.Context, address string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`

	token, err := scanToken(db.pool.QueryRow(ctx, query, address))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token %s: %w", address, err)
	}
	return token, nil
}

// UpdateTokenAddress rewrites a token's placeholder address (the deploy tx
// hash) to its final on-chain address and returns the updated row.
func (db *Database) UpdateTokenAddress(ctx context.Context, oldAddress, newAddress string) (*Token, error) {
	query := `
		UPDATE tokens
		SET address = $2
		WHERE address = $1
		RETURNING ` + tokenColumns

	token, err := scanToken(db.pool.QueryRow(ctx, query, oldAddress, newAddress))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update token address %s: %w", oldAddress, err)
	}
	return token, nil
}

// DeleteToken removes a token row. Deleting an address that does not exist is
// not an error; failed deploys race the frontend row creation.
func (db *Database) DeleteToken(ctx context.Context, address string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM tokens WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("failed to delete token %s: %w", address, err)
	}
	return nil
}

// MarkTokenCompleted flags a token as migrated to Dusa and records its new
// pool address.
func (db *Database) MarkTokenCompleted(ctx context.Context, address string, completedAt time.Time, dusaPoolAddress string) error {
	query := `
		UPDATE tokens
		SET completed = TRUE,
		    completed_at = $2,
		    dusa_pool_address = $3
		WHERE address = $1`

	tag, err := db.pool.Exec(ctx, query, address, completedAt, dusaPoolAddress)
	if err != nil {
		return fmt.Errorf("failed to mark token %s completed: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsurePool creates a pool row if it does not exist yet.
func (db *Database) EnsurePool(ctx context.Context, address, tokenAddress string) error {
	query := `
		INSERT INTO pools (address, token_address)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING`

	if _, err := db.pool.Exec(ctx, query, address, tokenAddress); err != nil {
		return fmt.Errorf("failed to ensure pool %s: %w", address, err)
	}
	return nil
}

// ListPools returns every known pool.
func (db *Database) ListPools(ctx context.Context) ([]Pool, error) {
	rows, err := db.pool.Query(ctx, `SELECT address, token_address, created_at FROM pools ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		var p Pool
		if err := rows.Scan(&p.Address, &p.TokenAddress, &p.CreatedAt); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// CreateSwap inserts a swap, creating the user and pool rows on first contact.
// A swap that was already recorded returns ErrDuplicate.
func (db *Database) CreateSwap(ctx context.Context, swap *Swap) error {
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (address)
			VALUES ($1)
			ON CONFLICT (address) DO NOTHING`,
			swap.UserAddress,
		); err != nil {
			return fmt.Errorf("failed to ensure user %s: %w", swap.UserAddress, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO pools (address, token_address)
			VALUES ($1, $2)
			ON CONFLICT (address) DO NOTHING`,
			swap.PoolAddress, swap.TokenAddress,
		); err != nil {
			return fmt.Errorf("failed to ensure pool %s: %w", swap.PoolAddress, err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO swaps (
				tx_hash, pool_address, user_address, index_in_slot, swap_for_y,
				amount_in, amount_out, fees_in, usd_value, fees_usd_value,
				execution_price, after_price, after_reserve0, after_reserve1, timestamp
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (tx_hash) DO NOTHING`,
			swap.TxHash,
			swap.PoolAddress,
			swap.UserAddress,
			swap.IndexInSlot,
			swap.SwapForY,
			swap.AmountIn,
			swap.AmountOut,
			swap.FeesIn,
			swap.USDValue,
			swap.FeesUSDValue,
			swap.ExecutionPrice,
			swap.AfterPrice,
			swap.AfterReserve0,
			swap.AfterReserve1,
			swap.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert swap %s: %w", swap.TxHash, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicate
		}
		return nil
	})
	return err
}

const analyticsColumns = `pool_address, date, open, close, high, low, volume, fees, volume0, volume1`

func scanAnalytics(row pgx.Row) (*Analytics, error) {
	var a Analytics
	err := row.Scan(
		&a.PoolAddress,
		&a.Date,
		&a.Open,
		&a.Close,
		&a.High,
		&a.Low,
		&a.Volume,
		&a.Fees,
		&a.Volume0,
		&a.Volume1,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetAnalytics retrieves the candle for a pool at an exact tick start.
func (db *Database) GetAnalytics(ctx context.Context, poolAddress string, date time.Time) (*Analytics, error) {
	query := `SELECT ` + analyticsColumns + ` FROM analytics WHERE pool_address = $1 AND date = $2`

	a, err := scanAnalytics(db.pool.QueryRow(ctx, query, poolAddress, date))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analytics for %s: %w", poolAddress, err)
	}
	return a, nil
}

// LatestAnalytics retrieves a pool's most recent candle.
func (db *Database) LatestAnalytics(ctx context.Context, poolAddress string) (*Analytics, error) {
	query := `SELECT ` + analyticsColumns + ` FROM analytics WHERE pool_address = $1 ORDER BY date DESC LIMIT 1`

	a, err := scanAnalytics(db.pool.QueryRow(ctx, query, poolAddress))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest analytics for %s: %w", poolAddress, err)
	}
	return a, nil
}

// InsertAnalytics creates a new candle, creating the pool row if needed. A
// candle that already exists for the tick returns ErrDuplicate.
func (db *Database) InsertAnalytics(ctx context.Context, tokenAddress string, a *Analytics) error {
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pools (address, token_address)
			VALUES ($1, $2)
			ON CONFLICT (address) DO NOTHING`,
			a.PoolAddress, tokenAddress,
		); err != nil {
			return fmt.Errorf("failed to ensure pool %s: %w", a.PoolAddress, err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO analytics (pool_address, date, open, close, high, low, volume, fees, volume0, volume1)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			a.PoolAddress,
			a.Date,
			a.Open,
			a.Close,
			a.High,
			a.Low,
			a.Volume,
			a.Fees,
			a.Volume0,
			a.Volume1,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert analytics for %s: %w", a.PoolAddress, err)
		}
		return nil
	})
}

// UpdateAnalytics folds one swap into an existing candle. High and low only
// widen, close always tracks the latest price, volume and fees accumulate.
// The update is a single statement so concurrent swaps in the same tick
// cannot lose increments.
func (db *Database) UpdateAnalytics(ctx context.Context, poolAddress string, date time.Time, volume, fees, price float64) error {
	query := `
		UPDATE analytics
		SET close = $3,
		    high = GREATEST(high, $3),
		    low = LEAST(low, $3),
		    volume = volume + $4,
		    fees = fees + $5
		WHERE pool_address = $1 AND date = $2`

	tag, err := db.pool.Exec(ctx, query, poolAddress, date, price, volume, fees)
	if err != nil {
		return fmt.Errorf("failed to update analytics for %s: %w", poolAddress, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertLog records an operation the indexer could not process, with the raw
// payload for later inspection.
func (db *Database) InsertLog(ctx context.Context, data, message []byte) error {
	if _, err := db.pool.Exec(ctx, `INSERT INTO logs (data, message) VALUES ($1, $2)`, data, message); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}
