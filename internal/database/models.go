package database

import (
	"time"
)

// Token is a launched (or launching) token. Until its deploy operation is
// finalized the address column holds the deploy transaction hash; the indexer
// rewrites it to the on-chain address once the NEW_PAIR event arrives.
type Token struct {
	Address         string     `db:"address"`
	Name            string     `db:"name"`
	Symbol          string     `db:"symbol"`
	Decimals        int32      `db:"decimals"`
	Description     *string    `db:"description"`
	Telegram        *string    `db:"telegram"`
	Twitter         *string    `db:"twitter"`
	Website         *string    `db:"website"`
	ImageURI        *string    `db:"image_uri"`
	CreatedBy       string     `db:"created_by"`
	NSFW            bool       `db:"nsfw"`
	Completed       bool       `db:"completed"`
	CompletedAt     *time.Time `db:"completed_at"`
	DusaPoolAddress *string    `db:"dusa_pool_address"`
	CreatedAt       time.Time  `db:"created_at"`
}

// Pool is a bonding-curve pool holding one token against WMAS.
type Pool struct {
	Address      string    `db:"address"`
	TokenAddress string    `db:"token_address"`
	CreatedAt    time.Time `db:"created_at"`
}

// Swap is one finalized swap against a bonding pool. AmountIn includes the
// protocol fee; FeesIn is the fee portion. Raw amounts are stored as NUMERIC
// to keep full u256 precision.
type Swap struct {
	TxHash      string `db:"tx_hash"`
	PoolAddress string `db:"pool_address"`
	// TokenAddress is not a swap column; it seeds the pool row when the swap
	// is the first contact with a pool.
	TokenAddress   string    `db:"-"`
	UserAddress    string    `db:"user_address"`
	IndexInSlot    int32     `db:"index_in_slot"`
	SwapForY       bool      `db:"swap_for_y"`
	AmountIn       string    `db:"amount_in"`
	AmountOut      string    `db:"amount_out"`
	FeesIn         string    `db:"fees_in"`
	USDValue       float64   `db:"usd_value"`
	FeesUSDValue   float64   `db:"fees_usd_value"`
	ExecutionPrice float64   `db:"execution_price"`
	AfterPrice     float64   `db:"after_price"`
	AfterReserve0  string    `db:"after_reserve0"`
	AfterReserve1  string    `db:"after_reserve1"`
	Timestamp      time.Time `db:"timestamp"`
}

// Analytics is one OHLCV candle on a 5 minute tick, keyed by pool and tick
// start.
type Analytics struct {
	PoolAddress string    `db:"pool_address"`
	Date        time.Time `db:"date"`
	Open        float64   `db:"open"`
	Close       float64   `db:"close"`
	High        float64   `db:"high"`
	Low         float64   `db:"low"`
	Volume      float64   `db:"volume"`
	Fees        float64   `db:"fees"`
	Volume0     string    `db:"volume0"`
	Volume1     string    `db:"volume1"`
}

// Log is a dead-letter row for operations the indexer could not process.
type Log struct {
	ID        int64     `db:"id"`
	Data      []byte    `db:"data"`
	Message   []byte    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}
