// Package dusa wraps the Dusa AMM contracts: the factory, the router and the
// liquidity-book pairs a completed launch pool migrates into. Reads go through
// contract datastores, writes are signed operations through the node client.
package dusa

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/node"
)

var ErrPairNotFound = errors.New("pair not found")

// Operation budgets. Pair creation carries storage coins for the new
// contract; everything else only pays gas.
const (
	createPairCoins = 50 * 1_000_000_000

	defaultFee    = 10_000_000
	defaultMaxGas = 4_294_167_295
)

type Client struct {
	node   *node.Client
	logger zerolog.Logger
}

func New(n *node.Client, logger zerolog.Logger) *Client {
	return &Client{
		node:   n,
		logger: logger.With().Str("component", "dusa").Logger(),
	}
}

// pairKey is the factory datastore key holding a pair address. Token
// addresses are stored in lexicographic order.
func pairKey(tokenA, tokenB string, binStep uint32) string {
	if strings.Compare(tokenB, tokenA) < 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return fmt.Sprintf("PAIR_INFORMATION::%s:%s:%d", tokenA, tokenB, binStep)
}

// FindPair resolves the liquidity-book pair for a token couple at the given
// bin step, or ErrPairNotFound if the factory has none.
func (c *Client) FindPair(ctx context.Context, tokenA, tokenB string, binStep uint32) (string, error) {
	values, err := c.node.DatastoreEntries(ctx, config.DusaFactoryAddress, []string{pairKey(tokenA, tokenB, binStep)})
	if err != nil {
		return "", fmt.Errorf("factory lookup: %w", err)
	}
	if len(values[0]) == 0 {
		return "", ErrPairNotFound
	}
	return string(values[0]), nil
}

// CreatePair submits a createLBPair operation and returns its id. The pair
// address becomes resolvable through FindPair once the operation finalizes.
func (c *Client) CreatePair(ctx context.Context, tokenA, tokenB string, activeID, binStep uint32) (string, error) {
	parameter := node.NewArgs().
		AddString(tokenA).
		AddString(tokenB).
		AddU32(activeID).
		AddU32(binStep).
		Bytes()

	opID, err := c.node.CallContract(ctx, node.ContractCall{
		Target:    config.DusaFactoryAddress,
		Function:  "createLBPair",
		Parameter: parameter,
		Coins:     createPairCoins,
		Fee:       defaultFee,
		MaxGas:    defaultMaxGas,
	})
	if err != nil {
		return "", fmt.Errorf("create pair %s/%s: %w", tokenA, tokenB, err)
	}

	c.logger.Info().
		Str("tokenA", tokenA).
		Str("tokenB", tokenB).
		Uint32("binStep", binStep).
		Str("operation", opID).
		Msg("Pair creation submitted")
	return opID, nil
}

// BalanceOf reads an MRC-20 balance from the token's datastore.
func (c *Client) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	values, err := c.node.DatastoreEntries(ctx, token, []string{"BALANCE" + owner})
	if err != nil {
		return nil, fmt.Errorf("balance of %s on %s: %w", owner, token, err)
	}
	if len(values[0]) == 0 {
		return big.NewInt(0), nil
	}
	return node.U256FromBytes(values[0]), nil
}

// Approve raises the router's MRC-20 allowance on a token.
func (c *Client) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	parameter := node.NewArgs().
		AddString(spender).
		AddU256(amount).
		Bytes()

	opID, err := c.node.CallContract(ctx, node.ContractCall{
		Target:    token,
		Function:  "increaseAllowance",
		Parameter: parameter,
		Fee:       defaultFee,
		MaxGas:    defaultMaxGas,
	})
	if err != nil {
		return "", fmt.Errorf("approve %s on %s: %w", spender, token, err)
	}
	return opID, nil
}

// BinSupplies reads the total liquidity supply of each bin id on a pair. Bins
// that were never minted into read as zero.
func (c *Client) BinSupplies(ctx context.Context, pair string, ids []uint64) ([]*big.Int, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("total_supplies::%d", id)
	}

	values, err := c.node.DatastoreEntries(ctx, pair, keys)
	if err != nil {
		return nil, fmt.Errorf("bin supplies on %s: %w", pair, err)
	}

	supplies := make([]*big.Int, len(values))
	for i, v := range values {
		if len(v) == 0 {
			supplies[i] = big.NewInt(0)
			continue
		}
		supplies[i] = node.U256FromBytes(v)
	}
	return supplies, nil
}

// AddLiquidityParams is one addLiquidity call on the router. Distributions
// are fixed-point shares scaled by 1e18 and must each sum to at most 1.
type AddLiquidityParams struct {
	TokenX  string
	TokenY  string
	BinStep uint32

	AmountX    *big.Int
	AmountY    *big.Int
	AmountXMin *big.Int
	AmountYMin *big.Int

	ActiveIDDesired uint64
	IDSlippage      uint64

	DeltaIDs      []int64
	DistributionX []uint64
	DistributionY []uint64

	To       string
	Deadline uint64
}

// AddLiquidity submits one addLiquidity operation and returns its id.
func (c *Client) AddLiquidity(ctx context.Context, p AddLiquidityParams) (string, error) {
	parameter := node.NewArgs().
		AddString(p.TokenX).
		AddString(p.TokenY).
		AddU32(p.BinStep).
		AddU256(p.AmountX).
		AddU256(p.AmountY).
		AddU256(p.AmountXMin).
		AddU256(p.AmountYMin).
		AddU64(p.ActiveIDDesired).
		AddU64(p.IDSlippage).
		AddI64Slice(p.DeltaIDs).
		AddU64Slice(p.DistributionX).
		AddU64Slice(p.DistributionY).
		AddString(p.To).
		AddU64(p.Deadline).
		Bytes()

	opID, err := c.node.CallContract(ctx, node.ContractCall{
		Target:    config.DusaRouterAddress,
		Function:  "addLiquidity",
		Parameter: parameter,
		Fee:       defaultFee,
		MaxGas:    defaultMaxGas,
	})
	if err != nil {
		return "", fmt.Errorf("add liquidity on %s/%s: %w", p.TokenX, p.TokenY, err)
	}
	return opID, nil
}

// AwaitFinal blocks until an operation reaches final status.
func (c *Client) AwaitFinal(ctx context.Context, opID string) error {
	return c.node.AwaitFinal(ctx, opID)
}
