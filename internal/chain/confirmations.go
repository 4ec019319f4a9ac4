package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrTransactionFailed = errors.New("transaction failed")

const defaultPollInterval = time.Second

// Waiter blocks until transactions are buried under enough blocks.
type Waiter struct {
	client   Client
	interval time.Duration
	logger   *slog.Logger
}

func NewWaiter(client Client, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Waiter{
		client:   client,
		interval: interval,
		logger:   logger.Named("confirmations"),
	}
}

// Wait returns the receipt of tx once its block has the requested number of confirmations,
// counting the inclusion block as the first. Anything below one means "mined". The receipt
// is fetched again on every poll so a transaction dropped by a reorg keeps the wait going.
func (w *Waiter) Wait(ctx context.Context, tx *types.Transaction, confirmations int) (*types.Receipt, error) {
	target := uint64(max(confirmations, 1))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, tx.Hash())
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s mined with status %d", ErrTransactionFailed, tx.Hash().Hex(), receipt.Status)
			}

			head, err := w.client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get block number: %w", err)
			}

			got := Confirmations(head, receipt.BlockNumber.Uint64())
			if got >= target {
				return receipt, nil
			}

			w.logger.
				With("tx_hash", tx.Hash().Hex()).
				With("confirmations", got).
				With("target", target).
				Debug("waiting for confirmations")
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to get receipt for %s: %w", tx.Hash().Hex(), err)
		default:
			w.logger.With("tx_hash", tx.Hash().Hex()).Debug("transaction not yet mined")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stopped waiting for %s: %w", tx.Hash().Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Confirmations counts the blocks from block up to head inclusive.
func Confirmations(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block + 1
}
