package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/domain/wallet"
	"github.com/marketplace-settlement/internal/platform/gateway"
)

// respondSettlementError maps domain errors to HTTP statuses. Unknown
// errors read as 500 without leaking internals.
func respondSettlementError(c *gin.Context, logger *slog.Logger, err error) {
	var escrowNotFound escrow.ErrEscrowNotFound
	var walletNotFound wallet.ErrWalletNotFound
	var payoutNotFound payout.ErrPayoutNotFound
	var escrowConflict escrow.ErrConcurrentModification
	var walletConflict wallet.ErrConcurrentModification

	switch {
	case errors.As(err, &escrowNotFound),
		errors.As(err, &walletNotFound),
		errors.As(err, &payoutNotFound):
		RespondNotFound(c, err.Error())

	case errors.Is(err, gateway.ErrDeclined):
		RespondPaymentRequired(c, err.Error())

	case errors.As(err, &escrowConflict),
		errors.As(err, &walletConflict):
		RespondConflict(c, "The resource was modified concurrently, retry the request")

	case errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, escrow.ErrDisputed),
		errors.Is(err, escrow.ErrNotDisputed),
		errors.Is(err, escrow.ErrAlreadyFunded),
		errors.Is(err, wallet.ErrWalletLocked),
		errors.Is(err, wallet.ErrInsufficientFunds):
		RespondConflict(c, err.Error())

	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInsufficientHeld),
		errors.Is(err, escrow.ErrInvalidResolution),
		errors.Is(err, payout.ErrInvalidAmount):
		RespondUnprocessable(c, err.Error())

	default:
		logger.Error("Settlement operation failed", "error", err)
		RespondInternalError(c)
	}
}
