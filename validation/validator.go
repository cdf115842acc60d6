// Package validation redeems tickets at the gate. The mirror is only a fast
// pre-check; the ledger decides, and a ticket is marked used in the mirror
// only once the ledger's TicketUsed event is applied.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/ledger"
	"github.com/Franklin1312/ChainPass/metrics"
)

type Outcome string

const (
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeNotSynced    Outcome = "not_synced"
	OutcomeAlreadyUsed  Outcome = "already_used"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFailed       Outcome = "failed"
	OutcomePending      Outcome = "pending"
	OutcomeValidated    Outcome = "validated"
)

type Request struct {
	TokenID uint64 `json:"tokenId"`
	QRHash  string `json:"qrHash"`
}

type Result struct {
	Outcome Outcome               `json:"-"`
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	TxHash  string                `json:"txHash,omitempty"`
	Block   uint64                `json:"block,omitempty"`
	Ticket  *entity.TicketSummary `json:"ticket,omitempty"`

	// Err is the cause of a rejected or failed validation.
	Err error `json:"-"`
}

type Ledger interface {
	EstimateGas(ctx context.Context, call ledger.Call) (uint64, error)
	Submit(ctx context.Context, call ledger.Call, gasLimit uint64) (ledger.PendingTx, error)
	AwaitConfirmation(ctx context.Context, tx ledger.PendingTx, confirmations uint64) (ledger.Receipt, error)
}

type Store interface {
	GetTicket(ctx context.Context, tokenID uint64) (entity.Ticket, error)
}

type Config struct {
	ConfirmationTimeout time.Duration
	Confirmations       uint64
}

type Validator struct {
	ledger Ledger
	store  Store
	config Config
}

func NewValidator(l Ledger, s Store, config Config) *Validator {
	if config.ConfirmationTimeout == 0 {
		config.ConfirmationTimeout = 2 * time.Minute
	}
	if config.Confirmations == 0 {
		config.Confirmations = 1
	}

	return &Validator{
		ledger: l,
		store:  s,
		config: config,
	}
}

func (v *Validator) Validate(ctx context.Context, req Request) Result {
	result := v.validate(ctx, req)
	metrics.Validations.WithLabelValues(string(result.Outcome)).Inc()

	logger := log.FromContext(ctx).
		WithField("token_id", req.TokenID).
		WithField("outcome", result.Outcome)
	if result.Err != nil {
		logger = logger.WithError(result.Err)
	}
	logger.Info("Ticket validation finished")

	return result
}

func (v *Validator) validate(ctx context.Context, req Request) Result {
	if req.TokenID == 0 || req.QRHash == "" {
		return Result{Outcome: OutcomeInvalidInput, Message: "tokenId and qrHash are required."}
	}

	ticket, err := v.store.GetTicket(ctx, req.TokenID)
	if errors.Is(err, entity.ErrNotFound) {
		return Result{Outcome: OutcomeNotSynced, Message: "Ticket not found. It may not have been synced yet."}
	}
	if err != nil {
		return failed(fmt.Errorf("reading ticket %d from mirror: %w", req.TokenID, err))
	}

	summary := ticket.Summary()

	if ticket.IsUsed {
		return Result{
			Outcome: OutcomeAlreadyUsed,
			Message: "Ticket has already been used. Entry denied.",
			Ticket:  &summary,
		}
	}

	// Hex hashes compare case-insensitively.
	if !strings.EqualFold(ticket.QRHash, req.QRHash) {
		return Result{Outcome: OutcomeMismatch, Message: "QR hash mismatch. Invalid ticket."}
	}

	call := ledger.MarkTicketAsUsedCall(req.TokenID, req.QRHash)

	gas, err := v.ledger.EstimateGas(ctx, call)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Message: chainErrorMessage(err), Err: err}
	}

	tx, err := v.ledger.Submit(ctx, call, gas)
	if err != nil {
		return ledgerFailure(err)
	}

	logger := log.FromContext(ctx).WithField("token_id", req.TokenID).WithField("tx_hash", tx.Hash)
	logger.Info("markTicketAsUsed sent")

	// The transaction is out. A caller going away from here on must not turn
	// an unknown outcome into a failure.
	submittedAt := time.Now()
	awaitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.config.ConfirmationTimeout)
	defer cancel()

	receipt, err := v.ledger.AwaitConfirmation(awaitCtx, tx, v.config.Confirmations)
	if errors.Is(err, ledger.ErrConfirmationTimeout) {
		return Result{
			Outcome: OutcomePending,
			Message: "Transaction sent but not yet confirmed. Check the ticket status before retrying.",
			TxHash:  tx.Hash,
			Ticket:  &summary,
			Err:     err,
		}
	}
	if err != nil {
		result := ledgerFailure(err)
		result.TxHash = tx.Hash
		return result
	}

	metrics.ConfirmationDuration.Observe(time.Since(submittedAt).Seconds())
	logger.WithField("block", receipt.BlockNumber).Info("markTicketAsUsed confirmed")

	return Result{
		Outcome: OutcomeValidated,
		Success: true,
		Message: "Ticket validated. Entry granted.",
		TxHash:  receipt.TxHash,
		Block:   receipt.BlockNumber,
		Ticket:  &summary,
	}
}

// Status is the non-consuming check of a ticket, read from the mirror only.
func (v *Validator) Status(ctx context.Context, tokenID uint64) (entity.TicketStatus, error) {
	ticket, err := v.store.GetTicket(ctx, tokenID)
	if err != nil {
		return entity.TicketStatus{}, err
	}

	return ticket.Status(), nil
}

func ledgerFailure(err error) Result {
	if ledger.IsRevert(err) {
		return Result{Outcome: OutcomeRejected, Message: chainErrorMessage(err), Err: err}
	}
	return failed(err)
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Message: chainErrorMessage(err), Err: err}
}

func chainErrorMessage(err error) string {
	var revert *ledger.RevertError
	if errors.As(err, &revert) {
		switch {
		case revert.Reason != "":
			return "Contract error: " + revert.Reason
		case revert.Code == ledger.CodeAlreadyUsed:
			return "Already used on-chain."
		case revert.Code == ledger.CodeBadQRHash:
			return "QR hash rejected by contract."
		case revert.Code == ledger.CodeBadTokenID, revert.Code == ledger.CodeNonexistentToken:
			return "Token does not exist on-chain."
		}
	}

	if strings.Contains(err.Error(), "insufficient funds") {
		return "Backend wallet has insufficient ETH for gas."
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error during on-chain validation."
}
