package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const depthPollInterval = time.Second

type Config struct {
	RPCURL          string
	WSURL           string
	ContractAddress string
	// PrivateKey is the hex encoded signing key. Empty means read-only.
	PrivateKey string
	// ChainID is queried from the node when zero.
	ChainID int64
}

type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	wsURL    string

	auth     *bind.TransactOpts
	submitMu sync.Mutex
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing ledger rpc: %w", err)
	}

	c, err := newClient(ctx, eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}

	return c, nil
}

func newClient(ctx context.Context, eth *ethclient.Client, cfg Config) (*Client, error) {
	address := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		eth:      eth,
		contract: bind.NewBoundContract(address, contractABI, eth, eth, eth),
		address:  address,
		wsURL:    cfg.WSURL,
	}

	if cfg.PrivateKey == "" {
		return c, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting chain id: %w", err)
		}
	}

	c.auth, err = bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}

	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber is the current head of the chain.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting block number: %w", err)
	}
	return head, nil
}

// callOpts reads the state as of block, or the latest state when block is 0.
func callOpts(ctx context.Context, block uint64) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx}
	if block != 0 {
		opts.BlockNumber = new(big.Int).SetUint64(block)
	}
	return opts
}

func (c *Client) ReadEvent(ctx context.Context, eventID uint64, block uint64) (EventSnapshot, error) {
	var out []any
	err := c.contract.Call(callOpts(ctx, block), &out, "getEventDetails", new(big.Int).SetUint64(eventID))
	if err != nil {
		return EventSnapshot{}, readErr(err, "reading event %d", eventID)
	}

	snapshot := EventSnapshot{
		EventID:          eventID,
		Name:             *abi.ConvertType(out[0], new(string)).(*string),
		Date:             *abi.ConvertType(out[1], new(string)).(*string),
		Venue:            *abi.ConvertType(out[2], new(string)).(*string),
		TicketPrice:      FormatEther(*abi.ConvertType(out[3], new(*big.Int)).(**big.Int)),
		TotalSupply:      (*abi.ConvertType(out[4], new(*big.Int)).(**big.Int)).Uint64(),
		TicketsMinted:    (*abi.ConvertType(out[5], new(*big.Int)).(**big.Int)).Uint64(),
		MaxResalePercent: (*abi.ConvertType(out[6], new(*big.Int)).(**big.Int)).Uint64(),
		IsActive:         *abi.ConvertType(out[7], new(bool)).(*bool),
	}

	// Unknown ids come back as zero values on contracts that do not revert.
	if snapshot.Name == "" && snapshot.TotalSupply == 0 {
		return EventSnapshot{}, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}

	return snapshot, nil
}

func (c *Client) ReadTicket(ctx context.Context, tokenID uint64, block uint64) (TicketSnapshot, error) {
	var out []any
	err := c.contract.Call(callOpts(ctx, block), &out, "tickets", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return TicketSnapshot{}, readErr(err, "reading ticket %d", tokenID)
	}

	snapshot := TicketSnapshot{
		TokenID:       tokenID,
		EventID:       (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(),
		SeatNumber:    *abi.ConvertType(out[1], new(string)).(*string),
		OriginalPrice: FormatEther(*abi.ConvertType(out[2], new(*big.Int)).(**big.Int)),
		IsUsed:        *abi.ConvertType(out[3], new(bool)).(*bool),
		QRHash:        common.Hash(*abi.ConvertType(out[4], new([32]byte)).(*[32]byte)).Hex(),
		TransferCount: (*abi.ConvertType(out[5], new(*big.Int)).(**big.Int)).Uint64(),
	}

	if snapshot.EventID == 0 {
		return TicketSnapshot{}, fmt.Errorf("ticket %d: %w", tokenID, ErrNotFound)
	}

	return snapshot, nil
}

func (c *Client) OwnerOf(ctx context.Context, tokenID uint64, block uint64) (string, error) {
	var out []any
	err := c.contract.Call(callOpts(ctx, block), &out, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", readErr(err, "reading owner of %d", tokenID)
	}

	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if owner == (common.Address{}) {
		return "", fmt.Errorf("owner of %d: %w", tokenID, ErrNotFound)
	}

	return owner.Hex(), nil
}

// EstimateGas dry-runs the call against the latest state. A revert here means
// the ledger would refuse the transaction.
func (c *Client) EstimateGas(ctx context.Context, call Call) (uint64, error) {
	if c.auth == nil {
		return 0, ErrReadOnly
	}

	data, err := contractABI.Pack(call.Method, call.Args...)
	if err != nil {
		return 0, fmt.Errorf("packing %s: %w", call.Method, err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.auth.From,
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("estimating gas for %s: %w", call.Method, asRevert(err))
	}

	return gas, nil
}

// Submit signs and broadcasts the call. Submissions are serialized so that
// concurrent callers never pick the same nonce.
func (c *Client) Submit(ctx context.Context, call Call, gasLimit uint64) (PendingTx, error) {
	if c.auth == nil {
		return PendingTx{}, ErrReadOnly
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	opts := *c.auth
	opts.Context = ctx
	opts.GasLimit = gasLimit

	tx, err := c.contract.Transact(&opts, call.Method, call.Args...)
	if err != nil {
		return PendingTx{}, fmt.Errorf("submitting %s: %w", call.Method, asRevert(err))
	}

	log.FromContext(ctx).
		WithField("tx_hash", tx.Hash().Hex()).
		WithField("method", call.Method).
		Info("Transaction submitted")

	return PendingTx{Hash: tx.Hash().Hex(), call: call, tx: tx}, nil
}

// AwaitConfirmation blocks until the transaction is mined and buried under
// the requested number of blocks, or ctx ends.
func (c *Client) AwaitConfirmation(ctx context.Context, pending PendingTx, confirmations uint64) (Receipt, error) {
	if pending.tx == nil {
		return Receipt{}, fmt.Errorf("transaction %s was not submitted by this client", pending.Hash)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, pending.tx)
	if err != nil {
		return Receipt{}, waitErr(err, pending.Hash)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return Receipt{}, fmt.Errorf("transaction %s failed: %w", pending.Hash, c.replay(ctx, pending, receipt))
	}

	if err := c.awaitDepth(ctx, receipt.BlockNumber.Uint64(), confirmations); err != nil {
		return Receipt{}, waitErr(err, pending.Hash)
	}

	return Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *Client) awaitDepth(ctx context.Context, minedAt uint64, confirmations uint64) error {
	if confirmations <= 1 {
		return nil
	}

	ticker := time.NewTicker(depthPollInterval)
	defer ticker.Stop()

	for {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("getting block number: %w", err)
		}
		if head >= minedAt && head-minedAt+1 >= confirmations {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// replay re-executes a failed transaction on the state it was mined on top of
// to recover the revert reason.
func (c *Client) replay(ctx context.Context, pending PendingTx, receipt *types.Receipt) error {
	data, err := contractABI.Pack(pending.call.Method, pending.call.Args...)
	if err != nil {
		return &RevertError{}
	}

	parent := new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	_, err = c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.auth.From,
		To:   &c.address,
		Gas:  pending.tx.Gas(),
		Data: data,
	}, parent)

	if err := asRevert(err); IsRevert(err) {
		return err
	}

	return &RevertError{}
}

func readErr(err error, format string, args ...any) error {
	if IsRevert(asRevert(err)) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func waitErr(err error, hash string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("transaction %s: %w", hash, ErrConfirmationTimeout)
	}
	return fmt.Errorf("waiting for transaction %s: %w", hash, err)
}
