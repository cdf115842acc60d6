package ledger

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found on ledger")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrReadOnly            = errors.New("ledger client has no signing key")
)

const etherDecimals = 18

type EventSnapshot struct {
	EventID          uint64
	Name             string
	Date             string
	Venue            string
	TicketPrice      string
	TotalSupply      uint64
	TicketsMinted    uint64
	MaxResalePercent uint64
	IsActive         bool
}

type TicketSnapshot struct {
	TokenID       uint64
	EventID       uint64
	SeatNumber    string
	OriginalPrice string
	IsUsed        bool
	QRHash        string
	TransferCount uint64
}

// Call is a state-changing contract method with its packed arguments.
type Call struct {
	Method string
	Args   []any
}

const MethodMarkTicketAsUsed = "markTicketAsUsed"

func MarkTicketAsUsedCall(tokenID uint64, qrHash string) Call {
	return Call{
		Method: MethodMarkTicketAsUsed,
		Args: []any{
			new(big.Int).SetUint64(tokenID),
			[32]byte(common.HexToHash(qrHash)),
		},
	}
}

// MarkTicketAsUsedArgs unpacks a call built by MarkTicketAsUsedCall.
func MarkTicketAsUsedArgs(call Call) (tokenID uint64, qrHash string, ok bool) {
	if call.Method != MethodMarkTicketAsUsed || len(call.Args) != 2 {
		return 0, "", false
	}
	id, ok := call.Args[0].(*big.Int)
	if !ok {
		return 0, "", false
	}
	hash, ok := call.Args[1].([32]byte)
	if !ok {
		return 0, "", false
	}
	return id.Uint64(), common.Hash(hash).Hex(), true
}

type PendingTx struct {
	Hash string

	call Call
	tx   *types.Transaction
}

type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// FormatEther renders a wei amount as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
