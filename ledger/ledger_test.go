package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franklin1312/ChainPass/event"
)

func TestFormatEther(t *testing.T) {
	tenth, _ := new(big.Int).SetString("100000000000000000", 10)
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)

	assert.Equal(t, "0.1", FormatEther(tenth))
	assert.Equal(t, "1.5", FormatEther(oneAndHalf))
	assert.Equal(t, "0", FormatEther(big.NewInt(0)))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestMarkTicketAsUsedCall_RoundTrip(t *testing.T) {
	qrHash := common.HexToHash("0xab07").Hex()

	call := MarkTicketAsUsedCall(7, qrHash)
	tokenID, hash, ok := MarkTicketAsUsedArgs(call)

	require.True(t, ok)
	assert.Equal(t, uint64(7), tokenID)
	assert.Equal(t, qrHash, hash)

	_, err := contractABI.Pack(call.Method, call.Args...)
	require.NoError(t, err)
}

type dataError struct {
	data string
}

func (e dataError) Error() string          { return "execution reverted" }
func (e dataError) ErrorData() interface{} { return e.data }

func TestAsRevert(t *testing.T) {
	alreadyUsed := contractABI.Errors["AlreadyUsed"]
	reasonData, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packedReason, err := abi.Arguments{{Type: reasonData}}.Pack("Event inactive")
	require.NoError(t, err)
	errorSelector := []byte{0x08, 0xc3, 0x79, 0xa0}

	testCases := []struct {
		name   string
		err    error
		code   string
		reason string
	}{
		{
			name: "custom error in data",
			err:  dataError{data: "0x" + common.Bytes2Hex(alreadyUsed.ID[:4])},
			code: "AlreadyUsed",
		},
		{
			name:   "reason string in data",
			err:    dataError{data: "0x" + common.Bytes2Hex(append(errorSelector, packedReason...))},
			reason: "Event inactive",
		},
		{
			name: "custom error name in message",
			err:  errors.New("execution reverted: BadQRHash()"),
			code: "BadQRHash",
		},
		{
			name:   "plain message",
			err:    errors.New("execution reverted: Not owner"),
			reason: "Not owner",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := asRevert(fmt.Errorf("estimating: %w", tc.err))

			var revertErr *RevertError
			require.ErrorAs(t, got, &revertErr)
			assert.Equal(t, tc.code, revertErr.Code)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, revertErr.Reason)
			}
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		netErr := errors.New("connection refused")
		assert.Equal(t, netErr, asRevert(netErr))
	})
}

func TestDecodeLog_TicketMinted(t *testing.T) {
	abiEvent := contractABI.Events["TicketMinted"]
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	qrHash := common.HexToHash("0x1234")

	data, err := abiEvent.Inputs.NonIndexed().Pack([32]byte(qrHash))
	require.NoError(t, err)

	observedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := types.Log{
		Topics: []common.Hash{
			abiEvent.ID,
			common.BigToHash(big.NewInt(7)),
			common.BigToHash(big.NewInt(1)),
			common.BytesToHash(buyer.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xfeed"),
		Index:       2,
	}

	decoded, err := DecodeLog(l, observedAt)
	require.NoError(t, err)

	minted, ok := decoded.(event.TicketMinted)
	require.True(t, ok, "unexpected type %T", decoded)
	assert.Equal(t, uint64(7), minted.TokenID)
	assert.Equal(t, uint64(1), minted.EventID)
	assert.Equal(t, buyer.Hex(), minted.Buyer)
	assert.Equal(t, qrHash.Hex(), minted.QRHash)
	assert.Equal(t, event.NewHeader(l.TxHash.Hex(), 2, 100, observedAt), minted.Header)
}

func TestDecodeLog_TicketSold(t *testing.T) {
	abiEvent := contractABI.Events["TicketSold"]
	seller := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	price, _ := new(big.Int).SetString("200000000000000000", 10)
	fee, _ := new(big.Int).SetString("5000000000000000", 10)

	data, err := abiEvent.Inputs.NonIndexed().Pack(price, fee)
	require.NoError(t, err)

	decoded, err := DecodeLog(types.Log{
		Topics: []common.Hash{
			abiEvent.ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(seller.Bytes()),
			common.BytesToHash(buyer.Bytes()),
		},
		Data: data,
	}, time.Now())
	require.NoError(t, err)

	sold, ok := decoded.(event.TicketSold)
	require.True(t, ok, "unexpected type %T", decoded)
	assert.Equal(t, uint64(7), sold.TokenID)
	assert.Equal(t, seller.Hex(), sold.Seller)
	assert.Equal(t, buyer.Hex(), sold.Buyer)
	assert.Equal(t, "0.2", sold.Price)
	assert.Equal(t, "0.005", sold.Fee)
}

func TestDecodeLog_IndexedOnly(t *testing.T) {
	abiEvent := contractABI.Events["TicketUsed"]

	decoded, err := DecodeLog(types.Log{
		Topics: []common.Hash{abiEvent.ID, common.BigToHash(big.NewInt(9))},
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, uint64(9), decoded.(event.TicketUsed).TokenID)
}

func TestDecodeLog_UnknownTopic(t *testing.T) {
	_, err := DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}, time.Now())
	assert.Error(t, err)
}
