package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	CodeAlreadyUsed      = "AlreadyUsed"
	CodeBadQRHash        = "BadQRHash"
	CodeBadTokenID       = "BadTokenId"
	CodeNonexistentToken = "ERC721NonexistentToken"
)

// RevertError is the ledger refusing a call. Code holds the name of a custom
// contract error, Reason a plain revert string.
type RevertError struct {
	Code   string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Code != "" {
		return "execution reverted: " + e.Code
	}
	if e.Reason != "" {
		return "execution reverted: " + e.Reason
	}
	return "execution reverted"
}

// IsRevert reports whether err carries a ledger revert.
func IsRevert(err error) bool {
	var revertErr *RevertError
	return errors.As(err, &revertErr)
}

// asRevert turns a node error into a *RevertError when the node reports that
// execution reverted. Any other error is returned unchanged.
func asRevert(err error) error {
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			return decodeRevert(data)
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
		for name := range contractABI.Errors {
			if strings.Contains(reason, name) {
				return &RevertError{Code: name}
			}
		}
		return &RevertError{Reason: reason}
	}

	return err
}

func revertData(v any) ([]byte, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	data, err := hexutil.Decode(s)
	if err != nil || len(data) < 4 {
		return nil, false
	}
	return data, true
}

func decodeRevert(data []byte) *RevertError {
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &RevertError{Reason: reason}
	}

	for name, e := range contractABI.Errors {
		if bytes.Equal(e.ID[:4], data[:4]) {
			return &RevertError{Code: name}
		}
	}

	return &RevertError{Reason: fmt.Sprintf("unknown error %s", hexutil.Encode(data[:4]))}
}
