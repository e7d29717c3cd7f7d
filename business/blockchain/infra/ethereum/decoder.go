package ethereum

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fd1az/headlag-exporter/business/blockchain/app"
	"github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/internal/apperror"
)

// Decoder parses newHeads notifications.
type Decoder struct{}

var _ app.HeadDecoder = Decoder{}

// NewDecoder creates a Decoder.
func NewDecoder() Decoder {
	return Decoder{}
}

// Decode implements app.HeadDecoder. Every failure is DECODE_FAILED.
func (Decoder) Decode(raw []byte) (domain.BlockHead, error) {
	var msg notification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BlockHead{}, decodeError("malformed json", err)
	}
	if msg.Params == nil || len(msg.Params.Result) == 0 || string(msg.Params.Result) == "null" {
		return domain.BlockHead{}, decodeError("missing params.result", nil)
	}

	var f headFields
	if err := json.Unmarshal(msg.Params.Result, &f); err != nil {
		return domain.BlockHead{}, decodeError("malformed result", err)
	}

	number, err := quantity("number", f.Number)
	if err != nil {
		return domain.BlockHead{}, err
	}
	timestamp, err := quantity("timestamp", f.Timestamp)
	if err != nil {
		return domain.BlockHead{}, err
	}
	gasUsed, err := quantity("gasUsed", f.GasUsed)
	if err != nil {
		return domain.BlockHead{}, err
	}
	gasLimit, err := quantity("gasLimit", f.GasLimit)
	if err != nil {
		return domain.BlockHead{}, err
	}
	if timestamp > 1<<63-1 {
		return domain.BlockHead{}, decodeError("timestamp out of range", nil)
	}
	if f.Miner == nil || strings.TrimSpace(*f.Miner) == "" {
		return domain.BlockHead{}, decodeError("missing miner", nil)
	}

	return domain.BlockHead{
		Number:    number,
		Timestamp: int64(timestamp),
		Miner:     *f.Miner,
		GasUsed:   gasUsed,
		GasLimit:  gasLimit,
		Hash:      f.Hash,
	}, nil
}

// quantity decodes a 0x-prefixed hex quantity. Leading zeros are accepted
// even though strict JSON-RPC encoding forbids them.
func quantity(field string, v *string) (uint64, error) {
	if v == nil {
		return 0, decodeError("missing "+field, nil)
	}

	n, err := hexutil.DecodeUint64(*v)
	if errors.Is(err, hexutil.ErrLeadingZero) {
		digits := strings.TrimLeft((*v)[2:], "0")
		if digits == "" {
			digits = "0"
		}
		n, err = hexutil.DecodeUint64("0x" + digits)
	}
	if err != nil {
		return 0, decodeError(fmt.Sprintf("invalid %s %q", field, *v), err)
	}
	return n, nil
}

func decodeError(context string, cause error) error {
	opts := []apperror.Option{apperror.WithContext(context)}
	if cause != nil {
		opts = append(opts, apperror.WithCause(cause))
	}
	return apperror.New(apperror.CodeDecodeFailed, opts...)
}
