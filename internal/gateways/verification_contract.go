package gateways

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

// VerificationContractABI holds the events emitted by the self verification contract
const VerificationContractABI = `[
	{"anonymous":false,"type":"event","name":"UserVerified","inputs":[
		{"indexed":true,"name":"user","type":"address"},
		{"indexed":false,"name":"nationality","type":"string"},
		{"indexed":false,"name":"gender","type":"string"},
		{"indexed":false,"name":"age","type":"uint256"},
		{"indexed":false,"name":"timestamp","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"VerificationRevoked","inputs":[
		{"indexed":true,"name":"user","type":"address"},
		{"indexed":false,"name":"timestamp","type":"uint256"}]}
]`

const (
	// ages are stored in an integer column
	maxAge         = math.MaxInt32
	maxUnixSeconds = 253402300799 // 9999-12-31T23:59:59Z
)

var (
	// ErrChainUnavailable is returned when the rpc endpoint cannot be reached or timed out
	ErrChainUnavailable = errors.New("chain unavailable")

	contractABI = mustParseABI(VerificationContractABI)
)

// DecodeError is returned when a log cannot be decoded into a verification event
type DecodeError struct {
	Kind   domain.EventKind
	TxHash string
	Index  uint
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decoding %s log %s#%d: %s", e.Kind, e.TxHash, e.Index, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ETHClient defines the chain calls needed to read the contract logs
type ETHClient interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// VerificationContract reads and decodes the events of the verification contract
type VerificationContract struct {
	client  ETHClient
	address common.Address
}

type userVerifiedData struct {
	Nationality string
	Gender      string
	Age         *big.Int
	Timestamp   *big.Int
}

type verificationRevokedData struct {
	Timestamp *big.Int
}

// NewVerificationContract returns the event source of the contract deployed at address
func NewVerificationContract(client ETHClient, address common.Address) *VerificationContract {
	return &VerificationContract{client: client, address: address}
}

// EventID returns the topic0 of an event kind
func EventID(kind domain.EventKind) (common.Hash, error) {
	ev, ok := contractABI.Events[string(kind)]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event kind <%s>", kind)
	}
	return ev.ID, nil
}

// CurrentHeight returns the latest block number
func (vc *VerificationContract) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := vc.client.CurrentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reading block number: %v", ErrChainUnavailable, err)
	}
	return height, nil
}

// QueryLogs returns the logs of kind emitted by the contract in [from, to], in chain order
func (vc *VerificationContract) QueryLogs(ctx context.Context, kind domain.EventKind, from, to uint64) ([]types.Log, error) {
	eventID, err := EventID(kind)
	if err != nil {
		return nil, err
	}
	logs, err := vc.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{vc.address},
		Topics:    [][]common.Hash{{eventID}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: filtering %s logs [%d, %d]: %v", ErrChainUnavailable, kind, from, to, err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

// Decode turns a raw log of kind into a typed event
func (vc *VerificationContract) Decode(kind domain.EventKind, lg types.Log) (domain.VerificationEvent, error) {
	fail := func(reason string, err error) (domain.VerificationEvent, error) {
		return domain.VerificationEvent{}, &DecodeError{Kind: kind, TxHash: lg.TxHash.Hex(), Index: lg.Index, Reason: reason, Err: err}
	}

	abiEvent, ok := contractABI.Events[string(kind)]
	if !ok {
		return fail("unknown event kind", nil)
	}
	if len(lg.Topics) != 2 {
		return fail(fmt.Sprintf("expected 2 topics, got %d", len(lg.Topics)), nil)
	}
	if lg.Topics[0] != abiEvent.ID {
		return fail("topic does not match event signature", nil)
	}

	ev := domain.VerificationEvent{
		Kind:        kind,
		Wallet:      strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}

	switch kind {
	case domain.EventKindUserVerified:
		var data userVerifiedData
		if err := contractABI.UnpackIntoInterface(&data, abiEvent.Name, lg.Data); err != nil {
			return fail("unpacking data", err)
		}
		if data.Age == nil || !data.Age.IsUint64() || data.Age.Uint64() > maxAge {
			return fail(fmt.Sprintf("age out of range: %v", data.Age), nil)
		}
		ts, err := unixTime(data.Timestamp)
		if err != nil {
			return fail("timestamp", err)
		}
		ev.Nationality = data.Nationality
		ev.Gender = data.Gender
		ev.Age = int(data.Age.Uint64())
		ev.Timestamp = ts
	case domain.EventKindVerificationRevoked:
		var data verificationRevokedData
		if err := contractABI.UnpackIntoInterface(&data, abiEvent.Name, lg.Data); err != nil {
			return fail("unpacking data", err)
		}
		ts, err := unixTime(data.Timestamp)
		if err != nil {
			return fail("timestamp", err)
		}
		ev.Timestamp = ts
	}
	return ev, nil
}

func unixTime(v *big.Int) (time.Time, error) {
	if v == nil || v.Sign() < 0 || !v.IsInt64() || v.Int64() > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("out of range: %v", v)
	}
	return time.Unix(v.Int64(), 0).UTC(), nil
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parsing verification contract abi: %v", err))
	}
	return parsed
}
