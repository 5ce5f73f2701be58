package gateways

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkreputation/verification-node/internal/core/domain"
)

var (
	contractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	userAddress     = common.HexToAddress("0x00000000000000000000000000000000000ABC12")
)

type fakeClient struct {
	height  uint64
	logs    []types.Log
	err     error
	queries []ethereum.FilterQuery
}

func (f *fakeClient) CurrentBlock(context.Context) (uint64, error) {
	return f.height, f.err
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, f.err
}

func userVerifiedLog(t *testing.T, user common.Address, nationality, gender string, age, ts int64, block uint64, index uint) types.Log {
	t.Helper()
	data, err := contractABI.Events["UserVerified"].Inputs.NonIndexed().Pack(nationality, gender, big.NewInt(age), big.NewInt(ts))
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddress,
		Topics:      []common.Hash{contractABI.Events["UserVerified"].ID, common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func revokedLog(t *testing.T, user common.Address, ts int64, block uint64, index uint) types.Log {
	t.Helper()
	data, err := contractABI.Events["VerificationRevoked"].Inputs.NonIndexed().Pack(big.NewInt(ts))
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddress,
		Topics:      []common.Hash{contractABI.Events["VerificationRevoked"].ID, common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}

func TestEventIDMatchesSignature(t *testing.T) {
	id, err := EventID(domain.EventKindUserVerified)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash([]byte("UserVerified(address,string,string,uint256,uint256)")), id)

	id, err = EventID(domain.EventKindVerificationRevoked)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash([]byte("VerificationRevoked(address,uint256)")), id)

	_, err = EventID("Unknown")
	assert.Error(t, err)
}

func TestDecodeUserVerified(t *testing.T) {
	vc := NewVerificationContract(&fakeClient{}, contractAddress)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ev, err := vc.Decode(domain.EventKindUserVerified, userVerifiedLog(t, userAddress, "INDIA", "MALE", 25, ts.Unix(), 1005, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindUserVerified, ev.Kind)
	assert.Equal(t, strings.ToLower(userAddress.Hex()), ev.Wallet)
	assert.Equal(t, "INDIA", ev.Nationality)
	assert.Equal(t, "MALE", ev.Gender)
	assert.Equal(t, 25, ev.Age)
	assert.Equal(t, ts, ev.Timestamp)
	assert.Equal(t, uint64(1005), ev.BlockNumber)
	assert.Equal(t, uint(2), ev.LogIndex)
}

func TestDecodeUserVerifiedAcceptsAnyStorableAge(t *testing.T) {
	vc := NewVerificationContract(&fakeClient{}, contractAddress)
	for _, age := range []int64{0, 151, 1000, math.MaxInt32} {
		ev, err := vc.Decode(domain.EventKindUserVerified, userVerifiedLog(t, userAddress, "INDIA", "MALE", age, 1700000000, 1, 0))
		require.NoError(t, err, "age %d", age)
		assert.Equal(t, int(age), ev.Age)
	}
}

func TestDecodeVerificationRevoked(t *testing.T) {
	vc := NewVerificationContract(&fakeClient{}, contractAddress)
	ev, err := vc.Decode(domain.EventKindVerificationRevoked, revokedLog(t, userAddress, 1700000000, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindVerificationRevoked, ev.Kind)
	assert.Equal(t, strings.ToLower(userAddress.Hex()), ev.Wallet)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Timestamp)
	assert.Empty(t, ev.Nationality)
}

func TestDecodeErrors(t *testing.T) {
	vc := NewVerificationContract(&fakeClient{}, contractAddress)
	good := userVerifiedLog(t, userAddress, "INDIA", "MALE", 25, 1700000000, 1, 0)

	type testConfig struct {
		name string
		kind domain.EventKind
		log  func() types.Log
	}
	for _, tc := range []testConfig{
		{name: "missing user topic", kind: domain.EventKindUserVerified, log: func() types.Log {
			l := good
			l.Topics = l.Topics[:1]
			return l
		}},
		{name: "wrong signature", kind: domain.EventKindVerificationRevoked, log: func() types.Log { return good }},
		{name: "truncated data", kind: domain.EventKindUserVerified, log: func() types.Log {
			l := good
			l.Data = l.Data[:40]
			return l
		}},
		{name: "age does not fit the store", kind: domain.EventKindUserVerified, log: func() types.Log {
			return userVerifiedLog(t, userAddress, "INDIA", "MALE", 1<<40, 1700000000, 1, 0)
		}},
		{name: "unknown kind", kind: "Other", log: func() types.Log { return good }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := vc.Decode(tc.kind, tc.log())
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, tc.kind, decodeErr.Kind)
		})
	}
}

func TestQueryLogs(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		height: 1010,
		logs: []types.Log{
			userVerifiedLog(t, userAddress, "INDIA", "MALE", 25, 1, 1007, 1),
			userVerifiedLog(t, userAddress, "INDIA", "MALE", 25, 1, 1005, 3),
			userVerifiedLog(t, userAddress, "INDIA", "MALE", 25, 1, 1005, 0),
		},
	}
	vc := NewVerificationContract(client, contractAddress)

	height, err := vc.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1010), height)

	logs, err := vc.QueryLogs(ctx, domain.EventKindUserVerified, 1001, 1010)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, uint(0), logs[0].Index)
	assert.Equal(t, uint(3), logs[1].Index)
	assert.Equal(t, uint64(1007), logs[2].BlockNumber)

	require.Len(t, client.queries, 1)
	q := client.queries[0]
	assert.Equal(t, big.NewInt(1001), q.FromBlock)
	assert.Equal(t, big.NewInt(1010), q.ToBlock)
	assert.Equal(t, []common.Address{contractAddress}, q.Addresses)
	assert.Equal(t, contractABI.Events["UserVerified"].ID, q.Topics[0][0])
}

func TestChainUnavailable(t *testing.T) {
	ctx := context.Background()
	vc := NewVerificationContract(&fakeClient{err: errors.New("connection refused")}, contractAddress)

	_, err := vc.CurrentHeight(ctx)
	assert.ErrorIs(t, err, ErrChainUnavailable)

	_, err = vc.QueryLogs(ctx, domain.EventKindVerificationRevoked, 1, 2)
	assert.ErrorIs(t, err, ErrChainUnavailable)
}
