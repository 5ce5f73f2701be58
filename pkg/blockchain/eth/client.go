package eth

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultRPCResponseTimeout = 10 * time.Second

// ChainReader is the subset of ethclient.Client used by Client. It is satisfied by
// *ethclient.Client and by simulated backends.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client is a read only ethereum client. Every call is bounded by RPCResponseTimeout.
type Client struct {
	client ChainReader
	closer func()
	Config *ClientConfig
}

// ClientConfig eth client config
type ClientConfig struct {
	RPCResponseTimeout time.Duration `json:"rpc_response_time_out"`
}

// NewClient creates a Client instance.
func NewClient(client *ethclient.Client, c *ClientConfig) *Client {
	cl := NewClientFromReader(client, c)
	cl.closer = client.Close
	return cl
}

// NewClientFromReader creates a Client over any ChainReader
func NewClientFromReader(client ChainReader, c *ClientConfig) *Client {
	if c == nil {
		c = &ClientConfig{}
	}
	if c.RPCResponseTimeout <= 0 {
		c.RPCResponseTimeout = defaultRPCResponseTimeout
	}
	return &Client{client: client, Config: c}
}

// CurrentBlock returns the current block number in the blockchain
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.BlockNumber(_ctx)
}

// ChainID get chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	cid, err := c.client.ChainID(_ctx)
	if err != nil {
		return nil, err
	}
	return cid, nil
}

// HeaderByNumber get eth block header by block number. A nil number returns the latest header.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	header, err := c.client.HeaderByNumber(_ctx, number)
	if err != nil {
		return nil, err
	}
	return header, nil
}

// FilterLogs runs an eth_getLogs query
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.FilterLogs(_ctx, q)
}

// Close releases the underlying rpc connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
