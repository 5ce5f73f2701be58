package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/pkg/blockchain/eth"
	"github.com/zkreputation/verification-node/pkg/http"
)

// Open returns an initialized eth Client with the given configuration. The JSON-RPC transport
// retries failed requests RPCRetryMax times.
func Open(ctx context.Context, cfg config.Ethereum) (*eth.Client, error) {
	httpClient := http.NewClientWithRetry(ctx, cfg.RPCRetryMax, cfg.RPCResponseTimeout)
	rpcClient, err := rpc.DialOptions(ctx, cfg.URL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed connect to eth node %s: %w", cfg.URL, err)
	}

	return eth.NewClient(ethclient.NewClient(rpcClient), &eth.ClientConfig{
		RPCResponseTimeout: cfg.RPCResponseTimeout,
	}), nil
}
