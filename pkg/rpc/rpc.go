package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"walletsync/pkg/logger"
	"walletsync/pkg/models"
)

var DefaultTimeout = 10 * time.Second

var weiPerEther = big.NewFloat(1e18)

// Client loads balances over JSON-RPC, trying each URL of the wallet's
// network in order.
type Client struct {
	URLs    map[models.Network][]string
	Timeout time.Duration
	log     *logrus.Entry
}

func NewClient(urls map[models.Network][]string) *Client {
	return &Client{URLs: urls, Timeout: DefaultTimeout, log: logger.For("rpc")}
}

// FetchBalance returns the wallet's native balance in ether.
func (c *Client) FetchBalance(ctx context.Context, wallet models.WalletIdentity) (*big.Float, error) {
	urls := c.URLs[wallet.Network]
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC configured for %s", wallet.Network)
	}

	var lastErr error
	for _, rpcURL := range urls {
		bal, err := c.fetchBalance(ctx, rpcURL, common.HexToAddress(wallet.Address))
		if err == nil {
			return bal, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.log.WithError(err).WithField("rpc", rpcURL).Debug("balance fetch failed, trying next RPC")
	}
	return nil, fmt.Errorf("all RPCs failed: %w", lastErr)
}

func (c *Client) fetchBalance(ctx context.Context, rpcURL string, account common.Address) (*big.Float, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	balance, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, err
	}
	fBalance := new(big.Float).SetInt(balance)
	return fBalance.Quo(fBalance, weiPerEther), nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// CheckRPC reports the chain ID and latency of an RPC endpoint.
func CheckRPC(ctx context.Context, rpcURL string) models.RPCResult {
	res := models.RPCResult{URL: rpcURL, Status: "error"}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Status = "ok"
	res.ChainID = chainID.Int64()
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}
