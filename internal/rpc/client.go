// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package rpc fetches transaction data from the Stellar network, with a
// local SQLite cache so repeated debugging sessions against the same
// transaction work offline and fast.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/logger"
	"github.com/dotandev/traploc/internal/telemetry"
)

// Network identifies a Stellar network.
type Network string

const (
	Testnet   Network = "testnet"
	Mainnet   Network = "mainnet"
	Futurenet Network = "futurenet"
)

const futurenetHorizonURL = "https://horizon-futurenet.stellar.org/"

// fetchCacheTTL is how long fetched transactions stay in the SQLite
// cache; transaction history is immutable so this is generous.
const fetchCacheTTL = 24 * time.Hour

// Client handles interactions with the Stellar network.
type Client struct {
	Horizon horizonclient.ClientInterface
	Network Network
}

// NewClient creates a client for the given network.
func NewClient(net Network) (*Client, error) {
	var horizon *horizonclient.Client

	switch net {
	case Testnet:
		horizon = horizonclient.DefaultTestNetClient
	case Futurenet:
		horizon = &horizonclient.Client{
			HorizonURL: futurenetHorizonURL,
			HTTP:       http.DefaultClient,
		}
	case Mainnet, "public":
		horizon = horizonclient.DefaultPublicNetClient
	default:
		return nil, errors.WrapInvalidNetwork(string(net))
	}

	return &Client{Horizon: horizon, Network: net}, nil
}

// NewClientWithURL creates a client against a custom Horizon endpoint.
func NewClientWithURL(url string, net Network) *Client {
	return &Client{
		Horizon: &horizonclient.Client{
			HorizonURL: url,
			HTTP:       http.DefaultClient,
		},
		Network: net,
	}
}

// TransactionResponse carries the raw XDR fields needed for simulation.
type TransactionResponse struct {
	EnvelopeXdr   string `json:"envelope_xdr"`
	ResultXdr     string `json:"result_xdr"`
	ResultMetaXdr string `json:"result_meta_xdr"`
}

// GetTransaction fetches a transaction's XDR data, consulting the local
// fetch cache first. Cache failures are logged and ignored; the network
// path is authoritative.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*TransactionResponse, error) {
	ctx, span := telemetry.GetTracer().Start(ctx, "rpc_get_transaction")
	span.SetAttributes(
		attribute.String("transaction.hash", hash),
		attribute.String("network", string(c.Network)),
	)
	defer span.End()

	cacheKey := "tx:" + string(c.Network) + ":" + hash
	if cached, found, err := Get(cacheKey); err == nil && found {
		var resp TransactionResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			logger.Logger.Debug("Transaction served from fetch cache", "hash", hash)
			return &resp, nil
		}
	}

	logger.Logger.Debug("Fetching transaction details", "hash", hash)

	tx, err := c.Horizon.TransactionDetail(hash)
	if err != nil {
		span.RecordError(err)
		logger.Logger.Error("Failed to fetch transaction", "hash", hash, "error", err)
		if horizonclient.IsNotFoundError(err) {
			return nil, errors.WrapTransactionNotFound(err)
		}
		return nil, errors.WrapRPCConnectionFailed(err)
	}

	resp := &TransactionResponse{
		EnvelopeXdr:   tx.EnvelopeXdr,
		ResultXdr:     tx.ResultXdr,
		ResultMetaXdr: tx.ResultMetaXdr,
	}

	if payload, err := json.Marshal(resp); err == nil {
		if err := SetWithTTLAndNetwork(cacheKey, string(payload), fetchCacheTTL, string(c.Network)); err != nil {
			logger.Logger.Warn("Failed to cache transaction", "hash", hash, "error", err)
		}
	}

	logger.Logger.Info("Transaction fetched", "hash", hash, "envelope_size", len(tx.EnvelopeXdr))
	return resp, nil
}
