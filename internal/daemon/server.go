// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package daemon exposes trap resolution and transaction replay over a
// JSON-RPC endpoint so editor integrations can symbolize traps without
// shelling out to the CLI for every address.
package daemon

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	gorillarpc "github.com/gorilla/rpc"
	gorillajson "github.com/gorilla/rpc/json"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/logger"
	stellarrpc "github.com/dotandev/traploc/internal/rpc"
	"github.com/dotandev/traploc/internal/simulator"
	"github.com/dotandev/traploc/internal/sourcemap"
)

type Config struct {
	Network   string
	AuthToken string
}

// Server answers ResolveAddress and DebugTransaction calls. One resolver
// is kept per wasm hash so repeated lookups against the same module hit
// the in-memory table instead of re-decoding the line program. Handlers
// run on concurrent goroutines, so the map is mutex-guarded.
type Server struct {
	cfg       Config
	rpcClient *stellarrpc.Client
	runner    simulator.Runner

	mu        sync.Mutex
	resolvers map[string]*sourcemap.Resolver
}

func NewServer(cfg Config) (*Server, error) {
	client, err := stellarrpc.NewClient(stellarrpc.Network(cfg.Network))
	if err != nil {
		return nil, err
	}
	runner, err := simulator.NewRunner()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		rpcClient: client,
		runner:    runner,
		resolvers: make(map[string]*sourcemap.Resolver),
	}, nil
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	return token == s.cfg.AuthToken
}

type ResolveAddressRequest struct {
	WasmPath string `json:"wasm_path"`
	Offset   uint64 `json:"offset"`
	NoCache  bool   `json:"no_cache"`
}

type ResolveAddressResponse struct {
	WasmHash   string                    `json:"wasm_hash"`
	HasSymbols bool                      `json:"has_symbols"`
	Location   *sourcemap.SourceLocation `json:"location,omitempty"`
}

// ResolveAddress maps a wasm code offset to a source location.
func (s *Server) ResolveAddress(r *http.Request, req *ResolveAddressRequest, resp *ResolveAddressResponse) error {
	if !s.authenticate(r) {
		return errors.WrapValidationError("authentication failed")
	}
	if req.WasmPath == "" {
		return errors.WrapValidationError("wasm_path is required")
	}

	resolver, err := s.resolverFor(req.WasmPath, req.NoCache)
	if err != nil {
		return err
	}

	resp.WasmHash = resolver.WasmHash()
	resp.HasSymbols = resolver.HasDebugSymbols()
	resp.Location = resolver.Resolve(r.Context(), req.Offset)

	if !req.NoCache {
		if err := resolver.SaveCache(); err != nil {
			logger.Logger.Warn("Failed to persist source map cache", "error", err)
		}
	}
	return nil
}

func (s *Server) resolverFor(wasmPath string, noCache bool) (*sourcemap.Resolver, error) {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, errors.WrapValidationError("cannot read wasm file: " + err.Error())
	}

	hash := sourcemap.ComputeWasmHash(wasmBytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.resolvers[hash]; ok && !noCache {
		return r, nil
	}

	var opts []sourcemap.ResolverOption
	if noCache {
		opts = append(opts, sourcemap.WithoutCache())
	}
	resolver := sourcemap.NewResolver(wasmBytes, opts...)
	// A cache-less resolver is a per-request construct; retaining it
	// would make later cached requests silently lose persistence.
	if !noCache {
		s.resolvers[hash] = resolver
	}
	return resolver, nil
}

type DebugTransactionRequest struct {
	Hash     string `json:"hash"`
	WasmPath string `json:"wasm_path,omitempty"`
}

type DebugTransactionResponse struct {
	Hash   string                        `json:"hash"`
	Result *simulator.SimulationResponse `json:"result"`
}

// DebugTransaction fetches a transaction, replays it, and annotates any
// trap with source locations when a wasm file with symbols is supplied.
func (s *Server) DebugTransaction(r *http.Request, req *DebugTransactionRequest, resp *DebugTransactionResponse) error {
	if !s.authenticate(r) {
		return errors.WrapValidationError("authentication failed")
	}
	if req.Hash == "" {
		return errors.WrapValidationError("hash is required")
	}

	ctx := r.Context()
	tx, err := s.rpcClient.GetTransaction(ctx, req.Hash)
	if err != nil {
		return err
	}

	simReq := &simulator.SimulationRequest{
		EnvelopeXdr:   tx.EnvelopeXdr,
		ResultMetaXdr: tx.ResultMetaXdr,
	}
	if req.WasmPath != "" {
		simReq.WasmPath = &req.WasmPath
	}

	result, err := s.runner.Run(simReq)
	if err != nil {
		return err
	}

	if req.WasmPath != "" {
		resolver, rerr := s.resolverFor(req.WasmPath, false)
		if rerr == nil {
			simulator.Annotate(ctx, result, resolver)
			if serr := resolver.SaveCache(); serr != nil {
				logger.Logger.Warn("Failed to persist source map cache", "error", serr)
			}
		}
	}

	resp.Hash = req.Hash
	resp.Result = result
	return nil
}

// Start runs the JSON-RPC server on the given port until ctx is done.
func (s *Server) Start(ctx context.Context, port string) error {
	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(gorillajson.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(s, "Daemon"); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", rpcServer)

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Logger.Info("Daemon listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
