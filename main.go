package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/solverhq/rebalancer/pkg/blockchain"
	"github.com/solverhq/rebalancer/pkg/circuitbreaker"
	"github.com/solverhq/rebalancer/pkg/config"
	"github.com/solverhq/rebalancer/pkg/health"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/poller"
	"github.com/solverhq/rebalancer/pkg/provider"
	"github.com/solverhq/rebalancer/pkg/provider/cctp"
	"github.com/solverhq/rebalancer/pkg/provider/lifi"
	"github.com/solverhq/rebalancer/pkg/provider/stargate"
	"github.com/solverhq/rebalancer/pkg/rebalancer"
	"github.com/solverhq/rebalancer/pkg/repository"
	"github.com/solverhq/rebalancer/pkg/router"
	"github.com/solverhq/rebalancer/pkg/scheduler"
	"github.com/solverhq/rebalancer/pkg/txqueue"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcURLs := make(map[int]string, len(cfg.Chains))
	chainIDs := make([]int, 0, len(cfg.Chains))
	for chainID, chain := range cfg.Chains {
		rpcURLs[chainID] = chain.RPCURL
		chainIDs = append(chainIDs, chainID)
	}

	evmSigner, err := blockchain.NewEVMSigner(rpcURLs, cfg.PrivateKey, cfg.GasMultiplier, stdLogger)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}

	// All write paths go through the per-wallet signing queue
	queue := txqueue.NewSigningQueue()
	signer := txqueue.NewGatedSigner(evmSigner, queue)

	repo := repository.NewMemoryRepository()

	sched := scheduler.NewInProcess(stdLogger)

	// Aggregator provider
	assetCache := lifi.NewAssetCache(cfg.LiFi.APIURL, chainIDs, cfg.LiFi.CacheTTL, stdLogger)
	if err := assetCache.Initialize(ctx); err != nil {
		stdLogger.Error("Aggregator directory unavailable at startup, continuing without it: %v", err)
	}
	lifiProvider := lifi.New(lifi.Config{
		APIURL:        cfg.LiFi.APIURL,
		Integrator:    cfg.LiFi.Integrator,
		WalletAddress: cfg.WalletAddress,
	}, assetCache, lifi.NewSignerRouteExecutor(signer, stdLogger), stdLogger)

	// Bridge provider
	resolver := stargate.NewChainKeyResolver(cfg.Stargate.APIURL, stdLogger)
	stargateProvider := stargate.New(stargate.Config{
		APIURL:         cfg.Stargate.APIURL,
		WalletAddress:  cfg.WalletAddress,
		MaxSlippageBps: cfg.Stargate.MaxSlippageBps,
	}, resolver, signer, repo, stdLogger)

	// Burn-and-mint provider
	cctpChains := make(map[int]cctp.ChainConfig, len(cfg.Chains))
	for chainID, chain := range cfg.Chains {
		cctpChains[chainID] = cctp.ChainConfig{
			Domain:             chain.CCTPDomain,
			USDC:               chain.USDC,
			TokenMessenger:     chain.TokenMessenger,
			MessageTransmitter: chain.MessageTransmitter,
		}
	}
	cctpProvider := cctp.New(cctp.Config{
		APIURL:           cfg.CCTP.APIURL,
		WalletAddress:    cfg.WalletAddress,
		Chains:           cctpChains,
		FastTransfers:    cfg.CCTP.FastTransfers,
		AttestationDelay: cfg.CCTP.AttestationDelay,
	}, signer, sched, repo, stdLogger)

	attestationPoller := poller.NewAttestationPoller(cctpProvider, sched, repo, poller.Options{
		RetryDelay: cfg.CCTP.PollInterval,
	}, stdLogger)
	attestationPoller.Register(sched)

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	providers := []provider.Provider{cctpProvider, stargateProvider, lifiProvider}
	fallback := router.NewFallbackRouter(providers, cfg.CoreTokens, stdLogger)

	breakers := make(map[int]*circuitbreaker.CircuitBreaker, len(cfg.Chains))
	for chainID := range cfg.Chains {
		breakers[chainID] = circuitbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.Enabled,
			chainID,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			stdLogger,
		)
	}

	service := rebalancer.NewService(providers, fallback, signer, repo, repo, breakers, stdLogger)

	monitor := health.NewMonitor(repo, repo)
	healthServer := health.NewServer(cfg.MetricsPort, monitor, service, breakers, stdLogger)
	go healthServer.Start()

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	stdLogger.Info("Rebalancing engine started with %d chains and %d providers", len(cfg.Chains), len(providers))
	<-signalCh
	stdLogger.Notice("Received termination signal, shutting down gracefully...")
	cancel()

	// Let in-flight attestation jobs finish their current handler run
	sched.Wait()
}
