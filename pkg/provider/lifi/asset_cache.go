package lifi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/logger"
)

// SupportCache answers whether a chain, token, or token pair is usable with
// the aggregator. Implementations are consulted before every quote so an
// unsupported route never produces an external API call.
type SupportCache interface {
	IsChainSupported(chainID int) bool
	IsTokenSupported(chainID int, token common.Address) bool
	AreTokensConnected(chainIn int, tokenIn common.Address, chainOut int, tokenOut common.Address) bool
	Initialize(ctx context.Context) error
}

type pairKey struct {
	chainIn  int
	tokenIn  common.Address
	chainOut int
	tokenOut common.Address
}

// AssetCache loads the aggregator's chain, token, and connection directories
// once at startup and refreshes them on a TTL in the background.
//
// Initialization is best-effort: until the first successful load all support
// checks answer true, so a directory outage degrades to the aggregator's own
// validation instead of blocking every quote.
type AssetCache struct {
	mu          sync.RWMutex
	chains      map[int]struct{}
	tokens      map[int]map[common.Address]struct{}
	connections map[pairKey]struct{}
	loaded      bool

	apiURL     string
	chainIDs   []int
	ttl        time.Duration
	httpClient *http.Client
	logger     logger.Logger
}

var _ SupportCache = (*AssetCache)(nil)

// NewAssetCache creates a cache scoped to the configured chains.
func NewAssetCache(apiURL string, chainIDs []int, ttl time.Duration, log logger.Logger) *AssetCache {
	return &AssetCache{
		chains:      make(map[int]struct{}),
		tokens:      make(map[int]map[common.Address]struct{}),
		connections: make(map[pairKey]struct{}),
		apiURL:      strings.TrimRight(apiURL, "/"),
		chainIDs:    chainIDs,
		ttl:         ttl,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      log,
	}
}

// Initialize loads all directories and starts the background refresh. The
// returned error is informational; callers continue with fail-open checks.
func (c *AssetCache) Initialize(ctx context.Context) error {
	if err := c.load(ctx); err != nil {
		return err
	}

	go c.refreshLoop(ctx)
	return nil
}

func (c *AssetCache) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.load(ctx); err != nil {
				c.logger.Error("Asset cache refresh failed, keeping previous snapshot: %v", err)
			}
		}
	}
}

func (c *AssetCache) IsChainSupported(chainID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return true
	}
	_, ok := c.chains[chainID]
	return ok
}

func (c *AssetCache) IsTokenSupported(chainID int, token common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return true
	}
	_, ok := c.tokens[chainID][token]
	return ok
}

func (c *AssetCache) AreTokensConnected(chainIn int, tokenIn common.Address, chainOut int, tokenOut common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return true
	}
	_, ok := c.connections[pairKey{chainIn, tokenIn, chainOut, tokenOut}]
	return ok
}

func (c *AssetCache) load(ctx context.Context) error {
	chains, err := c.fetchChains(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch chain directory")
	}

	tokens := make(map[int]map[common.Address]struct{})
	for _, chainID := range c.chainIDs {
		chainTokens, err := c.fetchTokens(ctx, chainID)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch tokens for chain %d", chainID)
		}
		tokens[chainID] = chainTokens
	}

	connections := make(map[pairKey]struct{})
	for _, from := range c.chainIDs {
		for _, to := range c.chainIDs {
			if from == to {
				continue
			}
			if err := c.fetchConnections(ctx, from, to, connections); err != nil {
				return errors.Wrapf(err, "failed to fetch connections %d -> %d", from, to)
			}
		}
	}

	c.mu.Lock()
	c.chains = chains
	c.tokens = tokens
	c.connections = connections
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("Asset cache loaded: %d chains, %d chain pairs", len(chains), len(connections))
	return nil
}

func (c *AssetCache) fetchChains(ctx context.Context) (map[int]struct{}, error) {
	var payload struct {
		Chains []struct {
			ID int `json:"id"`
		} `json:"chains"`
	}
	if err := c.getJSON(ctx, c.apiURL+"/v1/chains", &payload); err != nil {
		return nil, err
	}

	chains := make(map[int]struct{}, len(payload.Chains))
	for _, chain := range payload.Chains {
		chains[chain.ID] = struct{}{}
	}
	return chains, nil
}

func (c *AssetCache) fetchTokens(ctx context.Context, chainID int) (map[common.Address]struct{}, error) {
	var payload struct {
		Tokens map[string][]struct {
			Address string `json:"address"`
		} `json:"tokens"`
	}
	url := fmt.Sprintf("%s/v1/tokens?chains=%d", c.apiURL, chainID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	tokens := make(map[common.Address]struct{})
	for _, list := range payload.Tokens {
		for _, token := range list {
			tokens[common.HexToAddress(token.Address)] = struct{}{}
		}
	}
	return tokens, nil
}

func (c *AssetCache) fetchConnections(ctx context.Context, fromChain, toChain int, into map[pairKey]struct{}) error {
	var payload struct {
		Connections []struct {
			FromChainID int `json:"fromChainId"`
			ToChainID   int `json:"toChainId"`
			FromTokens  []struct {
				Address string `json:"address"`
			} `json:"fromTokens"`
			ToTokens []struct {
				Address string `json:"address"`
			} `json:"toTokens"`
		} `json:"connections"`
	}
	url := fmt.Sprintf("%s/v1/connections?fromChain=%d&toChain=%d", c.apiURL, fromChain, toChain)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return err
	}

	for _, connection := range payload.Connections {
		for _, from := range connection.FromTokens {
			for _, to := range connection.ToTokens {
				into[pairKey{
					chainIn:  connection.FromChainID,
					tokenIn:  common.HexToAddress(from.Address),
					chainOut: connection.ToChainID,
					tokenOut: common.HexToAddress(to.Address),
				}] = struct{}{}
			}
		}
	}
	return nil
}

func (c *AssetCache) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
