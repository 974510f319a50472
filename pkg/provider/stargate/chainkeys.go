package stargate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
)

// ChainKeyResolver maps chain IDs to the bridge's native chain-key strings
// and back. The directory is fetched once on first use and then served from
// memory; a miss after a successful load is answered from the cached
// snapshot without re-fetching, so chains added upstream at runtime are not
// picked up until Refresh is called or the process restarts.
type ChainKeyResolver struct {
	mu     sync.Mutex
	byID   map[int]string
	byKey  map[string]int
	loaded bool

	apiURL     string
	httpClient *http.Client
	logger     logger.Logger
}

// NewChainKeyResolver creates a resolver against the given directory API.
func NewChainKeyResolver(apiURL string, log logger.Logger) *ChainKeyResolver {
	return &ChainKeyResolver{
		byID:       make(map[int]string),
		byKey:      make(map[string]int),
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

// ChainKey resolves a chain ID to its chain key, loading the directory on
// first use. A miss after a successful load returns ErrRouteNotFound.
func (r *ChainKeyResolver) ChainKey(ctx context.Context, chainID int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoadedLocked(ctx); err != nil {
		return "", err
	}

	key, ok := r.byID[chainID]
	if !ok {
		return "", pkgerrors.Wrapf(rberrors.ErrRouteNotFound, "no chain key for chain %d", chainID)
	}
	return key, nil
}

// ChainID resolves a chain key back to a chain ID.
func (r *ChainKeyResolver) ChainID(ctx context.Context, chainKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoadedLocked(ctx); err != nil {
		return 0, err
	}

	chainID, ok := r.byKey[chainKey]
	if !ok {
		return 0, pkgerrors.Wrapf(rberrors.ErrRouteNotFound, "no chain id for chain key %q", chainKey)
	}
	return chainID, nil
}

// Resolvable reports whether both chain IDs have known chain keys.
func (r *ChainKeyResolver) Resolvable(ctx context.Context, chainIDs ...int) bool {
	for _, chainID := range chainIDs {
		if _, err := r.ChainKey(ctx, chainID); err != nil {
			return false
		}
	}
	return true
}

// Refresh re-fetches the chain directory, replacing the cached snapshot.
// Exposed for operators; the resolver never refreshes on its own.
func (r *ChainKeyResolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *ChainKeyResolver) ensureLoadedLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	return r.loadLocked(ctx)
}

func (r *ChainKeyResolver) loadLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiURL+"/v1/chains", nil)
	if err != nil {
		return pkgerrors.Wrap(rberrors.ErrChainKeyResolution, err.Error())
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(rberrors.ErrChainKeyResolution, err.Error())
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(rberrors.ErrChainKeyResolution, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Wrapf(rberrors.ErrChainKeyResolution, "chain directory returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Chains []struct {
			ChainKey string `json:"chainKey"`
			ChainID  int    `json:"chainId"`
		} `json:"chains"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(rberrors.ErrChainKeyResolution, err.Error())
	}

	byID := make(map[int]string, len(payload.Chains))
	byKey := make(map[string]int, len(payload.Chains))
	for _, chain := range payload.Chains {
		if chain.ChainID == 0 || chain.ChainKey == "" {
			continue
		}
		byID[chain.ChainID] = chain.ChainKey
		byKey[chain.ChainKey] = chain.ChainID
	}

	r.byID = byID
	r.byKey = byKey
	r.loaded = true
	metrics.ChainKeyRefreshes.Inc()
	r.logger.Debug("Chain key directory loaded: %d chains", len(byID))
	return nil
}
