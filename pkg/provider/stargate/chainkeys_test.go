package stargate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
)

func chainDirectoryServer(t *testing.T, hits *int32, chains map[string]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains", r.URL.Path)
		atomic.AddInt32(hits, 1)

		type chainEntry struct {
			ChainKey string `json:"chainKey"`
			ChainID  int    `json:"chainId"`
		}
		var payload struct {
			Chains []chainEntry `json:"chains"`
		}
		for key, id := range chains {
			payload.Chains = append(payload.Chains, chainEntry{ChainKey: key, ChainID: id})
		}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func TestChainKeyResolver(t *testing.T) {
	var hits int32
	server := chainDirectoryServer(t, &hits, map[string]int{"ethereum": 1, "polygon": 137})
	defer server.Close()

	resolver := NewChainKeyResolver(server.URL, &logger.EmptyLogger{})

	t.Run("resolves both directions", func(t *testing.T) {
		key, err := resolver.ChainKey(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "ethereum", key)

		chainID, err := resolver.ChainID(context.Background(), "polygon")
		require.NoError(t, err)
		assert.Equal(t, 137, chainID)
	})

	t.Run("loads the directory once", func(t *testing.T) {
		_, err := resolver.ChainKey(context.Background(), 137)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("miss after load is a routing error without a refetch", func(t *testing.T) {
		_, err := resolver.ChainKey(context.Background(), 8453)
		assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)

		_, err = resolver.ChainID(context.Background(), "unknown")
		assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)

		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})
}

func TestChainKeyResolverRefresh(t *testing.T) {
	var hits int32
	server := chainDirectoryServer(t, &hits, map[string]int{"ethereum": 1})
	defer server.Close()

	resolver := NewChainKeyResolver(server.URL, &logger.EmptyLogger{})
	_, err := resolver.ChainKey(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, resolver.Refresh(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestChainKeyResolverLoadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewChainKeyResolver(server.URL, &logger.EmptyLogger{})
	_, err := resolver.ChainKey(context.Background(), 1)
	assert.ErrorIs(t, err, rberrors.ErrChainKeyResolution)
}

func TestResolvable(t *testing.T) {
	var hits int32
	server := chainDirectoryServer(t, &hits, map[string]int{"ethereum": 1, "base": 8453})
	defer server.Close()

	resolver := NewChainKeyResolver(server.URL, &logger.EmptyLogger{})
	assert.True(t, resolver.Resolvable(context.Background(), 1, 8453))
	assert.False(t, resolver.Resolvable(context.Background(), 1, 42161))
}
