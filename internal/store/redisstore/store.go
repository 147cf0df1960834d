package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches wallet token balances so rapid refreshes do not hammer
// the RPC endpoint.
type Store struct {
	rdb        *redis.Client
	balanceTTL time.Duration
}

func New(addr, password string, db int, balanceTTL time.Duration) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		balanceTTL: balanceTTL,
	}
}

func (s *Store) GetBalance(ctx context.Context, walletAddress string) (string, error) {
	return s.rdb.Get(ctx, balanceKey(walletAddress)).Result()
}

func (s *Store) SetBalance(ctx context.Context, walletAddress, value string) error {
	return s.rdb.Set(ctx, balanceKey(walletAddress), value, s.balanceTTL).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

func balanceKey(wallet string) string { return "balance:" + wallet }
