package tier

import (
	"context"
	"log"
	"strconv"
)

// Balance is a wallet's token balance and the tier it maps to.
type Balance struct {
	Balance float64 `json:"balance"`
	Tier    Tier    `json:"tier"`
}

// BalanceSource queries the on-chain balance of a wallet.
type BalanceSource interface {
	TokenBalance(ctx context.Context, walletAddress string) (float64, error)
}

// BalanceCache is a short-TTL cache in front of the balance source.
type BalanceCache interface {
	GetBalance(ctx context.Context, walletAddress string) (string, error)
	SetBalance(ctx context.Context, walletAddress, value string) error
}

// Oracle maps wallets to tiers. It fails soft: a balance lookup outage
// must not break chat for unconnected users, so every error path returns
// {0, Free Trial} and never an error.
type Oracle struct {
	source BalanceSource
	cache  BalanceCache // optional
}

func NewOracle(source BalanceSource, cache BalanceCache) *Oracle {
	return &Oracle{source: source, cache: cache}
}

func (o *Oracle) GetTokenBalance(ctx context.Context, walletAddress string) Balance {
	if o.cache != nil {
		if v, err := o.cache.GetBalance(ctx, walletAddress); err == nil {
			if balance, perr := strconv.ParseFloat(v, 64); perr == nil {
				return Balance{Balance: balance, Tier: FromBalance(balance)}
			}
		}
	}

	balance, err := o.source.TokenBalance(ctx, walletAddress)
	if err != nil {
		log.Printf("[Tier] balance lookup failed wallet=%s err=%v", walletAddress, err)
		return Balance{Balance: 0, Tier: FreeTrial}
	}

	if o.cache != nil {
		if err := o.cache.SetBalance(ctx, walletAddress, strconv.FormatFloat(balance, 'f', -1, 64)); err != nil {
			log.Printf("[Tier] balance cache write failed wallet=%s err=%v", walletAddress, err)
		}
	}

	return Balance{Balance: balance, Tier: FromBalance(balance)}
}
