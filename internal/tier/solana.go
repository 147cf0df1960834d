package tier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SolanaClient reads SPL token balances over JSON-RPC.
type SolanaClient struct {
	RPCURL string
	Mint   string
	Client *http.Client
}

func NewSolanaClient(rpcURL, mint string) *SolanaClient {
	if rpcURL == "" {
		rpcURL = "https://api.mainnet-beta.solana.com"
	}
	return &SolanaClient{
		RPCURL: rpcURL,
		Mint:   mint,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type tokenAccountsResp struct {
	Result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmount float64 `json:"uiAmount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *SolanaClient) TokenBalance(ctx context.Context, walletAddress string) (float64, error) {
	if s.Client == nil {
		return 0, errors.New("solana: http client is nil")
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []any{
			walletAddress,
			map[string]string{"mint": s.Mint},
			map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RPCURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("solana: %s", msg)
	}

	var decoded tokenAccountsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return 0, errors.New(decoded.Error.Message)
	}

	// Wallet may hold no account for this mint at all.
	if len(decoded.Result.Value) == 0 {
		return 0, nil
	}
	return decoded.Result.Value[0].Account.Data.Parsed.Info.TokenAmount.UIAmount, nil
}
