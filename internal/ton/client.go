// Package ton wraps tonutils-go for reading incoming transfers to the hot wallet.
package ton

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

const txBatchSize = 100

type ConnectConfig struct {
	Network        string // mainnet/testnet
	LiteServerHost string
	LiteServerPort int
	LiteServerKey  string
}

// Connect establishes a connection to the TON network.
// If LiteServerHost + LiteServerKey are set, connects to a specific lite server.
// Otherwise, auto-discovers lite servers from the global config for the network.
func Connect(ctx context.Context, cfg ConnectConfig, log *zap.Logger) (tonapi.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.EqualFold(cfg.Network, "mainnet") {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := tonapi.ProofCheckPolicyFast
	if strings.EqualFold(cfg.Network, "mainnet") {
		proofPolicy = tonapi.ProofCheckPolicySecure
	}

	return tonapi.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// AccountState is the part of the account we need to follow its transactions.
type AccountState struct {
	Active     bool
	LastTxLT   uint64
	LastTxHash []byte
}

// Wallet reads transactions of one address.
type Wallet struct {
	api  tonapi.APIClientWrapped
	addr *address.Address
}

func NewWallet(api tonapi.APIClientWrapped, hotWallet string) (*Wallet, error) {
	addr, err := address.ParseAddr(hotWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", hotWallet, err)
	}
	return &Wallet{api: api, addr: addr}, nil
}

func (w *Wallet) Address() string {
	return w.addr.String()
}

func (w *Wallet) State(ctx context.Context) (*AccountState, error) {
	block, err := w.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}

	account, err := w.api.GetAccount(ctx, block, w.addr)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return &AccountState{}, nil
	}
	return &AccountState{Active: true, LastTxLT: account.LastTxLT, LastTxHash: account.LastTxHash}, nil
}

// TransfersSince returns incoming transfers with LT > cursorLT in chronological order.
// ListTransactions pages backwards from the account head until the cursor is reached.
func (w *Wallet) TransfersSince(ctx context.Context, state *AccountState, cursorLT uint64) ([]Transfer, error) {
	if !state.Active || state.LastTxLT <= cursorLT {
		return nil, nil
	}

	var txs []*tlb.Transaction
	lt, hash := state.LastTxLT, state.LastTxHash
	for {
		batch, err := w.api.ListTransactions(ctx, w.addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(batch) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range batch {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			txs = append(txs, tx)
		}

		if reachedCursor || len(batch) < txBatchSize {
			break
		}

		oldest := batch[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].LT < txs[j].LT })

	transfers := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		if t, ok := TransferFromTx(tx); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}

// RecentTransfers returns incoming transfers among the last `limit` transactions.
func (w *Wallet) RecentTransfers(ctx context.Context, limit int) ([]Transfer, error) {
	state, err := w.State(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Active {
		return nil, nil
	}

	batch, err := w.api.ListTransactions(ctx, w.addr, uint32(limit), state.LastTxLT, state.LastTxHash)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	transfers := make([]Transfer, 0, len(batch))
	for _, tx := range batch {
		if t, ok := TransferFromTx(tx); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}
