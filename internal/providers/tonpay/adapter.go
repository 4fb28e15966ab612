// Package tonpay accepts direct TON transfers to the hot wallet. The payment
// reference travels as the transfer comment.
package tonpay

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/gton-market/settlement/internal/providers"
	"github.com/gton-market/settlement/internal/ton"
	"go.uber.org/zap"
)

const (
	ProviderID  = "tonpay"
	scanLimit   = 50
	idSeparator = ":"
)

// TransferSource lists recent incoming transfers of the hot wallet.
type TransferSource interface {
	RecentTransfers(ctx context.Context, limit int) ([]ton.Transfer, error)
}

type Adapter struct {
	hotWallet string
	source    TransferSource
	log       *zap.Logger
}

func New(hotWallet string, source TransferSource, log *zap.Logger) *Adapter {
	return &Adapter{hotWallet: hotWallet, source: source, log: log}
}

func (a *Adapter) ID() string              { return ProviderID }
func (a *Adapter) DefaultCurrency() string { return "TON" }
func (a *Adapter) Currencies() []string    { return []string{"TON"} }

// ExternalID packs the memo and the minimum nano amount: "<reference>:<nano>".
func ExternalID(reference string, nano *big.Int) string {
	return reference + idSeparator + nano.String()
}

// ParseExternalID is the inverse of ExternalID.
func ParseExternalID(externalID string) (string, *big.Int, error) {
	i := strings.LastIndex(externalID, idSeparator)
	if i <= 0 {
		return "", nil, fmt.Errorf("malformed tonpay external id %q", externalID)
	}
	nano, err := ton.ParseNano(externalID[i+1:])
	if err != nil {
		return "", nil, err
	}
	return externalID[:i], nano, nil
}

func (a *Adapter) CreatePayment(_ context.Context, req providers.CreateRequest) (*providers.Invoice, error) {
	if !strings.EqualFold(req.Currency, "TON") {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedCurrency, req.Currency)
	}
	nano := ton.ToNano(req.Amount)
	if nano.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount below 1 nanoTON", providers.ErrProviderRequest)
	}

	q := url.Values{}
	q.Set("amount", nano.String())
	q.Set("text", req.Reference)
	payURL := fmt.Sprintf("ton://transfer/%s?%s", a.hotWallet, q.Encode())

	return &providers.Invoice{
		ExternalID: ExternalID(req.Reference, nano),
		PayURL:     payURL,
	}, nil
}

// CheckPayment scans the latest hot-wallet transfers for the memo with a
// sufficient amount. Lite server failures leave the payment pending.
func (a *Adapter) CheckPayment(ctx context.Context, externalID string) providers.Status {
	memo, expected, err := ParseExternalID(externalID)
	if err != nil {
		a.log.Error("cannot check tonpay payment", zap.String("external_id", externalID), zap.Error(err))
		return providers.StatusPending
	}

	transfers, err := a.source.RecentTransfers(ctx, scanLimit)
	if err != nil {
		a.log.Warn("ton scan failed", zap.String("memo", memo), zap.Error(err))
		return providers.StatusPending
	}

	for _, t := range transfers {
		if t.Comment != memo {
			continue
		}
		if t.AmountNano.Cmp(expected) >= 0 {
			return providers.StatusCompleted
		}
		a.log.Warn("insufficient payment, amount below expected",
			zap.String("memo", memo),
			zap.String("received_nano", t.AmountNano.String()),
			zap.String("expected_nano", expected.String()),
		)
	}
	return providers.StatusPending
}
