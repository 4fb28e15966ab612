// Package settings reads runtime business knobs from the external settings table.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gton-market/settlement/internal/config"
	"github.com/gton-market/settlement/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Keys
const (
	MinDeposit            = "payments.min_deposit"
	MaxDeposit            = "payments.max_deposit"
	FeePercent            = "payments.fee_percent"
	TimeoutMinutes        = "payments.timeout_minutes"
	GtonTonRate           = "payments.gton_ton_rate"
	FiatTTLMinutes        = "rates.fiat_ttl_minutes"
	CryptoTTLMinutes      = "rates.crypto_ttl_minutes"
	CryptoFallbackEnabled = "rates.crypto_fallback_enabled"
	ReferralLevel1Percent = "referral.level1_percent"
	PartnerLevel1Percent  = "referral.partner_level1_percent"
	CommissionEnabled     = "referral.commission_enabled"
)

// Store is the read side of the settings table.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Reader gives typed access with defaults. Store errors and unparsable
// values fall back to the default and are logged.
type Reader struct {
	store    Store
	defaults map[string]string
	log      *zap.Logger
}

func NewReader(store Store, defaults map[string]string, log *zap.Logger) *Reader {
	return &Reader{store: store, defaults: defaults, log: log}
}

// DefaultsFromConfig maps env-provided defaults onto setting keys.
func DefaultsFromConfig(cfg *config.Config) map[string]string {
	return map[string]string{
		MinDeposit:            cfg.MinDepositGTON,
		MaxDeposit:            cfg.MaxDepositGTON,
		FeePercent:            cfg.PlatformFeePercent,
		TimeoutMinutes:        formatMinutes(cfg.PaymentTimeout),
		GtonTonRate:           cfg.GTONTONRate,
		FiatTTLMinutes:        formatMinutes(cfg.FiatRateTTL),
		CryptoTTLMinutes:      formatMinutes(cfg.CryptoRateTTL),
		CryptoFallbackEnabled: strconv.FormatBool(cfg.CryptoFallbackEnable),
		ReferralLevel1Percent: cfg.ReferralPercent,
		PartnerLevel1Percent:  cfg.PartnerPercent,
		CommissionEnabled:     strconv.FormatBool(cfg.CommissionEnabled),
	}
}

func (r *Reader) raw(ctx context.Context, key string) string {
	if r.store != nil {
		v, ok, err := r.store.Get(ctx, key)
		if err != nil {
			r.log.Warn("settings read failed, using default", zap.String("key", key), zap.Error(err))
		} else if ok {
			return v
		}
	}
	return r.defaults[key]
}

func (r *Reader) Decimal(ctx context.Context, key string) decimal.Decimal {
	v := r.raw(ctx, key)
	d, err := decimal.NewFromString(v)
	if err != nil {
		def, derr := decimal.NewFromString(r.defaults[key])
		if derr != nil {
			r.log.Error("setting has no usable value", zap.String("key", key), zap.String("value", v))
			return decimal.Zero
		}
		r.log.Warn("invalid decimal setting, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return d
}

func (r *Reader) Int(ctx context.Context, key string) int {
	v := r.raw(ctx, key)
	n, err := strconv.Atoi(v)
	if err != nil {
		def, _ := strconv.Atoi(r.defaults[key])
		r.log.Warn("invalid int setting, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return n
}

func (r *Reader) Bool(ctx context.Context, key string) bool {
	v := r.raw(ctx, key)
	b, err := strconv.ParseBool(v)
	if err != nil {
		def, _ := strconv.ParseBool(r.defaults[key])
		r.log.Warn("invalid bool setting, using default", zap.String("key", key), zap.String("value", v))
		return def
	}
	return b
}

// Minutes reads a minutes setting as a duration. Besides whole minutes it
// accepts fractional minutes ("0.5") and Go durations ("1s", "90s").
func (r *Reader) Minutes(ctx context.Context, key string) time.Duration {
	v := r.raw(ctx, key)
	if d, ok := parseMinutes(v); ok {
		return d
	}
	def, _ := parseMinutes(r.defaults[key])
	r.log.Warn("invalid duration setting, using default", zap.String("key", key), zap.String("value", v))
	return def
}

func parseMinutes(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, d > 0
	}
	m, err := decimal.NewFromString(s)
	if err != nil || !m.IsPositive() {
		return 0, false
	}
	return time.Duration(m.Mul(decimal.NewFromInt(int64(time.Minute))).IntPart()), true
}

// formatMinutes keeps whole minutes as plain integers.
func formatMinutes(d time.Duration) string {
	if d%time.Minute == 0 {
		return strconv.Itoa(int(d / time.Minute))
	}
	return d.String()
}
