package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/ton"
	"github.com/redis/go-redis/v9"
)

const (
	keyCursorLT   = "ton-indexer:cursor:lt"
	keyCursorHash = "ton-indexer:cursor:hash"
	keyProcessed  = "ton-indexer:tx:"
	keyRetry      = "ton-indexer:retry"
)

// deferredTransfer is the redis form of a transfer awaiting a retry.
type deferredTransfer struct {
	LT         uint64 `json:"lt"`
	Hash       string `json:"hash"`
	From       string `json:"from"`
	AmountNano string `json:"amount_nano"`
	Comment    string `json:"comment"`
}

type RedisState struct {
	rdb *redis.Client
}

func NewRedisState(rdb *redis.Client) *RedisState {
	return &RedisState{rdb: rdb}
}

func (s *RedisState) LoadCursor(ctx context.Context) (uint64, bool, error) {
	val, err := s.rdb.Get(ctx, keyCursorLT).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	lt, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor %q: %w", val, err)
	}
	return lt, true, nil
}

func (s *RedisState) SaveCursor(ctx context.Context, lt uint64, hash []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyCursorLT, strconv.FormatUint(lt, 10), 0)
		p.Set(ctx, keyCursorHash, hex.EncodeToString(hash), 0)
		return nil
	})
	return err
}

func (s *RedisState) Seen(ctx context.Context, lt uint64) (bool, error) {
	n, err := s.rdb.Exists(ctx, processedKey(lt)).Result()
	return n > 0, err
}

func (s *RedisState) Mark(ctx context.Context, lt uint64, outcome string) error {
	_, err := db.MarkOnce(ctx, s.rdb, processedKey(lt), outcome, processedTTL)
	return err
}

// Defer stores the transfer in the retry hash keyed by LT.
func (s *RedisState) Defer(ctx context.Context, t ton.Transfer) error {
	amount := "0"
	if t.AmountNano != nil {
		amount = t.AmountNano.String()
	}
	data, err := json.Marshal(deferredTransfer{
		LT:         t.LT,
		Hash:       t.Hash,
		From:       t.From,
		AmountNano: amount,
		Comment:    t.Comment,
	})
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, keyRetry, strconv.FormatUint(t.LT, 10), data).Err()
}

// Deferred returns the retry set oldest first. Corrupt entries are dropped.
func (s *RedisState) Deferred(ctx context.Context) ([]ton.Transfer, error) {
	raw, err := s.rdb.HGetAll(ctx, keyRetry).Result()
	if err != nil {
		return nil, err
	}

	out := make([]ton.Transfer, 0, len(raw))
	for field, val := range raw {
		var d deferredTransfer
		amount, ok := new(big.Int), false
		if err := json.Unmarshal([]byte(val), &d); err == nil {
			amount, ok = amount.SetString(d.AmountNano, 10)
		}
		if !ok {
			s.rdb.HDel(ctx, keyRetry, field)
			continue
		}
		out = append(out, ton.Transfer{
			LT:         d.LT,
			Hash:       d.Hash,
			From:       d.From,
			AmountNano: amount,
			Comment:    d.Comment,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LT < out[j].LT })
	return out, nil
}

func (s *RedisState) Resolve(ctx context.Context, lt uint64) error {
	return s.rdb.HDel(ctx, keyRetry, strconv.FormatUint(lt, 10)).Err()
}

func processedKey(lt uint64) string {
	return keyProcessed + strconv.FormatUint(lt, 10)
}
