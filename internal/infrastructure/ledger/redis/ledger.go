package redisledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/internal/infrastructure/ledger"
	zerrors "github.com/zyfty/zyftyd/pkg/errors"
)

const (
	balancesKeyPrefix   = "ledger:balances:"
	allowancesKeyPrefix = "ledger:allowances:"
)

type service struct {
	rdb          *redis.Client
	numOfRetries int
}

func NewLedger(rdb *redis.Client, numOfRetries int) ports.Ledger {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &service{rdb: rdb, numOfRetries: numOfRetries}
}

func balancesKey(asset string) string {
	return balancesKeyPrefix + asset
}

func allowancesKey(asset, owner string) string {
	return fmt.Sprintf("%s%s:%s", allowancesKeyPrefix, asset, owner)
}

func (s *service) BalanceOf(ctx context.Context, asset, account string) (uint64, error) {
	return readUint(ctx, s.rdb, balancesKey(asset), account)
}

func (s *service) Allowance(ctx context.Context, asset, owner, spender string) (uint64, error) {
	return readUint(ctx, s.rdb, allowancesKey(asset, owner), spender)
}

func (s *service) Approve(
	ctx context.Context, asset, owner, spender string, amount uint64,
) error {
	if asset == "" || owner == "" || spender == "" {
		return zerrors.INVALID_ARGUMENT.New("missing approval asset, owner or spender")
	}
	return s.rdb.HSet(ctx, allowancesKey(asset, owner), spender, amount).Err()
}

func (s *service) Transfer(ctx context.Context, asset, from, to string, amount uint64) error {
	return s.Apply(ctx, []ports.Transfer{{Asset: asset, From: from, To: to, Amount: amount}})
}

func (s *service) TransferFrom(
	ctx context.Context, asset, spender, from, to string, amount uint64,
) error {
	return s.Apply(ctx, []ports.Transfer{
		{Asset: asset, From: from, To: to, Amount: amount, Spender: spender},
	})
}

// Apply watches every hash touched by the batch, settles it against the watched values and
// writes the result in a single MULTI/EXEC. A concurrent write makes EXEC fail and the whole
// batch is retried.
func (s *service) Apply(ctx context.Context, transfers []ports.Transfer) error {
	keys := watchedKeys(transfers)
	if len(keys) == 0 {
		return nil
	}

	return s.watch(ctx, func(tx *redis.Tx) error {
		changes, err := ledger.Settle(&reader{ctx, tx}, transfers)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range changes.Balances {
				pipe.HSet(ctx, balancesKey(k.Asset), k.Name, v)
			}
			for k, v := range changes.Allowances {
				pipe.HSet(ctx, allowancesKey(k.Asset, k.Owner), k.Spender, v)
			}
			return nil
		})
		return err
	}, keys...)
}

func (s *service) Deposit(ctx context.Context, asset, account string, amount uint64) error {
	if asset == "" || account == "" {
		return zerrors.INVALID_ARGUMENT.New("missing deposit asset or account")
	}
	key := balancesKey(asset)
	return s.watch(ctx, func(tx *redis.Tx) error {
		balance, err := readUint(ctx, tx, key, account)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, account, balance+amount)
			return nil
		})
		return err
	}, key)
}

func (s *service) watch(
	ctx context.Context, fn func(tx *redis.Tx) error, keys ...string,
) (err error) {
	for attempt := 0; attempt < s.numOfRetries; attempt++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		log.WithError(err).Debugf("ledger write conflict, attempt %d", attempt+1)
	}
	return err
}

func (s *service) Close() {
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close ledger redis client")
	}
}

type reader struct {
	ctx context.Context
	tx  *redis.Tx
}

func (r *reader) Balance(account ledger.Account) (uint64, error) {
	return readUint(r.ctx, r.tx, balancesKey(account.Asset), account.Name)
}

func (r *reader) Allowance(a ledger.Allowance) (uint64, error) {
	return readUint(r.ctx, r.tx, allowancesKey(a.Asset, a.Owner), a.Spender)
}

type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readUint(ctx context.Context, c hashReader, key, field string) (uint64, error) {
	val, err := c.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s %s: %w", key, field, err)
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value stored at %s %s: %w", key, field, err)
	}
	return n, nil
}

func watchedKeys(transfers []ports.Transfer) []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0, 2*len(transfers))
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, t := range transfers {
		add(balancesKey(t.Asset))
		if t.Spender != "" && t.Spender != t.From {
			add(allowancesKey(t.Asset, t.From))
		}
	}
	return keys
}
