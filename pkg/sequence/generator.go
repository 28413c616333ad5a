package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"sponsorportal/pkg/rediskey"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	NextReportCode(ctx context.Context) (string, error)
	NextDonationCode(ctx context.Context) (string, error)
}

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

type RedisGenerator struct {
	rdb counter
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextReportCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "RPT")
}

func (g *RedisGenerator) NextDonationCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "DON")
}

// nextDailyCode returns PREFIX-yymmdd-SEQ##, SEQ being the base36 daily counter and
// ## two random characters.
func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildSequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = g.rdb.ExpireAt(ctx, key, endOfDay).Err()
	}

	encodedSeq := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encodedSeq) < 3 {
		encodedSeq = strings.Repeat("0", 3-len(encodedSeq)) + encodedSeq
	}

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
