package relay

import (
	"context"
	"log/slog"
)

// retry 以固定预算重复调用 fn，不做退避。返回最后一次的错误与实际尝试次数。
func retry[T any](ctx context.Context, log *slog.Logger, op string, attempts int, fn func(ctx context.Context) (T, error)) (T, int, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var (
		zero    T
		lastErr error
	)
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, i - 1, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, i, nil
		}
		lastErr = err
		log.Warn(op+" 失败",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
	}
	return zero, attempts, lastErr
}
