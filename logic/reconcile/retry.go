package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"recon-engine/vars"
)

// RetryPolicy 所有出站调用共用的一套重试策略（替代散落的 ad hoc 循环）
// 只对瞬时错误（限流/5xx/超时/连接断开）重试，其余错误直接失败
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: vars.RETRYMAX,
		BaseDelay:   time.Duration(vars.RETRYBASE) * time.Second,
		MaxDelay:    time.Duration(vars.RETRYCAP) * time.Second,
	}
}

// Do 执行 fn，指数退避：base, base*2, base*4 ... 封顶 MaxDelay
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			// 非瞬时错误（4xx、格式错误等）直接失败，不重试
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		fmt.Printf(">>> [Retry] 第 %d 次失败: %v, %v 后重试\n", attempt, lastErr, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

// IsTransient 判断错误是否值得重试
// LLM SDK 的错误大多只有字符串，这里按常见标记匹配
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	markers := []string{
		"429", "rate limit", "rate_limit", "too many requests",
		"500", "502", "503", "504", "internal server error",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "broken pipe", "eof",
	}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
