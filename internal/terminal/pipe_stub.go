//go:build !windows

package terminal

import (
	"context"
	"net"
	"time"
)

// На не-Windows платформах named pipes недоступны; pipe-транспорт уходит в
// цикл переподключения и остаётся отключённым. Полезно для разработки движка
// без живого cTrader.
func dialPipe(_ context.Context, _ string, _ time.Duration) (net.Conn, error) {
	return nil, ErrPipeUnsupported
}
