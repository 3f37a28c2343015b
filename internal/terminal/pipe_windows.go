//go:build windows

package terminal

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// dialPipe подключается к named pipe терминала.
// Имя дополняется префиксом \\.\pipe\ автоматически.
func dialPipe(ctx context.Context, name string, timeout time.Duration) (net.Conn, error) {
	path := fmt.Sprintf(`\\.\pipe\%s`, name)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := winio.DialPipeContext(dialCtx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to dial pipe %s: %w", path, err)
	}

	return conn, nil
}
