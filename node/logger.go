package node

import (
	"fmt"
	"io"

	"github.com/cometbft/cometbft/libs/log"
)

// NewLogger returns a key/value logger writing to w, filtered to level
// ("debug", "info", "error" or "none").
func NewLogger(w io.Writer, level string) (log.Logger, error) {
	option, err := log.AllowLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return log.NewFilter(log.NewTMLogger(log.NewSyncWriter(w)), option), nil
}
