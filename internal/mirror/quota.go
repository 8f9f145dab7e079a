package mirror

import (
	"errors"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"
)

func isQuotaErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, badger.ErrTxnTooBig) || errors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.HasPrefix(msg, "oom ") ||
		strings.Contains(msg, "used memory > 'maxmemory'") ||
		strings.Contains(msg, "no space left on device")
}
