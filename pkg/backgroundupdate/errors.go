package backgroundupdate

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// ErrNoConnection is returned by transports that know the device is offline.
var ErrNoConnection = errors.New("no network connection")

// ErrorKind is the outcome of classifying a transport error.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindCancelled
	KindNoConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindNoConnection:
		return "noConnection"
	default:
		return "other"
	}
}

var offlineErrnos = []syscall.Errno{
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.EHOSTUNREACH,
	syscall.EADDRNOTAVAIL,
}

// Classify decides how the updater reacts to err. Timeouts count as
// KindOther. A nil error is KindOther.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, ErrNoConnection) {
		return KindNoConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return KindNoConnection
	}
	for _, errno := range offlineErrnos {
		if errors.Is(err, errno) {
			return KindNoConnection
		}
	}
	return KindOther
}
