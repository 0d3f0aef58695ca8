package transport

import (
	"errors"
	"time"

	"github.com/ValentinKolb/gombus/common"
)

// recoverLink applies the link error-recovery policy to a failed wait or
// read. Recovery prepares the connection for the next attempt - it never
// retries the current exchange - so the originally observed error is
// always the one returned, whatever the intermediate recovery calls did.
//
// An interrupted wait never reaches this point: the Go runtime transparently
// restarts reads interrupted by signals.
func (c *Context) recoverLink(origErr error) error {
	if c.cfg.Recovery&common.RecoveryLink == 0 {
		return origErr
	}

	switch {
	case errors.Is(origErr, common.ErrTimedOut):
		// Let a late response arrive, then throw it away so the next
		// exchange starts from an empty socket
		time.Sleep(c.cfg.ResponseTimeout)
		if n, err := c.Flush(); err == nil && n > 0 {
			Logger.Debugf("%s: flushed %d stale bytes", c.backend.Name(), n)
		}

	case errors.Is(origErr, common.ErrBadDescriptor),
		errors.Is(origErr, common.ErrConnectionReset),
		errors.Is(origErr, common.ErrConnectionRefused):
		c.Close()
		if err := c.Connect(); err != nil {
			Logger.Errorf("%s: reconnect failed: %v", c.backend.Name(), err)
		} else {
			metricReconnects.Inc()
		}
	}

	return origErr
}
