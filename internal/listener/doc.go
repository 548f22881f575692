// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

/*
Package listener binds the worker's network listeners and stops them again.

# Binding

StartListening tries to bind a Spec's address. Only an address-in-use
failure is retried: the manager waits Spec.RetryInterval and tries again,
Spec.MaxRetries attempts in total. Any other failure (permissions, invalid
address) is returned at once. The interval is constant; there is no
exponential backoff, and callers should not add one.

	h, err := mgr.StartListening(ctx, listener.Spec{
	    Name:          "secure",
	    Host:          "0.0.0.0",
	    Port:          8443,
	    MaxRetries:    5,
	    RetryInterval: 2 * time.Second,
	    Handler:       router,
	    TLSConfig:     tlsCfg,
	})
	if errors.Is(err, listener.ErrAddressInUse) {
	    // retries exhausted
	}

# Runtime Errors

Errors the server hits after startup are delivered to observers registered
with ServerHandle.Observe. An error that happens before the first observer
attaches is held and handed to that observer, so no failure is lost in the
window between binding and readiness.

# Stopping

StopListening drains in-flight requests until its context ends and returns
(never panics with) any close error. Calling it on a closed handle is a
no-op.
*/
package listener
