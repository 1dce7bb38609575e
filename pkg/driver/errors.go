package driver

import "errors"

// ErrSubscriptionClosed is returned when a closed subscription is asked to
// reconcile its watches.
var ErrSubscriptionClosed = errors.New("subscription is closed")
