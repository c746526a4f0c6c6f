package nettopogen

// errors.go declares the sentinel errors that cross every package boundary.
// Operations wrap these with fmt.Errorf("...: %w", ...) so callers can attach
// context while errors.Is still matches the kind.

import "errors"

var (
	// ErrNotFound reports that a referenced node or link is absent.
	ErrNotFound = errors.New("node or link not found")

	// ErrDuplicateLink reports that the unordered node pair already has a link.
	ErrDuplicateLink = errors.New("link already present between endpoints")

	// ErrInvalidReference reports a link whose endpoint is missing or malformed.
	ErrInvalidReference = errors.New("link endpoint not present in topology")

	// ErrInvalidMetric reports an out-of-range QoS attribute or weight,
	// including a non-positive bandwidth offered to the cost model.
	ErrInvalidMetric = errors.New("metric or weight out of range")

	// ErrNoPath reports that source and destination are not connected
	// through currently available nodes and links.
	ErrNoPath = errors.New("no path between endpoints")

	// ErrNegativeCycle reports that Bellman-Ford detected a negative cost cycle.
	ErrNegativeCycle = errors.New("negative cost cycle detected")

	// ErrConvergenceTimeout reports that distance-vector convergence hit the
	// round limit without stabilizing, the observable form of count-to-infinity.
	ErrConvergenceTimeout = errors.New("convergence round limit reached")

	// ErrUnknownFlow reports an operation against an unregistered traffic flow.
	ErrUnknownFlow = errors.New("flow not registered")

	// ErrInvalidPath reports a flow whose endpoints or cached path reference
	// topology elements that no longer exist.
	ErrInvalidPath = errors.New("flow path references missing topology elements")
)
