// Package shared contains the error taxonomy used across the notifier.
//
// Sentinel errors name the failure classes callers branch on:
//
//   - ErrNotFound: unknown delivery, unknown channel kind
//   - ErrValidation: rejected input such as a negative attempt limit
//   - ErrTimeout: an operation ran out of time
//   - ErrDependencyFailure: a provider or database call failed
//   - ErrInternal: anything else that is our fault
//
// Use KindOf to classify an error chain and MarkKind to attach a class to a
// third-party error without losing it:
//
//	if errors.Is(err, sql.ErrNoRows) {
//	    return shared.MarkKind(err, shared.KindNotFound)
//	}
//
// Adapters map kinds to transport codes; this package never does:
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	}
//
// Messages are lowercase without punctuation so they compose when wrapped.
package shared
