// Package errors defines the structured error taxonomy used across resourcekit.
//
// Every failure that crosses a package boundary is an *Error carrying a code,
// a category and optional metadata about the resource involved. Callers branch
// on the code rather than on message text:
//
//	res, err := reg.AddResource(ctx, def, actor)
//	switch {
//	case errors.Is(err, errors.ErrCodeDuplicateName):
//	    // pick another name or update the existing resource
//	case errors.Is(err, errors.ErrCodeUnhealthy):
//	    // fix the resource and retry
//	}
//
// # Categories
//
//   - Permanent: the caller must change its input or logic (validation,
//     duplicate name, not found, invalid state, unhealthy on add).
//   - Transient: a retry may succeed (drain timeout, state backend or ledger I/O).
//   - Internal: unexpected failures such as recovered panics.
//
// Errors wrap their cause, so the standard library errors.Is and errors.As
// still see backend sentinels such as state.ErrNotFound.
package errors
