// Package fault classifies the errors that abort processing of a block.
//
// Every class is a string type so instances compare by value and survive
// wrapping with fmt.Errorf("...: %w", err). Use the IsX helpers rather than
// matching messages.
package fault

import "errors"

// LayoutError reports a storage layout that cannot be applied to a word.
type LayoutError string

// StructureError reports block input whose shape violates an assumption of
// the extractor (too few tokens, unordered ordinals, malformed payloads).
type StructureError string

// PolicyError reports a store key written under a merge policy other than
// the one it was created with.
type PolicyError string

// OrderError reports a write applied out of ordinal or block-height order.
type OrderError string

func (e LayoutError) Error() string    { return string(e) }
func (e StructureError) Error() string { return string(e) }
func (e PolicyError) Error() string    { return string(e) }
func (e OrderError) Error() string     { return string(e) }

// keep in alphabetic order within each class
var (
	ErrFieldOverflow = LayoutError("offset plus width exceeds word size")
	ErrWordOverrun   = LayoutError("storage word shorter than field")
	ErrWordTooLong   = LayoutError("storage word longer than 32 bytes")
	ErrZeroWidth     = LayoutError("field width is zero")

	ErrDuplicateOrdinal = StructureError("duplicate ordinal in block")
	ErrMalformedPayload = StructureError("malformed event payload")
	ErrMissingTokens    = StructureError("component has fewer tokens than required")
	ErrUnorderedChanges = StructureError("storage changes not in ordinal order")

	ErrPolicyMismatch = PolicyError("key written under a different merge policy")

	ErrDuplicateDelta   = OrderError("delta already applied at this ordinal")
	ErrOrdinalRegressed = OrderError("ordinal not greater than previous write to key")
	ErrStaleBlock       = OrderError("block not above last committed block")
	ErrTxClosed         = OrderError("transaction already committed or discarded")
)

// IsLayout reports whether err is (or wraps) a LayoutError.
func IsLayout(err error) bool {
	var e LayoutError
	return errors.As(err, &e)
}

// IsStructure reports whether err is (or wraps) a StructureError.
func IsStructure(err error) bool {
	var e StructureError
	return errors.As(err, &e)
}

// IsPolicy reports whether err is (or wraps) a PolicyError.
func IsPolicy(err error) bool {
	var e PolicyError
	return errors.As(err, &e)
}

// IsOrder reports whether err is (or wraps) an OrderError.
func IsOrder(err error) bool {
	var e OrderError
	return errors.As(err, &e)
}

// IsFatal reports whether err belongs to any class that aborts a block.
func IsFatal(err error) bool {
	return IsLayout(err) || IsStructure(err) || IsPolicy(err) || IsOrder(err)
}
