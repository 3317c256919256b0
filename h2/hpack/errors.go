package hpack

import "errors"

var (
	// errNeedMore is returned when an integer or string literal is
	// truncated mid-field; DecodeFull returns it unchanged, since a full
	// header block is never expected to end mid-field.
	errNeedMore = errors.New("hpack: truncated field")

	// errVarIntTooLarge is returned when a varint's continuation bytes
	// would overflow the 64-bit accumulator (RFC 7541 section 5.1
	// implementations must guard against unbounded encodings).
	errVarIntTooLarge = errors.New("hpack: integer too large")

	errInvalidIndex = errors.New("hpack: invalid table index")

	// errMixedCaseName is not returned by the decoder: for a header field
	// name that is not already lower-case, Decoder.checkName returns its
	// own error carrying the exact wire-facing message.
	errMixedCaseName = errors.New("hpack: mixed case name")
)
