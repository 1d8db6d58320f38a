package emit

import "golang.org/x/exp/constraints"

// fitsSignedByte reports whether v fits in the encoder's 1-byte signed
// immediate form ([-128, 127]), shared by every LdcI4-style short-form
// choice regardless of the caller's integer width.
func fitsSignedByte[T constraints.Signed](v T) bool {
	return v >= -128 && v <= 127
}

// fitsUnsignedByte reports whether an index v fits the 1-byte short form
// used by the locals/arguments short encodings ([0, 255]).
func fitsUnsignedByte[T constraints.Integer](v T) bool {
	return v >= 0 && uint64(v) <= 255
}
