package ledger

import (
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

// ErrMalformedData is returned when instruction or account bytes do not match
// the expected Borsh layout.
var ErrMalformedData = errors.New("ledger: malformed borsh data")

// EncodeBorsh returns prefix followed by the Borsh encoding of v. v must be a
// value (not a pointer) composed of fixed-width integers, bools, strings,
// arrays, slices and structs with exported fields.
func EncodeBorsh(prefix []byte, v any) []byte {
	body, err := borsh.Serialize(v)
	if err != nil {
		panic(fmt.Sprintf("ledger: borsh encode %T: %v", v, err))
	}
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...)
}

// DecodeBorsh decodes the value at the start of data into v, which must be a
// pointer. Trailing bytes are ignored so fixed-size account buffers decode
// without trimming.
func DecodeBorsh(data []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedData, r)
		}
	}()
	if err := borsh.Deserialize(v, data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return nil
}
