package index

import (
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
)

// OrderedKey encodes v as a string whose byte order matches the order of the
// values. Encodings of one type are prefix-free, so composite keys can be
// built by concatenation. The result is hex and therefore valid UTF-8.
// Negative zero encodes as zero and NaN sorts after +Inf.
func OrderedKey[V cmp.Ordered](v V) string {
	return hex.EncodeToString(appendOrdered(nil, reflect.ValueOf(v)))
}

func appendOrdered(dst []byte, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.BigEndian.AppendUint64(dst, uint64(v.Int())^(1<<63))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return binary.BigEndian.AppendUint64(dst, v.Uint())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f == 0 {
			f = 0
		}
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return binary.BigEndian.AppendUint64(dst, bits)
	case reflect.String:
		// 0x00 is escaped as 0x00 0xff and the string ends with 0x00 0x01
		for _, c := range []byte(v.String()) {
			dst = append(dst, c)
			if c == 0 {
				dst = append(dst, 0xff)
			}
		}
		return append(dst, 0, 1)
	}
	panic(fmt.Sprintf("index: unsupported key kind %s", v.Kind()))
}
