package records

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/buffer"
)

// The named-record table maps names to addresses. It is stored as an
// ordinary data record: | count 4B | count * (| nameLen 2B | name | address 8B |)
func encodeNamed(table map[string]int64, order binary.ByteOrder) ([]byte, error) {
	names := make([]string, 0, len(table))
	for name := range table {
		if len(name) > math.MaxUint16 {
			return nil, apperr.InvalidArgument("records.encodeNamed", "name of %d bytes is too long", len(name))
		}
		names = append(names, name)
	}
	slices.Sort(names)

	w := buffer.NewWriter(nil, order)
	w.WriteUint32(uint32(len(names)))
	for _, name := range names {
		w.WriteUint16(uint16(len(name))).
			WriteBytes([]byte(name)).
			WriteInt64(table[name])
	}
	return w.Bytes(), nil
}

func decodeNamed(p []byte, order binary.ByteOrder) (map[string]int64, error) {
	const op = "records.decodeNamed"
	r := buffer.NewReader(p, order)
	count, err := r.ReadUint32()
	if err != nil {
		return nil, apperr.New(apperr.KindCorruption, op, apperr.MsgDecodeFailed, err)
	}

	table := make(map[string]int64, count)
	for i := uint32(0); i < count; i++ {
		n, err := r.ReadUint16()
		if err != nil {
			return nil, apperr.New(apperr.KindCorruption, op, apperr.MsgDecodeFailed, err)
		}
		name, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, apperr.New(apperr.KindCorruption, op, apperr.MsgDecodeFailed, err)
		}
		addr, err := r.ReadInt64()
		if err != nil {
			return nil, apperr.New(apperr.KindCorruption, op, apperr.MsgDecodeFailed, err)
		}
		table[string(name)] = addr
	}
	return table, nil
}
