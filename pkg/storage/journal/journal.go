// Package journal implements the write-ahead journal that makes a
// transaction's writes to a storage engine atomic across crashes.
//
// A batch is made durable in the journal before any of its writes touch the
// data engine. On reopen a complete batch is replayed and a torn one is
// discarded, so the data engine is always in its pre- or post-transaction
// state.
package journal

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/datastructs/buffer"
	"github.com/huynhanx03/go-objectdb/pkg/hash"
	"github.com/huynhanx03/go-objectdb/pkg/logger"
	"github.com/huynhanx03/go-objectdb/pkg/storage"
)

// Layout: | magic 4B | version 2B | flags 2B | txID 16B | count 4B |
// count * (| offset 8B | length 4B | data |) | checksum 8B | commit 4B |
const (
	magic        = "OJNL"
	commitMarker = "CMIT"
	version      = uint16(1)

	flagShared = uint16(1)

	batchHeaderSize = 4 + 2 + 2 + 16 + 4
	writeHeaderSize = 8 + 4
	batchTailSize   = 8 + 4
)

var order = binary.LittleEndian

// errTorn marks a batch that was not completely written.
var errTorn = errors.New("journal: torn batch")

// Write is one pending write to the data engine.
type Write struct {
	Offset int64
	Data   []byte
}

// Batch is the unit of atomicity: every write of one transaction to one
// engine. A Shared batch is one of several written for the same transaction;
// it is replayed only when that transaction is known to have committed.
type Batch struct {
	TxID   uuid.UUID
	Shared bool
	Writes []Write
}

// Journal stores at most one batch in its own engine.
type Journal struct {
	engine storage.Engine
	logger *zap.Logger
}

// New wraps engine, typically a file next to the data file.
func New(engine storage.Engine, l *zap.Logger) *Journal {
	return &Journal{engine: engine, logger: logger.OrNop(l)}
}

func encodeBatch(b Batch) []byte {
	size := batchHeaderSize + batchTailSize
	for _, w := range b.Writes {
		size += writeHeaderSize + len(w.Data)
	}

	var flags uint16
	if b.Shared {
		flags |= flagShared
	}
	w := buffer.NewWriter(make([]byte, size), order)
	w.WriteBytes([]byte(magic)).
		WriteUint16(version).
		WriteUint16(flags).
		WriteBytes(b.TxID[:]).
		WriteUint32(uint32(len(b.Writes)))
	for _, pw := range b.Writes {
		w.WriteInt64(pw.Offset).WriteUint32(uint32(len(pw.Data))).WriteBytes(pw.Data)
	}
	sum := hash.Checksum(w.Bytes()[len(magic):])
	w.WriteUint64(sum).WriteBytes([]byte(commitMarker))
	return w.Bytes()
}

func decodeBatch(data []byte) (Batch, error) {
	var b Batch
	r := buffer.NewReader(data, order)

	m, err := r.ReadBytes(len(magic))
	if err != nil || string(m) != magic {
		return b, errTorn
	}
	v, err := r.ReadUint16()
	if err != nil {
		return b, errTorn
	}
	if v != version {
		return b, errors.Errorf("journal: unsupported version %d", v)
	}
	flags, err := r.ReadUint16()
	if err != nil {
		return b, errTorn
	}
	b.Shared = flags&flagShared != 0
	id, err := r.ReadBytes(16)
	if err != nil {
		return b, errTorn
	}
	copy(b.TxID[:], id)
	count, err := r.ReadUint32()
	if err != nil {
		return b, errTorn
	}

	for i := uint32(0); i < count; i++ {
		off, err := r.ReadInt64()
		if err != nil {
			return b, errTorn
		}
		n, err := r.ReadUint32()
		if err != nil {
			return b, errTorn
		}
		p, err := r.ReadBytes(int(n))
		if err != nil {
			return b, errTorn
		}
		b.Writes = append(b.Writes, Write{Offset: off, Data: p})
	}

	body := data[len(magic):r.Pos()]
	sum, err := r.ReadUint64()
	if err != nil {
		return b, errTorn
	}
	marker, err := r.ReadBytes(len(commitMarker))
	if err != nil || string(marker) != commitMarker {
		return b, errTorn
	}
	if !hash.Verify(sum, body) {
		return b, errTorn
	}
	return b, nil
}

// Append makes b durable. It replaces any batch already in the journal.
func (j *Journal) Append(b Batch) error {
	data := encodeBatch(b)
	if err := j.engine.Truncate(0); err != nil {
		return apperr.IO("journal.Append", err, apperr.MsgTruncateFailed)
	}
	if _, err := j.engine.WriteAt(data, 0); err != nil {
		return apperr.IO("journal.Append", err, apperr.MsgWriteFailed)
	}
	if err := j.engine.Sync(); err != nil {
		return apperr.IO("journal.Append", err, apperr.MsgSyncFailed)
	}
	return nil
}

// Pending returns the batch in the journal, nil when the journal is empty, or
// an error wrapping errTorn when the batch is incomplete.
func (j *Journal) Pending() (*Batch, error) {
	size, err := j.engine.Size()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := storage.ReadFull(j.engine, data, 0); err != nil {
		return nil, apperr.IO("journal.Pending", err, apperr.MsgReadFailed)
	}
	b, err := decodeBatch(data)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// LastTx returns the transaction id of the batch in the journal, or uuid.Nil
// when the journal is empty or its batch is torn.
func (j *Journal) LastTx() (uuid.UUID, error) {
	b, err := j.Pending()
	switch {
	case errors.Is(err, errTorn):
		return uuid.Nil, nil
	case err != nil:
		return uuid.Nil, err
	case b == nil:
		return uuid.Nil, nil
	}
	return b.TxID, nil
}

// Recover brings target to a consistent state: a complete batch is replayed
// onto it, a torn batch is dropped. It reports whether a batch was replayed.
// Shared batches are dropped; use RecoverCommitted for those.
func (j *Journal) Recover(target storage.Engine) (bool, error) {
	return j.RecoverCommitted(target, uuid.Nil)
}

// RecoverCommitted is Recover for a journal that may hold a shared batch. A
// shared batch is replayed only when its transaction id is committed.
func (j *Journal) RecoverCommitted(target storage.Engine, committed uuid.UUID) (bool, error) {
	b, err := j.Pending()
	switch {
	case errors.Is(err, errTorn):
		j.logger.Warn("discarding incomplete journal batch")
		return false, j.Clear()
	case err != nil:
		return false, err
	case b == nil:
		return false, nil
	case b.Shared && (committed == uuid.Nil || b.TxID != committed):
		j.logger.Warn("discarding uncommitted shared journal batch", zap.Stringer("tx", b.TxID))
		return false, j.Clear()
	}

	if err := Apply(target, b.Writes); err != nil {
		return false, err
	}
	j.logger.Info("replayed journal batch",
		zap.Stringer("tx", b.TxID),
		zap.Int("writes", len(b.Writes)))
	return true, j.Clear()
}

// Apply performs writes on target in order and syncs it.
func Apply(target storage.Engine, writes []Write) error {
	for _, w := range writes {
		if _, err := target.WriteAt(w.Data, w.Offset); err != nil {
			return apperr.IO("journal.Apply", err, apperr.MsgWriteFailed)
		}
	}
	if err := target.Sync(); err != nil {
		return apperr.IO("journal.Apply", err, apperr.MsgSyncFailed)
	}
	return nil
}

// Clear empties the journal.
func (j *Journal) Clear() error {
	if err := j.engine.Truncate(0); err != nil {
		return apperr.IO("journal.Clear", err, apperr.MsgTruncateFailed)
	}
	return apperr.MapIO("journal.Clear", j.engine.Sync(), apperr.MsgSyncFailed)
}

// Close closes the journal engine.
func (j *Journal) Close() error {
	return j.engine.Close()
}
