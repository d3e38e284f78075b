package journal

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/logger"
	"github.com/huynhanx03/go-objectdb/pkg/storage"
)

var _ storage.Engine = (*TxEngine)(nil)

// TxEngine is a storage.Engine that buffers the writes of an open transaction
// and applies them through the journal on Commit. Reads observe the buffered
// writes. Outside a transaction, or with journaling disabled, writes go
// straight to the base engine.
type TxEngine struct {
	base       storage.Engine
	journal    *Journal
	journaling bool
	logger     *zap.Logger

	active   bool
	prepared bool
	appended bool
	txID     uuid.UUID
	pending  []Write
	size     int64
}

// NewTxEngine wraps base. A nil journal disables journaling permanently.
func NewTxEngine(base storage.Engine, j *Journal, l *zap.Logger) *TxEngine {
	return &TxEngine{
		base:       base,
		journal:    j,
		journaling: j != nil,
		logger:     logger.OrNop(l),
	}
}

// Begin opens a transaction.
func (e *TxEngine) Begin() error {
	if e.active {
		return apperr.InvalidArgument("journal.Begin", "transaction already open")
	}
	size, err := e.base.Size()
	if err != nil {
		return err
	}
	e.active = true
	e.prepared = false
	e.appended = false
	e.size = size
	e.pending = nil
	return nil
}

// Active reports whether a transaction is open.
func (e *TxEngine) Active() bool {
	return e.active
}

// Journaling reports whether writes are buffered and journaled.
func (e *TxEngine) Journaling() bool {
	return e.journaling
}

// SetJournaling turns journaling on or off. It cannot change while writes are
// buffered.
func (e *TxEngine) SetJournaling(on bool) error {
	if len(e.pending) > 0 {
		return apperr.InvalidArgument("journal.SetJournaling", "%d writes are pending", len(e.pending))
	}
	if on && e.journal == nil {
		return apperr.InvalidArgument("journal.SetJournaling", "no journal configured")
	}
	e.journaling = on
	return nil
}

func (e *TxEngine) buffering() bool {
	return e.active && e.journaling
}

// Pending returns the number of buffered writes.
func (e *TxEngine) Pending() int {
	return len(e.pending)
}

// Commit makes the transaction's writes durable: journal first, then the
// data engine, then the journal is cleared. A failure before the journal is
// written rolls the transaction back.
func (e *TxEngine) Commit(txID uuid.UUID) error {
	if err := e.Prepare(txID, false); err != nil {
		if e.active {
			e.Rollback()
		}
		return err
	}
	return e.Apply()
}

// Prepare writes the buffered writes to the journal without touching the data
// engine. A shared batch is only replayed at recovery once its transaction is
// recorded as committed elsewhere.
func (e *TxEngine) Prepare(txID uuid.UUID, shared bool) error {
	if !e.active {
		return apperr.InvalidArgument("journal.Prepare", "no open transaction")
	}
	if e.prepared {
		return apperr.InvalidArgument("journal.Prepare", "transaction already prepared")
	}
	if e.journaling && len(e.pending) > 0 {
		e.appended = true
		if err := e.journal.Append(Batch{TxID: txID, Shared: shared, Writes: e.pending}); err != nil {
			return err
		}
	}
	e.txID = txID
	e.prepared = true
	return nil
}

// Apply writes a prepared transaction to the data engine and clears the
// journal. On failure the batch stays in the journal for the next recovery.
func (e *TxEngine) Apply() error {
	if !e.prepared {
		return apperr.InvalidArgument("journal.Apply", "transaction not prepared")
	}
	pending, journaled, txID := e.pending, e.journaling, e.txID
	e.active, e.prepared, e.appended = false, false, false
	e.pending = nil

	if !journaled {
		return apperr.MapIO("journal.Apply", e.base.Sync(), apperr.MsgSyncFailed)
	}
	if len(pending) == 0 {
		return nil
	}
	if err := Apply(e.base, pending); err != nil {
		e.logger.Error("applying journaled writes failed", zap.Stringer("tx", txID), zap.Error(err))
		return err
	}
	e.logger.Debug("transaction committed", zap.Stringer("tx", txID), zap.Int("writes", len(pending)))
	return e.journal.Clear()
}

// Rollback discards the buffered writes and any batch Prepare wrote.
func (e *TxEngine) Rollback() {
	if len(e.pending) > 0 {
		e.logger.Debug("transaction rolled back", zap.Int("writes", len(e.pending)))
	}
	if e.appended {
		if err := e.journal.Clear(); err != nil {
			e.logger.Error("clearing journal on rollback", zap.Error(err))
		}
	}
	e.active, e.prepared, e.appended = false, false, false
	e.pending = nil
}

func (e *TxEngine) WriteAt(p []byte, off int64) (int, error) {
	if !e.buffering() {
		n, err := e.base.WriteAt(p, off)
		if e.active && off+int64(n) > e.size {
			e.size = off + int64(n)
		}
		return n, err
	}
	if off < 0 {
		return 0, apperr.InvalidArgument("journal.WriteAt", "negative offset %d", off)
	}
	data := make([]byte, len(p))
	copy(data, p)
	e.pending = append(e.pending, Write{Offset: off, Data: data})
	if end := off + int64(len(p)); end > e.size {
		e.size = end
	}
	return len(p), nil
}

func (e *TxEngine) ReadAt(p []byte, off int64) (int, error) {
	if !e.buffering() || len(e.pending) == 0 {
		return e.base.ReadAt(p, off)
	}
	if off >= e.size {
		return 0, io.EOF
	}
	n := len(p)
	if off+int64(n) > e.size {
		n = int(e.size - off)
	}
	dst := p[:n]
	clear(dst)
	if _, err := e.base.ReadAt(dst, off); err != nil && err != io.EOF {
		return 0, err
	}

	end := off + int64(n)
	for _, w := range e.pending {
		wEnd := w.Offset + int64(len(w.Data))
		if wEnd <= off || w.Offset >= end {
			continue
		}
		from := max(off, w.Offset)
		to := min(end, wEnd)
		copy(dst[from-off:to-off], w.Data[from-w.Offset:to-w.Offset])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (e *TxEngine) Size() (int64, error) {
	if e.active {
		return e.size, nil
	}
	return e.base.Size()
}

func (e *TxEngine) Truncate(size int64) error {
	if e.buffering() {
		return apperr.InvalidArgument("journal.Truncate", "cannot truncate inside a journaled transaction")
	}
	if e.active {
		e.size = size
	}
	return e.base.Truncate(size)
}

func (e *TxEngine) Sync() error {
	if e.buffering() {
		return nil
	}
	return e.base.Sync()
}

// Close closes the base engine and the journal.
func (e *TxEngine) Close() error {
	err := e.base.Close()
	if e.journal != nil {
		if jerr := e.journal.Close(); err == nil {
			err = jerr
		}
	}
	return err
}
