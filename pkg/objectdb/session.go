// Package objectdb is the embedded object database: a Session owns one record
// store per collection and runs work in journaled transactions.
package objectdb

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/logger"
	"github.com/huynhanx03/go-objectdb/pkg/records"
	"github.com/huynhanx03/go-objectdb/pkg/settings"
	"github.com/huynhanx03/go-objectdb/pkg/storage"
	"github.com/huynhanx03/go-objectdb/pkg/storage/journal"
)

// commitRecordName is the file that names a transaction spanning several
// stores once all of their batches are prepared.
const commitRecordName = "_session.commit"

// store is the record store behind one collection.
type store struct {
	name    string
	engine  *journal.TxEngine
	manager *records.Manager
	onReset []func()
}

func (st *store) reset() {
	for _, fn := range st.onReset {
		fn()
	}
}

type transaction struct {
	id       uuid.UUID
	enlisted []*store
}

// Session is an open database directory. It is not safe for concurrent use.
type Session struct {
	dir    string
	cfg    settings.Config
	logger *zap.Logger

	stores  map[string]*store
	tx      *transaction
	commits *journal.Journal
	failed  error
}

// Open opens or creates the database in dir. Journals left by an interrupted
// commit are recovered before Open returns.
func Open(dir string, cfg settings.Config, l *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "objectdb.Open", "invalid config", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.IO("objectdb.Open", err, apperr.MsgOpenFailed)
	}

	s := &Session{
		dir:    dir,
		cfg:    cfg,
		logger: logger.OrNop(l),
		stores: make(map[string]*store),
	}
	if err := s.recover(); err != nil {
		if s.commits != nil {
			s.commits.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) recover() error {
	committed, err := s.openCommitRecord()
	if err != nil {
		return err
	}
	journals, err := filepath.Glob(filepath.Join(s.dir, "*"+s.cfg.Journal.Extension))
	if err != nil {
		return errors.Wrap(err, "failed to list journals")
	}

	var g errgroup.Group
	for _, path := range journals {
		if filepath.Base(path) == commitRecordName {
			continue
		}
		g.Go(func() error {
			return s.recoverJournal(path, committed)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.commits == nil {
		return nil
	}
	if err := s.commits.Clear(); err != nil {
		return err
	}
	if !s.cfg.Journal.Enabled {
		err := s.commits.Close()
		s.commits = nil
		return err
	}
	return nil
}

// openCommitRecord opens the commit record and returns the transaction it
// names, or uuid.Nil. The record is only created when journaling is enabled.
func (s *Session) openCommitRecord() (uuid.UUID, error) {
	path := filepath.Join(s.dir, commitRecordName)
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if !exists && !s.cfg.Journal.Enabled {
		return uuid.Nil, nil
	}

	f, err := storage.OpenFile(path)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		if err := storage.SyncDir(s.dir); err != nil {
			f.Close()
			return uuid.Nil, err
		}
	}
	s.commits = journal.New(f, s.logger.With(zap.String("journal", commitRecordName)))

	id, err := s.commits.LastTx()
	if err != nil {
		s.commits.Close()
		s.commits = nil
		return uuid.Nil, err
	}
	if id != uuid.Nil {
		s.logger.Info("finishing committed transaction", zap.Stringer("tx", id))
	}
	return id, nil
}

func (s *Session) recoverJournal(path string, committed uuid.UUID) error {
	dataPath := strings.TrimSuffix(path, s.cfg.Journal.Extension) + s.cfg.Storage.DataExtension

	jf, err := storage.OpenFile(path)
	if err != nil {
		return err
	}
	j := journal.New(jf, s.logger.With(zap.String("journal", filepath.Base(path))))
	defer j.Close()

	df, err := storage.OpenFile(dataPath)
	if err != nil {
		return err
	}
	defer df.Close()

	_, err = j.RecoverCommitted(df, committed)
	return err
}

// Dir returns the database directory.
func (s *Session) Dir() string {
	return s.dir
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() settings.Config {
	return s.cfg
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// RunInTransaction runs fn in a transaction. A call made while a transaction
// is open joins it. If fn fails every store touched by the transaction is
// rolled back; otherwise all of them are committed.
func (s *Session) RunInTransaction(fn func() error) error {
	if s.tx != nil {
		return fn()
	}
	if s.failed != nil {
		return apperr.New(apperr.KindIO, "objectdb.RunInTransaction", "session must be reopened after a failed commit", s.failed)
	}
	s.tx = &transaction{id: uuid.New()}
	err := fn()
	tx := s.tx
	s.tx = nil

	if err != nil {
		s.rollback(tx, tx.enlisted, err)
		return err
	}
	return s.commit(tx)
}

// enlist makes st part of the open transaction.
func (s *Session) enlist(st *store) error {
	if s.tx == nil {
		return apperr.InvalidArgument("objectdb.enlist", "no open transaction")
	}
	for _, e := range s.tx.enlisted {
		if e == st {
			return nil
		}
	}
	if err := st.engine.Begin(); err != nil {
		return err
	}
	s.tx.enlisted = append(s.tx.enlisted, st)
	return nil
}

// commit commits the enlisted stores. When more than one store has journaled
// writes the transaction goes through the commit record; otherwise each
// store commits on its own.
func (s *Session) commit(tx *transaction) error {
	if s.commits != nil && journaledStores(tx) > 1 {
		return s.commitShared(tx)
	}
	for i, st := range tx.enlisted {
		err := st.engine.Commit(tx.id)
		st.reset()
		if err != nil {
			s.rollback(tx, tx.enlisted[i+1:], err)
			if rerr := st.manager.Reload(); rerr != nil {
				s.logger.Error("reloading store after failed commit", zap.String("store", st.name), zap.Error(rerr))
			}
			return err
		}
	}
	return nil
}

func journaledStores(tx *transaction) int {
	n := 0
	for _, st := range tx.enlisted {
		if st.engine.Journaling() && st.engine.Pending() > 0 {
			n++
		}
	}
	return n
}

// commitShared prepares a batch in every store's journal, names the
// transaction in the commit record and only then applies the batches.
// Recovery replays shared batches only for the named transaction.
func (s *Session) commitShared(tx *transaction) error {
	for _, st := range tx.enlisted {
		if err := st.engine.Prepare(tx.id, true); err != nil {
			s.rollback(tx, tx.enlisted, err)
			return err
		}
	}
	if err := s.commits.Append(journal.Batch{TxID: tx.id}); err != nil {
		s.rollback(tx, tx.enlisted, err)
		return err
	}

	var firstErr error
	for _, st := range tx.enlisted {
		err := st.engine.Apply()
		st.reset()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		// the commit record and the remaining batches finish it on the next Open
		s.failed = firstErr
		s.logger.Error("applying transaction failed, reopen to recover", zap.Stringer("tx", tx.id), zap.Error(firstErr))
		return firstErr
	}
	if err := s.commits.Clear(); err != nil {
		// a stale record is harmless: its id names no pending batch
		s.logger.Warn("clearing commit record", zap.Stringer("tx", tx.id), zap.Error(err))
	}
	return nil
}

func (s *Session) rollback(tx *transaction, stores []*store, cause error) {
	for _, st := range stores {
		st.engine.Rollback()
		st.reset()
		if err := st.manager.Reload(); err != nil {
			s.logger.Error("reloading store after rollback", zap.String("store", st.name), zap.Error(err))
		}
	}
	s.logger.Warn("transaction rolled back",
		zap.Stringer("tx", tx.id),
		zap.Int("stores", len(stores)),
		zap.Error(cause))
}

// openStore returns the store for name, opening its files on first use.
func (s *Session) openStore(name string) (*store, error) {
	if st, ok := s.stores[name]; ok {
		return st, nil
	}

	order, err := records.ByteOrder(s.cfg.Storage.ByteOrder)
	if err != nil {
		return nil, err
	}
	df, err := storage.OpenFile(filepath.Join(s.dir, name+s.cfg.Storage.DataExtension))
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("collection", name))
	var j *journal.Journal
	if s.cfg.Journal.Enabled {
		jf, err := storage.OpenFile(filepath.Join(s.dir, name+s.cfg.Journal.Extension))
		if err != nil {
			df.Close()
			return nil, err
		}
		j = journal.New(jf, log)
	}

	engine := journal.NewTxEngine(df, j, log)
	manager, err := records.NewManager(engine, records.WithByteOrder(order), records.WithLogger(log))
	if err != nil {
		engine.Close()
		return nil, err
	}

	st := &store{name: name, engine: engine, manager: manager}
	s.stores[name] = st
	return st, nil
}

// Close closes every store. Closing with an open transaction is an error.
func (s *Session) Close() error {
	if s.tx != nil {
		return apperr.InvalidArgument("objectdb.Close", "transaction still open")
	}
	var firstErr error
	for name, st := range s.stores {
		if err := st.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.stores, name)
	}
	if s.commits != nil {
		if err := s.commits.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.commits = nil
	}
	return firstErr
}
