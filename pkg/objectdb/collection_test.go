package objectdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
	"github.com/huynhanx03/go-objectdb/pkg/settings"
	"github.com/huynhanx03/go-objectdb/pkg/storage"
	"github.com/huynhanx03/go-objectdb/pkg/storage/journal"
)

type book struct {
	ID     int64  `bson:"id" json:"id"`
	Title  string `bson:"title" json:"title"`
	Author string `bson:"author" json:"author"`
	Year   int    `bson:"year" json:"year"`
}

type author struct {
	Name string `bson:"name" json:"name"`
	Born int    `bson:"born" json:"born"`
}

var bookIndex = IndexDefinition[book, int64]{ID: func(b *book) int64 { return b.ID }}

func testConfig() settings.Config {
	cfg := settings.Default()
	cfg.Index.Degree = 2
	cfg.Storage.ByteOrder = "little"
	return cfg
}

var authorIndex = IndexDefinition[author, string]{ID: func(a *author) string { return a.Name }}

func openAuthors(t *testing.T, s *Session) *Collection[author, string] {
	t.Helper()
	authors, err := NewCollection(s, "authors", authorIndex)
	require.NoError(t, err)
	return authors
}

func ids(objs []*book) []int64 {
	out := make([]int64, 0, len(objs))
	for _, b := range objs {
		out = append(out, b.ID)
	}
	return out
}

func openBooks(t *testing.T, dir string, cfg settings.Config) (*Session, *Collection[book, int64]) {
	t.Helper()
	s, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	books, err := NewCollection(s, "books", bookIndex)
	require.NoError(t, err)
	return s, books
}

// =============================================================================
// CRUD
// =============================================================================

func TestCollection_PersistFind(t *testing.T) {
	dir := t.TempDir()
	s, books := openBooks(t, dir, testConfig())

	for i := int64(1); i <= 30; i++ {
		require.NoError(t, books.Persist(&book{ID: i, Title: strings.Repeat("t", int(i))}))
	}

	got, err := books.Find(17)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, strings.Repeat("t", 17), got.Title)

	missing, err := books.Find(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
	require.NoError(t, s.Close())

	// everything survives a reopen
	s, books = openBooks(t, dir, testConfig())
	defer s.Close()
	n, err := books.Count()
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	got, err = books.Find(30)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Title, 30)
}

func TestCollection_PersistUpdates(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	require.NoError(t, books.Persist(&book{ID: 1, Title: "short"}))
	require.NoError(t, books.Persist(&book{ID: 2, Title: "other"}))
	require.NoError(t, books.Persist(&book{ID: 1, Title: strings.Repeat("long", 100), Author: "someone"}))

	got, err := books.Find(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "someone", got.Author)
	assert.Len(t, got.Title, 400)

	n, err := books.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollection_Destroy(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, books.Persist(&book{ID: i}))
	}
	require.NoError(t, books.Destroy(&book{ID: 3}))
	require.NoError(t, books.Destroy(&book{ID: 42}))

	got, err := books.Find(3)
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := books.All()
	require.NoError(t, err)
	var ids []int64
	for _, b := range all {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int64{1, 2, 4, 5}, ids)
}

func TestCollection_AllInKeyOrder(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	for _, id := range []int64{9, 3, 7, 1, 5} {
		require.NoError(t, books.Persist(&book{ID: id}))
	}
	all, err := books.All()
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, b := range all {
		assert.Equal(t, int64(2*i+1), b.ID)
	}
}

func TestCollection_DestroyAll(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, books.Persist(&book{ID: i}))
	}
	require.NoError(t, books.DestroyAll())

	n, err := books.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, books.store.engine.Journaling(), "journal is re-enabled afterwards")

	err = s.RunInTransaction(func() error {
		return books.DestroyAll()
	})
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestCollection_StringKeysAndJSON(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Codec = "json"
	s, err := Open(t.TempDir(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	authors, err := NewCollection(s, "authors", IndexDefinition[author, string]{
		ID: func(a *author) string { return a.Name },
	})
	require.NoError(t, err)

	require.NoError(t, authors.Persist(&author{Name: "Knuth", Born: 1938}))
	require.NoError(t, authors.Persist(&author{Name: "Lovelace", Born: 1815}))

	got, err := authors.Find("Lovelace")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1815, got.Born)
}

func TestNewCollection_Errors(t *testing.T) {
	s, err := Open(t.TempDir(), testConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = NewCollection(s, "books", IndexDefinition[book, int64]{})
	assert.True(t, apperr.IsInvalidArgument(err))

	for _, name := range []string{"", "a/b", "..", ".", "_session"} {
		_, err = NewCollection(s, name, bookIndex)
		assert.True(t, apperr.IsInvalidArgument(err), "name %q", name)
	}

	books, err := NewCollection(s, "books", bookIndex)
	require.NoError(t, err)
	_, err = NewCollection(s, "books", bookIndex)
	assert.True(t, apperr.IsInvalidArgument(err))

	assert.True(t, apperr.IsInvalidArgument(books.Persist(nil)))
	assert.True(t, apperr.IsInvalidArgument(books.Destroy(nil)))
}

// =============================================================================
// Transactions
// =============================================================================

func TestSession_RollbackOnError(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()
	require.NoError(t, books.Persist(&book{ID: 1, Title: "kept"}))

	boom := errors.New("boom")
	err := s.RunInTransaction(func() error {
		for i := int64(2); i <= 10; i++ {
			if err := books.Persist(&book{ID: i}); err != nil {
				return err
			}
		}
		if err := books.Persist(&book{ID: 1, Title: "changed"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.InTransaction())

	got, err := books.Find(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept", got.Title)

	n, err := books.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the store keeps working after a rollback
	require.NoError(t, books.Persist(&book{ID: 2, Title: "after"}))
	got, err = books.Find(2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "after", got.Title)
}

func TestSession_NestedTransactionsJoin(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	boom := errors.New("inner failure")
	err := s.RunInTransaction(func() error {
		if err := books.Persist(&book{ID: 1}); err != nil {
			return err
		}
		return s.RunInTransaction(func() error {
			if err := books.Persist(&book{ID: 2}); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	n, err := books.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_SeesOwnWritesInTransaction(t *testing.T) {
	s, books := openBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	require.NoError(t, s.RunInTransaction(func() error {
		if err := books.Persist(&book{ID: 7, Title: "pending"}); err != nil {
			return err
		}
		got, err := books.Find(7)
		if err != nil {
			return err
		}
		assert.Equal(t, "pending", got.Title)
		assert.Positive(t, books.store.engine.Pending())
		return nil
	}))
	assert.Zero(t, books.store.engine.Pending())
}

func TestSession_MultipleCollections(t *testing.T) {
	dir := t.TempDir()
	s, books := openBooks(t, dir, testConfig())
	authors, err := NewCollection(s, "authors", IndexDefinition[author, string]{
		ID: func(a *author) string { return a.Name },
	})
	require.NoError(t, err)

	require.NoError(t, s.RunInTransaction(func() error {
		if err := books.Persist(&book{ID: 1, Author: "Knuth"}); err != nil {
			return err
		}
		return authors.Persist(&author{Name: "Knuth"})
	}))

	err = s.RunInTransaction(func() error {
		if err := authors.Persist(&author{Name: "Dijkstra"}); err != nil {
			return err
		}
		if err := books.Persist(&book{ID: 2}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NoError(t, s.Close())

	assert.FileExists(t, filepath.Join(dir, "books.data"))
	assert.FileExists(t, filepath.Join(dir, "authors.journal"))

	s, books = openBooks(t, dir, testConfig())
	defer s.Close()
	authors, err = NewCollection(s, "authors", IndexDefinition[author, string]{
		ID: func(a *author) string { return a.Name },
	})
	require.NoError(t, err)

	nb, err := books.Count()
	require.NoError(t, err)
	na, err := authors.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, nb)
	assert.Equal(t, 1, na)
}

func TestSession_CloseWithOpenTransaction(t *testing.T) {
	s, err := Open(t.TempDir(), testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, s.RunInTransaction(func() error {
		assert.True(t, apperr.IsInvalidArgument(s.Close()))
		return nil
	}))
	require.NoError(t, s.Close())
}

func TestSession_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Index.Degree = 1
	_, err := Open(t.TempDir(), cfg, nil)
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestSession_WithoutJournal(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Enabled = false
	dir := t.TempDir()
	s, books := openBooks(t, dir, cfg)
	require.NoError(t, books.Persist(&book{ID: 1, Title: "direct"}))
	require.NoError(t, s.Close())

	_, err := os.Stat(filepath.Join(dir, "books.journal"))
	assert.True(t, os.IsNotExist(err))

	s, books = openBooks(t, dir, cfg)
	defer s.Close()
	got, err := books.Find(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "direct", got.Title)
}

// =============================================================================
// Recovery
// =============================================================================

func TestOpen_ReplaysCompleteJournal(t *testing.T) {
	dir := t.TempDir()
	s, books := openBooks(t, dir, testConfig())
	require.NoError(t, books.Persist(&book{ID: 1, Title: "before"}))
	require.NoError(t, s.Close())

	dataPath := filepath.Join(dir, "books.data")
	info, err := os.Stat(dataPath)
	require.NoError(t, err)

	// a commit that crashed after the journal was synced
	jf, err := storage.OpenFile(filepath.Join(dir, "books.journal"))
	require.NoError(t, err)
	require.NoError(t, journal.New(jf, nil).Append(journal.Batch{
		TxID:   uuid.New(),
		Writes: []journal.Write{{Offset: info.Size(), Data: []byte("tail")}},
	}))
	require.NoError(t, jf.Close())

	s, books = openBooks(t, dir, testConfig())
	defer s.Close()

	data, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data[info.Size():]))

	jinfo, err := os.Stat(filepath.Join(dir, "books.journal"))
	require.NoError(t, err)
	assert.Zero(t, jinfo.Size())

	got, err := books.Find(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "before", got.Title)
}

func TestOpen_DiscardsTornJournal(t *testing.T) {
	dir := t.TempDir()
	s, books := openBooks(t, dir, testConfig())
	require.NoError(t, books.Persist(&book{ID: 1, Title: "intact"}))
	require.NoError(t, s.Close())

	before, err := os.ReadFile(filepath.Join(dir, "books.data"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "books.journal"), []byte("OJNL\x01\x00garbage"), 0o644))

	s, books = openBooks(t, dir, testConfig())
	defer s.Close()

	after, err := os.ReadFile(filepath.Join(dir, "books.data"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, err := books.Find(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "intact", got.Title)
}

func TestSession_CommitRecordClearedAfterSharedCommit(t *testing.T) {
	dir := t.TempDir()
	s, books := openBooks(t, dir, testConfig())
	defer s.Close()
	authors := openAuthors(t, s)

	require.NoError(t, s.RunInTransaction(func() error {
		if err := books.Persist(&book{ID: 1}); err != nil {
			return err
		}
		return authors.Persist(&author{Name: "Knuth"})
	}))

	info, err := os.Stat(filepath.Join(dir, commitRecordName))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	for _, name := range []string{"books.journal", "authors.journal"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Zero(t, info.Size(), name)
	}
}

func TestOpen_SharedTransactionAllOrNothing(t *testing.T) {
	tests := []struct {
		name     string
		recorded bool
		want     int
	}{
		{"prepared_not_recorded", false, 0},
		{"recorded_not_applied", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, books := openBooks(t, dir, testConfig())
			authors := openAuthors(t, s)

			// run the transaction by hand and stop before any batch is applied
			s.tx = &transaction{id: uuid.New()}
			require.NoError(t, books.Persist(&book{ID: 1, Title: "shared"}))
			require.NoError(t, authors.Persist(&author{Name: "Knuth"}))
			tx := s.tx
			s.tx = nil
			for _, st := range tx.enlisted {
				require.NoError(t, st.engine.Prepare(tx.id, true))
			}
			if tt.recorded {
				require.NoError(t, s.commits.Append(journal.Batch{TxID: tx.id}))
			}
			for _, st := range tx.enlisted {
				require.NoError(t, st.engine.Close())
			}
			require.NoError(t, s.commits.Close())

			s, books = openBooks(t, dir, testConfig())
			defer s.Close()
			authors = openAuthors(t, s)

			nb, err := books.Count()
			require.NoError(t, err)
			na, err := authors.Count()
			require.NoError(t, err)
			assert.Equal(t, tt.want, nb)
			assert.Equal(t, tt.want, na)

			info, err := os.Stat(filepath.Join(dir, commitRecordName))
			require.NoError(t, err)
			assert.Zero(t, info.Size())
		})
	}
}

// =============================================================================
// Secondary indexes
// =============================================================================

var byAuthor = Field[book, string]{Name: "author", Key: func(b *book) string { return b.Author }}

var byYear = Field[book, int]{Name: "year", Key: func(b *book) int { return b.Year }}

func openIndexedBooks(t *testing.T, dir string, cfg settings.Config) (*Session, *Collection[book, int64]) {
	t.Helper()
	s, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	books, err := NewCollection(s, "books", IndexDefinition[book, int64]{
		ID:      func(b *book) int64 { return b.ID },
		Indexes: []Indexer[book]{byAuthor, byYear},
	})
	require.NoError(t, err)
	return s, books
}

func TestCollection_SecondaryIndexes(t *testing.T) {
	for _, codecName := range []string{"bson", "json"} {
		t.Run(codecName, func(t *testing.T) {
			cfg := testConfig()
			cfg.Storage.Codec = codecName
			dir := t.TempDir()
			s, books := openIndexedBooks(t, dir, cfg)
			assert.Equal(t, []string{"author", "year"}, books.Indexes())

			seed := []book{
				{ID: 4, Author: "knuth", Year: 1968},
				{ID: 2, Author: "dijkstra", Year: 1976},
				{ID: 9, Author: "knuth", Year: 1973},
				{ID: 1, Author: "hoare", Year: 1969},
				{ID: 7, Author: "knuth", Year: 1997},
				{ID: 3, Author: "knu", Year: 1960},
			}
			for i := range seed {
				require.NoError(t, books.Persist(&seed[i]))
			}

			got, err := FindBy(books, "author", "knuth")
			require.NoError(t, err)
			assert.Equal(t, []int64{4, 7, 9}, ids(got))

			got, err = FindBetween(books, "year", 1968, 1976)
			require.NoError(t, err)
			assert.Equal(t, []int64{4, 1, 9, 2}, ids(got))

			got, err = FindBy(books, "author", "nobody")
			require.NoError(t, err)
			assert.Empty(t, got)
			require.NoError(t, s.Close())

			// reopened, then an indexed value changes and an object goes away
			s, books = openIndexedBooks(t, dir, cfg)
			defer s.Close()
			require.NoError(t, books.Persist(&book{ID: 9, Author: "hoare", Year: 1973}))
			require.NoError(t, books.Destroy(&book{ID: 4}))

			got, err = FindBy(books, "author", "knuth")
			require.NoError(t, err)
			assert.Equal(t, []int64{7}, ids(got))
			got, err = FindBy(books, "author", "hoare")
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 9}, ids(got))
			got, err = FindBetween(books, "year", 0, 1970)
			require.NoError(t, err)
			assert.Equal(t, []int64{3, 1}, ids(got))
		})
	}
}

func TestCollection_SecondaryIndexRollback(t *testing.T) {
	s, books := openIndexedBooks(t, t.TempDir(), testConfig())
	defer s.Close()
	require.NoError(t, books.Persist(&book{ID: 1, Author: "hoare"}))

	err := s.RunInTransaction(func() error {
		if err := books.Persist(&book{ID: 1, Author: "knuth"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := FindBy(books, "author", "hoare")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got))
	got, err = FindBy(books, "author", "knuth")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollection_DestroyAllClearsSecondaryIndexes(t *testing.T) {
	s, books := openIndexedBooks(t, t.TempDir(), testConfig())
	defer s.Close()
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, books.Persist(&book{ID: i, Author: "same", Year: int(i)}))
	}
	require.NoError(t, books.DestroyAll())

	got, err := FindBetween(books, "year", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollection_SecondaryIndexErrors(t *testing.T) {
	s, books := openIndexedBooks(t, t.TempDir(), testConfig())
	defer s.Close()

	_, err := FindBy(books, "missing", "x")
	assert.True(t, apperr.IsInvalidArgument(err))
	_, err = FindBy(books, "year", "not an int")
	assert.True(t, apperr.IsInvalidArgument(err))

	defs := []struct {
		name    string
		indexes []Indexer[book]
	}{
		{"duplicate", []Indexer[book]{byAuthor, byAuthor}},
		{"no_extractor", []Indexer[book]{Field[book, int]{Name: "pages"}}},
		{"dotted_name", []Indexer[book]{Field[book, int]{Name: "a.b", Key: byYear.Key}}},
		{"nil", []Indexer[book]{nil}},
	}
	for _, d := range defs {
		t.Run(d.name, func(t *testing.T) {
			_, err := NewCollection(s, "other_"+d.name, IndexDefinition[book, int64]{
				ID:      bookIndex.ID,
				Indexes: d.indexes,
			})
			assert.True(t, apperr.IsInvalidArgument(err))
		})
	}
}

func TestCollection_JSONRejectsInvalidUTF8Keys(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Codec = "json"
	dir := t.TempDir()
	s, err := Open(dir, cfg, nil)
	require.NoError(t, err)
	authors := openAuthors(t, s)

	for _, name := range []string{"a\xff", "a\xfe"} {
		assert.True(t, apperr.IsInvalidArgument(authors.Persist(&author{Name: name})))
	}
	require.NoError(t, authors.Persist(&author{Name: "b"}))
	require.NoError(t, s.Close())

	s, err = Open(dir, cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	authors = openAuthors(t, s)
	n, err := authors.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
