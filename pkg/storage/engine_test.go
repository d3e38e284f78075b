package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

func engines(t *testing.T) map[string]Engine {
	t.Helper()
	f, err := OpenFile(filepath.Join(t.TempDir(), "engine.data"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return map[string]Engine{
		"memory": NewMemory(),
		"file":   f,
	}
}

func TestEngine_ReadWrite(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			size, err := e.Size()
			require.NoError(t, err)
			assert.Zero(t, size)

			_, err = e.WriteAt([]byte("record"), 1024)
			require.NoError(t, err)

			size, err = e.Size()
			require.NoError(t, err)
			assert.EqualValues(t, 1030, size)

			p := make([]byte, 6)
			require.NoError(t, ReadFull(e, p, 1024))
			assert.Equal(t, "record", string(p))

			require.NoError(t, e.Sync())
		})
	}
}

func TestEngine_Truncate(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := e.WriteAt([]byte("0123456789"), 0)
			require.NoError(t, err)
			require.NoError(t, e.Truncate(4))

			size, err := e.Size()
			require.NoError(t, err)
			assert.EqualValues(t, 4, size)

			err = ReadFull(e, make([]byte, 8), 0)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestReadFull_PastEnd(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			err := ReadFull(e, make([]byte, 1), 50)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestFile_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.data")
	f, err := OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("durable"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	f, err = OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, path, f.Path())

	p := make([]byte, 7)
	require.NoError(t, ReadFull(f, p, 0))
	assert.Equal(t, "durable", string(p))
}

func TestSyncDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SyncDir(dir))
	assert.True(t, apperr.IsIO(SyncDir(filepath.Join(dir, "missing"))))
}
