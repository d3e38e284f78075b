package journal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huynhanx03/go-objectdb/pkg/storage"
)

func sampleBatch() Batch {
	return Batch{
		TxID: uuid.New(),
		Writes: []Write{
			{Offset: 0, Data: []byte("root")},
			{Offset: 1024, Data: []byte("record-one")},
			{Offset: 2048, Data: []byte{}},
		},
	}
}

func TestBatch_EncodeDecode(t *testing.T) {
	b := sampleBatch()
	got, err := decodeBatch(encodeBatch(b))
	require.NoError(t, err)
	assert.Equal(t, b.TxID, got.TxID)
	require.Len(t, got.Writes, 3)
	assert.Equal(t, int64(1024), got.Writes[1].Offset)
	assert.Equal(t, "record-one", string(got.Writes[1].Data))
	assert.Empty(t, got.Writes[2].Data)
}

func TestBatch_DecodeTorn(t *testing.T) {
	data := encodeBatch(sampleBatch())

	// Every proper prefix is a crash in the middle of Append.
	for n := 0; n < len(data); n++ {
		_, err := decodeBatch(data[:n])
		assert.ErrorIs(t, err, errTorn, "prefix of %d bytes", n)
	}

	flipped := append([]byte(nil), data...)
	flipped[batchHeaderSize+writeHeaderSize] ^= 0xff
	_, err := decodeBatch(flipped)
	assert.ErrorIs(t, err, errTorn)
}

func TestJournal_RecoverReplaysCompleteBatch(t *testing.T) {
	target := storage.NewMemory()
	j := New(storage.NewMemory(), nil)

	b := sampleBatch()
	require.NoError(t, j.Append(b))

	replayed, err := j.Recover(target)
	require.NoError(t, err)
	assert.True(t, replayed)

	p := make([]byte, 10)
	require.NoError(t, storage.ReadFull(target, p, 1024))
	assert.Equal(t, "record-one", string(p))

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestJournal_RecoverDiscardsTornBatch(t *testing.T) {
	target := storage.NewMemory()
	jEngine := storage.NewMemory()
	j := New(jEngine, nil)

	data := encodeBatch(sampleBatch())
	_, err := jEngine.WriteAt(data[:len(data)-3], 0)
	require.NoError(t, err)

	replayed, err := j.Recover(target)
	require.NoError(t, err)
	assert.False(t, replayed)

	size, _ := target.Size()
	assert.Zero(t, size)
	size, _ = jEngine.Size()
	assert.Zero(t, size)
}

func TestJournal_RecoverEmpty(t *testing.T) {
	j := New(storage.NewMemory(), nil)
	replayed, err := j.Recover(storage.NewMemory())
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestJournal_AppendReplacesPrevious(t *testing.T) {
	j := New(storage.NewMemory(), nil)
	require.NoError(t, j.Append(sampleBatch()))

	second := Batch{TxID: uuid.New(), Writes: []Write{{Offset: 8, Data: []byte("x")}}}
	require.NoError(t, j.Append(second))

	got, err := j.Pending()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.TxID, got.TxID)
	assert.Len(t, got.Writes, 1)
}

func TestJournal_RecoverSharedBatch(t *testing.T) {
	shared := sampleBatch()
	shared.Shared = true

	got, err := decodeBatch(encodeBatch(shared))
	require.NoError(t, err)
	assert.True(t, got.Shared)

	tests := []struct {
		name      string
		committed uuid.UUID
		replayed  bool
	}{
		{"committed", shared.TxID, true},
		{"other_transaction", uuid.New(), false},
		{"no_commit_record", uuid.Nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jEngine := storage.NewMemory()
			target := storage.NewMemory()
			j := New(jEngine, nil)
			require.NoError(t, j.Append(shared))

			replayed, err := j.RecoverCommitted(target, tt.committed)
			require.NoError(t, err)
			assert.Equal(t, tt.replayed, replayed)
			if tt.replayed {
				assert.Equal(t, "root", string(target.Bytes()[:4]))
			} else {
				assert.Empty(t, target.Bytes())
			}

			size, _ := jEngine.Size()
			assert.Zero(t, size)
		})
	}
}

func TestJournal_LastTx(t *testing.T) {
	jEngine := storage.NewMemory()
	j := New(jEngine, nil)

	id, err := j.LastTx()
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	want := uuid.New()
	require.NoError(t, j.Append(Batch{TxID: want}))
	id, err = j.LastTx()
	require.NoError(t, err)
	assert.Equal(t, want, id)

	size, _ := jEngine.Size()
	require.NoError(t, jEngine.Truncate(size-1))
	id, err = j.LastTx()
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}
