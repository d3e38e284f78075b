package apperr

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"duplicate", DuplicateKey("btree.Insert", 10), IsDuplicateKey},
		{"not_found", NotFound("records.GetRecord", 2048), IsNotFound},
		{"corruption", Corruption("index.Flush", "cycle at node %d", 3), IsCorruption},
		{"io", IO("storage.ReadAt", io.ErrUnexpectedEOF, MsgReadFailed), IsIO},
		{"invalid", InvalidArgument("btree.New", "degree %d", 1), IsInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			wrapped := errors.Wrap(tt.err, "outer")
			assert.True(t, tt.check(wrapped), "predicate must see through wrapping")
		})
	}
}

func TestPredicates_OtherErrors(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(io.EOF))
	assert.False(t, IsCorruption(NotFound("op", 1)))
}

func TestError_UnwrapAndMessage(t *testing.T) {
	err := IO("storage.WriteAt", io.ErrShortWrite, MsgWriteFailed)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Contains(t, err.Error(), "storage.WriteAt")
	assert.Contains(t, err.Error(), MsgWriteFailed)
}

func TestError_IsByKind(t *testing.T) {
	err := errors.Wrap(NotFound("records.GetRecord", 7), "lookup")
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound})
	assert.NotErrorIs(t, err, &Error{Kind: KindCorruption})
}

func TestMapIO(t *testing.T) {
	assert.NoError(t, MapIO("op", nil, MsgSyncFailed))
	assert.True(t, IsIO(MapIO("op", io.EOF, MsgSyncFailed)))
}
