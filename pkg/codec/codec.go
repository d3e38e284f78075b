// Package codec turns values into bytes and back for the record store.
package codec

import (
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// Codec serializes values of type T. Deserialize must accept anything
// Serialize produced.
type Codec[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

var (
	_ Codec[struct{}] = BSON[struct{}]{}
	_ Codec[struct{}] = JSON[struct{}]{}
)

// BSON encodes T as a BSON document. T must be a struct or a map.
type BSON[T any] struct{}

func (BSON[T]) Serialize(v T) ([]byte, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "codec.BSON.Serialize", apperr.MsgEncodeFailed, err)
	}
	return data, nil
}

func (BSON[T]) Deserialize(data []byte) (T, error) {
	var v T
	if err := bson.Unmarshal(data, &v); err != nil {
		return v, apperr.New(apperr.KindCorruption, "codec.BSON.Deserialize", apperr.MsgDecodeFailed, err)
	}
	return v, nil
}

// JSON encodes T with goccy/go-json.
type JSON[T any] struct{}

func (JSON[T]) Serialize(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "codec.JSON.Serialize", apperr.MsgEncodeFailed, err)
	}
	return data, nil
}

func (JSON[T]) Deserialize(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.New(apperr.KindCorruption, "codec.JSON.Deserialize", apperr.MsgDecodeFailed, err)
	}
	return v, nil
}

// ByName returns the codec registered under name.
func ByName[T any](name string) (Codec[T], error) {
	switch name {
	case "", "bson":
		return BSON[T]{}, nil
	case "json":
		return JSON[T]{}, nil
	default:
		return nil, apperr.InvalidArgument("codec.ByName", "unknown codec %q", name)
	}
}
