package storage

import (
	"os"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

var _ Engine = (*File)(nil)

// File is an Engine backed by an operating system file.
type File struct {
	path string
	fp   *os.File
}

// OpenFile opens or creates the file at path.
func OpenFile(path string) (*File, error) {
	fp, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, apperr.IO("storage.OpenFile", err, apperr.MsgOpenFailed+" "+path)
	}
	return &File{path: path, fp: fp}, nil
}

// Path returns the file name.
func (f *File) Path() string {
	return f.path
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.fp.ReadAt(p, off)
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return f.fp.WriteAt(p, off)
}

func (f *File) Size() (int64, error) {
	fi, err := f.fp.Stat()
	if err != nil {
		return 0, apperr.IO("storage.File.Size", err, "failed to stat "+f.path)
	}
	return fi.Size(), nil
}

func (f *File) Truncate(size int64) error {
	return apperr.MapIO("storage.File.Truncate", f.fp.Truncate(size), apperr.MsgTruncateFailed)
}

func (f *File) Sync() error {
	return apperr.MapIO("storage.File.Sync", f.fp.Sync(), apperr.MsgSyncFailed)
}

func (f *File) Close() error {
	return apperr.MapIO("storage.File.Close", f.fp.Close(), apperr.MsgCloseFailed)
}

// SyncDir flushes the directory entries of dir, making newly created files
// durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return apperr.IO("storage.SyncDir", err, apperr.MsgOpenFailed+" "+dir)
	}
	defer d.Close()
	return apperr.MapIO("storage.SyncDir", d.Sync(), apperr.MsgSyncFailed)
}
