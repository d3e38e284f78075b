package apperr

// Generic Action Messages
const (
	MsgReadFailed     = "failed to read"
	MsgWriteFailed    = "failed to write"
	MsgSyncFailed     = "failed to sync"
	MsgTruncateFailed = "failed to truncate"
	MsgOpenFailed     = "failed to open"
	MsgCloseFailed    = "failed to close"
	MsgEncodeFailed   = "failed to encode"
	MsgDecodeFailed   = "failed to decode"
	MsgNotFound       = "not found"
	MsgDuplicateKey   = "duplicate key"
)

// MapIO wraps err as an I/O error of op using one of the standardized messages.
// It returns nil when err is nil so it can be used inline.
func MapIO(op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return IO(op, err, msg)
}
