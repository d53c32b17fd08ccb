package chatsync

import "errors"

var (
	ErrNotConnected    = errors.New("not connected to server")
	ErrEmptyMessage    = errors.New("enter a message or attach files")
	ErrMixedContent    = errors.New("send either a text message or files, not both")
	ErrTooManyFiles    = errors.New("too many files attached")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrTotalTooLarge   = errors.New("total files size exceeds limit")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFetchInFlight   = errors.New("a fetch is already in flight for this list")
	ErrStale           = errors.New("result superseded by a newer request")
	ErrSendTimeout     = errors.New("timed out waiting for send acknowledgment")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotEditable     = errors.New("only text messages can be edited")
	ErrClosed          = errors.New("conversation closed")
	ErrNoChat          = errors.New("no chat selected")
)
