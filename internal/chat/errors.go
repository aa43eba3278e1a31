package chat

import "errors"

var (
	// ErrNotFound indicates the message or room does not exist, or is
	// soft-deleted and hidden from the caller.
	ErrNotFound = errors.New("chat: not found")

	// ErrForbidden indicates the caller may not perform the operation
	// on this message or room.
	ErrForbidden = errors.New("chat: forbidden")

	// ErrEmptyMessage indicates a post with no body and no attachment.
	ErrEmptyMessage = errors.New("chat: message needs a body or an attachment")

	// ErrBodyTooLong indicates a body over MaxBodyLen runes.
	ErrBodyTooLong = errors.New("chat: message body too long")

	// ErrBadReply indicates a reply target that lives in another room.
	ErrBadReply = errors.New("chat: reply target is not in this room")

	// ErrSelfReport indicates a user reporting their own message.
	ErrSelfReport = errors.New("chat: cannot report your own message")
)
