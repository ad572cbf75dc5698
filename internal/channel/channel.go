// Package channel defines chat transports that feed tasks to the router.
package channel

import "context"

// Message is an incoming chat message.
type Message struct {
	Source    string // e.g. "matrix"
	SenderID  string
	RoomID    string
	Content   string
	Timestamp int64 // milliseconds
}

// Response is an outgoing reply to a room.
type Response struct {
	RoomID  string
	Content string
}

// Channel is a chat transport.
type Channel interface {
	Name() string

	// Start listens for messages until ctx is cancelled, passing each one to handler.
	Start(ctx context.Context, handler MessageHandler) error

	Send(ctx context.Context, resp Response) error
	Stop() error
}

// MessageHandler handles one incoming message. The returned string is sent
// back to the message's room when non-empty.
type MessageHandler func(ctx context.Context, msg Message) (string, error)
