package models

import "time"

// MessageType distinguishes plain text from file-carrying messages
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeFile
}

// Message represents a chat message between users
type Message struct {
	ID             int64       `json:"id"`
	SenderID       int64       `json:"senderId"`
	RecipientID    int64       `json:"recipientId"`
	Text           *string     `json:"text"`
	Type           MessageType `json:"type"`
	CreatedAt      time.Time   `json:"createdAt"`
	SenderUsername string      `json:"senderUsername,omitempty"`
}

// Conversation is one friend with the latest message exchanged, if any
type Conversation struct {
	Friend      FriendSummary `json:"friend"`
	LastMessage *Message      `json:"lastMessage"`
}

// Page describes an offset page of a conversation
type Page struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// WebSocketMessage is the format for real-time events
type WebSocketMessage struct {
	Type    string      `json:"type"` // "new-message", "refresh-friends", "message-error"
	Payload interface{} `json:"payload,omitempty"`
}
