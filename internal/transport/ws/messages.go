package ws

import "github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"

// Message types from client to server
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeCancel      = "cancel"
)

// Message types from server to client
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeCancelled    = "cancelled"
	TypeEvent        = "event"
	TypeError        = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeInternalError  = "internal_error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type        string `json:"type"`
	Ts          int64  `json:"ts"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// SubscribedMessage acknowledges a subscription with the current execution state.
type SubscribedMessage struct {
	BaseMessage
	Execution *domain.Execution `json:"execution"`
}

// CancelledMessage reports the result of a cancel request.
type CancelledMessage struct {
	BaseMessage
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// ErrorMessage is sent when a client message cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
