package event

import "time"

// Context carries the routing metadata of an engine event.
type Context struct {
	FlowID        string `json:"flowID"`
	CorrelationID string `json:"correlationID,omitempty"`
	EventType     string `json:"eventType"`
	Step          int    `json:"step,omitempty"`
}

// Event is the generic envelope delivered through the messaging layer.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
