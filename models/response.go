package models

const (
	StatusOK    = 0
	StatusError = 1
)

// Response is the envelope wrapping every API reply.
type Response struct {
	Status    int         `json:"status"`
	Msg       string      `json:"msg"`
	Timestamp int64       `json:"timestamp"`
	Nodename  string      `json:"nodename"`
	Request   string      `json:"request"`
	Data      interface{} `json:"data,omitempty"`
}
