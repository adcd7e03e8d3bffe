package models

import "encoding/json"

// ClientMessage is posted to page clients.
type ClientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is shown on the OS notification surface of a client.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon,omitempty"`
	Badge   string               `json:"badge,omitempty"`
	Vibrate []int                `json:"vibrate,omitempty"`
	Data    json.RawMessage      `json:"data,omitempty"`
	Actions []NotificationAction `json:"actions,omitempty"`
}

// NotificationClick is reported by a client when a notification is clicked.
type NotificationClick struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}
