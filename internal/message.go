package internal

// Message is the wire envelope for every inbound and outbound event.
type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Update is the inner discriminated payload carried by the per-game
// "*-update" events (mafia-update, liar-update, telestrations-update).
type Update struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ErrorData is the payload of the per-game "*-error" events. The message
// is user-facing and shown briefly by the client before auto-dismissing.
type ErrorData struct {
	Message string `json:"message"`
}
