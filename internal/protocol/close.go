package protocol

// Application close codes sent in the websocket close frame.
const (
	CloseAuthRejected = 4001
	CloseSuperseded   = 4002
	CloseEvicted      = 4003
)
