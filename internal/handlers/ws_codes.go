// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Launcher token presented at connect time was invalid or expired.
	InvalidRoomClassError = 3003 // Room class in the WS URL is missing or malformed.
)
