package uci

import "fmt"

// Commands sent to an engine. The handshake query, readiness check and
// search start expect acknowledgement lines; the rest are
// fire-and-forget.
const (
	CmdUCI     = "uci"
	CmdIsReady = "isready"
	CmdNewGame = "ucinewgame"
	CmdStop    = "stop"
	CmdQuit    = "quit"
)

// CmdPositionFEN sets the board to the given FEN.
func CmdPositionFEN(fen string) string {
	return "position fen " + fen
}

// CmdGoDepth starts a fixed-depth search.
func CmdGoDepth(depth int) string {
	return fmt.Sprintf("go depth %d", depth)
}

// CmdSetOption sets a named engine option.
func CmdSetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s", name, value)
}
