package uci

import (
	"strconv"
	"strings"
)

// Parse classifies one line of engine output. It never fails: malformed
// or unknown lines come back as KindOther, and unknown tokens inside a
// recognized line are skipped.
func Parse(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Line{Kind: KindOther, Raw: raw}
	}

	switch fields[0] {
	case "uciok":
		return Line{Kind: KindUCIOk, Raw: raw}
	case "readyok":
		return Line{Kind: KindReadyOk, Raw: raw}
	case "bestmove":
		return parseBestMove(fields, raw)
	case "info":
		// "info string ..." is free-form engine chatter, not progress.
		if len(fields) > 1 && fields[1] == "string" {
			return Line{Kind: KindOther, Raw: raw}
		}
		return parseInfo(fields, raw)
	}
	return Line{Kind: KindOther, Raw: raw}
}

func parseBestMove(fields []string, raw string) Line {
	best := &BestMove{}
	if len(fields) > 1 {
		best.Move = fields[1]
	}
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			best.Ponder = fields[i+1]
			break
		}
	}
	return Line{Kind: KindBestMove, Best: best, Raw: raw}
}

func parseInfo(fields []string, raw string) Line {
	info := &Info{MultiPV: 1}

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				info.Depth = atoi(fields[i+1])
				i++
			}
		case "seldepth":
			if i+1 < len(fields) {
				info.SelDepth = atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				if n := atoi(fields[i+1]); n > 0 {
					info.MultiPV = n
				}
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				info.Nodes = atoi64(fields[i+1])
				i++
			}
		case "nps":
			if i+1 < len(fields) {
				info.NPS = atoi64(fields[i+1])
				i++
			}
		case "time":
			if i+1 < len(fields) {
				info.TimeMS = atoi64(fields[i+1])
				i++
			}
		case "score":
			if i+2 < len(fields) {
				switch fields[i+1] {
				case "cp":
					info.Score = Score{Type: ScoreCentipawn, Value: atoi(fields[i+2])}
					i += 2
				case "mate":
					info.Score = Score{Type: ScoreMate, Value: atoi(fields[i+2])}
					i += 2
				default:
					// Unrecognized score type: drop the score, keep parsing.
					i++
				}
			}
		case "pv":
			// pv consumes the rest of the line.
			info.PV = append([]string(nil), fields[i+1:]...)
			return Line{Kind: KindInfo, Info: info, Raw: raw}
		}
	}
	return Line{Kind: KindInfo, Info: info, Raw: raw}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
