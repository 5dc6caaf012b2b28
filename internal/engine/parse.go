package engine

import (
	"strconv"
	"strings"
)

// parseInfo extracts the rank, depth, score, and first pv move from a UCI
// "info" line. Lines without a score (currmove chatter, nps-only updates)
// report ok=false. Bound scores are skipped; only exact scores feed the
// classifier.
func parseInfo(line string) (rank int, ln Line, ok bool) {
	fields := strings.Fields(line)
	rank = 1
	hasScore := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				ln.Depth, _ = strconv.Atoi(fields[i+1])
			}
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil && v > 0 {
					rank = v
				}
			}
		case "score":
			if i+2 >= len(fields) {
				return 0, Line{}, false
			}
			v, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return 0, Line{}, false
			}
			switch fields[i+1] {
			case "cp":
				ln.Score = v
			case "mate":
				ln.Mate = v
			default:
				return 0, Line{}, false
			}
			hasScore = true
			i += 2
		case "lowerbound", "upperbound":
			return 0, Line{}, false
		case "pv":
			if i+1 < len(fields) {
				ln.Move = fields[i+1]
			}
			// pv is the last token group on the line
			i = len(fields)
		}
	}

	if !hasScore || ln.Move == "" {
		return 0, Line{}, false
	}
	return rank, ln, true
}
