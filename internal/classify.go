package internal

import (
	"strconv"
	"strings"
)

// classifyMarker starts every classification record in the runner log, e.g.
//
//	classifyRes 3ms. { 'hi man': '0.9883', noise: '0.0078', 'take photo': '0.0039' }
const classifyMarker = "classifyRes"

// Classification maps labels to scores of one classifier window.
type Classification map[string]float64

// Top returns the highest scoring label. Ties go to the lexicographically
// smallest label so the result does not depend on map order.
func (c Classification) Top() (string, float64) {
	var best string
	bestScore := -1.0
	for label, score := range c {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return best, bestScore
}

// ParseClassification extracts the label scores from one log line.
func ParseClassification(line string) (Classification, bool) {
	i := strings.Index(line, classifyMarker)
	if i < 0 {
		return nil, false
	}
	rest := line[i+len(classifyMarker):]

	open := strings.Index(rest, "{")
	end := strings.LastIndex(rest, "}")
	if open < 0 || end < open {
		return nil, false
	}

	c := make(Classification)
	for _, part := range strings.Split(rest[open+1:end], ",") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		label := strings.Trim(strings.TrimSpace(k), `'"`)
		score, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(v), `'"`), 64)
		if label == "" || err != nil {
			continue
		}
		c[label] = score
	}
	if len(c) == 0 {
		return nil, false
	}
	return c, true
}

// LatestClassification returns the last parseable record in lines.
func LatestClassification(lines []string) (Classification, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if c, ok := ParseClassification(lines[i]); ok {
			return c, true
		}
	}
	return nil, false
}
