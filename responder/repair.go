package responder

// startMarkerTokens is how the tool start marker is tokenized.
var startMarkerTokens = []string{"<", "|", "start", "_tool", "|", ">"}

// RepairStartMarker fixes a start marker the model got one token wrong.
// The first window of six tokens differing from the marker in exactly one
// position is overwritten with the marker; nothing else changes. The input
// slice is not modified.
func RepairStartMarker(tokens []string) []string {
	out := append([]string(nil), tokens...)
	n := len(startMarkerTokens)
	for end := n; end <= len(out); end++ {
		window := out[end-n : end]
		mismatches := 0
		for i, tok := range window {
			if tok != startMarkerTokens[i] {
				mismatches++
			}
		}
		if mismatches == 1 {
			copy(window, startMarkerTokens)
			break
		}
	}
	return out
}
