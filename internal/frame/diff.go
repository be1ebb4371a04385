package frame

// FrameDiff is a sparse byte-level delta between two frames. It is an
// opt-in bandwidth optimization; the broadcast path always sends full
// compressed frames.
type FrameDiff struct {
	// Full is set when there was no old frame to diff against; Data
	// then holds the complete new frame.
	Full bool
	Data []byte

	// Changes are in-place byte replacements within the old frame.
	Changes []ByteChange
	// Tail holds new bytes beyond the old frame's length.
	Tail []byte
}

// ByteChange replaces the byte at Pos with Value.
type ByteChange struct {
	Pos   int
	Value byte
}

// Diff computes the delta from old to new. With a nil old frame the
// result is a full-replace marker.
func Diff(old, new []byte) *FrameDiff {
	if old == nil {
		return &FrameDiff{Full: true, Data: append([]byte(nil), new...)}
	}

	d := &FrameDiff{}
	minLen := len(old)
	if len(new) < minLen {
		minLen = len(new)
	}
	for i := 0; i < minLen; i++ {
		if old[i] != new[i] {
			d.Changes = append(d.Changes, ByteChange{Pos: i, Value: new[i]})
		}
	}
	if len(new) > len(old) {
		d.Tail = append([]byte(nil), new[len(old):]...)
	}
	return d
}

// ApplyDiff reconstructs the new frame from old plus the diff.
// ApplyDiff(old, Diff(old, new)) == new whenever len(new) >= len(old).
// Known edge case, kept for wire compatibility: when new is shorter
// than old, the trailing old bytes beyond new's length survive in the
// output because the diff format carries no truncation marker.
func ApplyDiff(old []byte, d *FrameDiff) []byte {
	if d.Full {
		return append([]byte(nil), d.Data...)
	}

	out := append([]byte(nil), old...)
	for _, c := range d.Changes {
		if c.Pos < len(out) {
			out[c.Pos] = c.Value
		} else {
			out = append(out, c.Value)
		}
	}
	out = append(out, d.Tail...)
	return out
}
