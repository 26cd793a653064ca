package receipt

// CommandStream is an ordered sequence of raw ESC/POS fragments. Fragment
// boundaries are preserved for transports that send piecewise (the QZ-style
// bridge); byte-oriented transports flatten with Bytes.
type CommandStream struct {
	fragments [][]byte
}

// Append adds one raw fragment to the end of the stream.
func (s *CommandStream) Append(fragment []byte) {
	s.fragments = append(s.fragments, fragment)
}

// AppendText adds a UTF-8 text fragment.
func (s *CommandStream) AppendText(text string) {
	s.fragments = append(s.fragments, []byte(text))
}

// Fragments returns the ordered fragments. The slice is shared, not copied;
// callers must not mutate it.
func (s *CommandStream) Fragments() [][]byte {
	return s.fragments
}

// Bytes flattens the stream into a single byte slice.
func (s *CommandStream) Bytes() []byte {
	n := 0
	for _, f := range s.fragments {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range s.fragments {
		out = append(out, f...)
	}
	return out
}

// Len reports the total byte length without flattening.
func (s *CommandStream) Len() int {
	n := 0
	for _, f := range s.fragments {
		n += len(f)
	}
	return n
}
