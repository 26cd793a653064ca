package receipt

// ESC/POS control bytes
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	NL  byte = 0x0A
)

// Fixed command sequences for the target printer command set. These must stay
// bit-exact: the same stream is shipped over two different delivery paths and
// external fiscal tooling depends on the rendered output.
var (
	cmdReset       = []byte{ESC, '@'}
	cmdAlignLeft   = []byte{ESC, 'a', 0}
	cmdAlignCenter = []byte{ESC, 'a', 1}
	cmdBoldOn      = []byte{ESC, 'E', 1}
	cmdBoldOff     = []byte{ESC, 'E', 0}
	cmdSizeDouble  = []byte{GS, '!', 0x11} // double width + double height
	cmdSizeNormal  = []byte{GS, '!', 0x00}
	cmdCut         = []byte{GS, 'V', 0}
)

// buildQR emits the native 2D-symbol command sequence: model/size/EC preamble,
// a store-data command whose two-byte length prefix is len(payload)+3, the raw
// payload, and the print trailer.
func buildQR(payload string) []byte {
	data := []byte(payload)
	size := len(data) + 3

	buf := make([]byte, 0, len(data)+32)
	buf = append(buf, GS, '(', 'k', 3, 0, 49, 67, 6)  // module size
	buf = append(buf, GS, '(', 'k', 3, 0, 49, 69, 48) // error correction level L
	buf = append(buf, GS, '(', 'k', byte(size), byte(size>>8), 49, 80, 48)
	buf = append(buf, data...)
	buf = append(buf, GS, '(', 'k', 3, 0, 49, 81, 48) // print stored symbol
	return buf
}
