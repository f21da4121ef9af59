package resp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrIncomplete indicates the buffer does not yet hold a full payload; the
// caller should read more bytes and retry rather than treat this as fatal.
var ErrIncomplete = errors.New("resp: incomplete payload")

// ErrMalformed indicates the buffer's prefix can never become a valid
// payload (bad length, unknown type byte, missing delimiter). Fatal for the
// current connection.
var ErrMalformed = errors.New("resp: malformed payload")

const crlf = "\r\n"

// Decode parses exactly one Payload from the front of buf and reports how
// many bytes it consumed. It returns ErrIncomplete if buf is a valid but
// truncated prefix of a payload, and a wrapped ErrMalformed if it can never
// be valid.
func Decode(buf []byte) (Payload, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	switch buf[0] {
	case '+':
		return decodeSimpleString(buf)
	case '$':
		return decodeBulkString(buf)
	case '*':
		return decodeArray(buf)
	default:
		return nil, 0, errors.Wrapf(ErrMalformed, "unknown type byte %q", buf[0])
	}
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func decodeSimpleString(buf []byte) (Payload, int, error) {
	idx := indexCRLF(buf[1:])
	if idx < 0 {
		return nil, 0, ErrIncomplete
	}
	body := buf[1 : 1+idx]
	consumed := 1 + idx + 2
	return SimpleString(body), consumed, nil
}

// parseLength reads the decimal digits following the type byte at buf[0] up
// to the first CRLF. It returns the parsed length, the index of that CRLF
// relative to buf, or an error.
func parseLength(buf []byte) (length int, crlfIdx int, err error) {
	idx := indexCRLF(buf[1:])
	if idx < 0 {
		return 0, 0, ErrIncomplete
	}
	digits := string(buf[1 : 1+idx])
	n, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return 0, 0, errors.Wrapf(ErrMalformed, "invalid length %q", digits)
	}
	return n, idx, nil
}

func decodeBulkString(buf []byte) (Payload, int, error) {
	length, idx, err := parseLength(buf)
	if err != nil {
		return nil, 0, err
	}
	headerLen := 1 + idx + 2
	if length < 0 {
		// Null bulk string: no body, no trailing CRLF.
		return BulkString(""), headerLen, nil
	}
	need := headerLen + length + 2
	if len(buf) < need {
		return nil, 0, ErrIncomplete
	}
	body := buf[headerLen : headerLen+length]
	if buf[headerLen+length] != '\r' || buf[headerLen+length+1] != '\n' {
		return nil, 0, errors.Wrap(ErrMalformed, "bulk string missing trailing CRLF")
	}
	return BulkString(body), need, nil
}

func decodeArray(buf []byte) (Payload, int, error) {
	count, idx, err := parseLength(buf)
	if err != nil {
		return nil, 0, err
	}
	offset := 1 + idx + 2
	if count < 0 {
		return Array(nil), offset, nil
	}
	items := make(Array, 0, count)
	for i := 0; i < count; i++ {
		if offset >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		item, consumed, err := Decode(buf[offset:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		offset += consumed
	}
	return items, offset, nil
}

// DecodeRdbBlob parses a "$<len>\r\n<bytes>" blob with NO trailing CRLF, the
// shape a primary sends immediately after its FULLRESYNC simple string.
func DecodeRdbBlob(buf []byte) (RdbBlob, int, error) {
	if len(buf) == 0 || buf[0] != '$' {
		return nil, 0, errors.Wrap(ErrMalformed, "rdb blob must start with '$'")
	}
	length, idx, err := parseLength(buf)
	if err != nil {
		return nil, 0, err
	}
	headerLen := 1 + idx + 2
	need := headerLen + length
	if len(buf) < need {
		return nil, 0, ErrIncomplete
	}
	return RdbBlob(buf[headerLen:need]), need, nil
}

// DecodeAll drives Decode to exhaustion over buf, returning every complete
// payload found and the total number of bytes consumed. A single read may
// carry several pipelined payloads; any leftover bytes (an incomplete
// trailing payload) are left unconsumed for the next read.
func DecodeAll(buf []byte) ([]Payload, int, error) {
	var out []Payload
	total := 0
	for total < len(buf) {
		p, n, err := Decode(buf[total:])
		if err == ErrIncomplete {
			break
		}
		if err != nil {
			return out, total, err
		}
		out = append(out, p)
		total += n
	}
	return out, total, nil
}
