// Package resp implements the RESP wire codec: an incremental byte-buffer
// decoder and a symmetric encoder for the payload shapes this server speaks.
package resp

import "fmt"

// Payload is the tagged RESP term decoded from, or destined for, the wire.
type Payload interface {
	isPayload()
	fmt.Stringer
}

// SimpleString is a short textual status: "+s\r\n".
type SimpleString string

func (SimpleString) isPayload()       {}
func (s SimpleString) String() string { return string(s) }

// BulkString is a length-prefixed binary-safe string: "$<len>\r\n<bytes>\r\n".
type BulkString string

func (BulkString) isPayload()       {}
func (s BulkString) String() string { return string(s) }

// Array is an ordered sequence of Payloads: "*<n>\r\n<item1>...<itemN>".
type Array []Payload

func (Array) isPayload() {}
func (a Array) String() string {
	return fmt.Sprintf("Array(%d)", len(a))
}

// RdbBlob is a length-prefixed opaque byte string with NO trailing CRLF:
// "$<len>\r\n<bytes>". Only ever produced or consumed during full resync.
type RdbBlob []byte

func (RdbBlob) isPayload()       {}
func (b RdbBlob) String() string { return fmt.Sprintf("RdbBlob(%d bytes)", len(b)) }

// BuildBulkStringArray constructs an Array of BulkStrings, the shape every
// outbound command (fan-out, handshake step) is built from before encoding.
func BuildBulkStringArray(parts ...string) Array {
	arr := make(Array, len(parts))
	for i, p := range parts {
		arr[i] = BulkString(p)
	}
	return arr
}
