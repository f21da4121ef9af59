package replication

import "encoding/hex"

// emptyRDBHex is the canonical empty RDB payload sent as the bulk payload
// following a FULLRESYNC reply: an 88-byte, version-11, redis-ver "7.2.0"
// RDB file with no keys.
const emptyRDBHex = "524544495330303131fa0972656469732d76657205372e322e30fa0a7265" +
	"6469732d62697473c040fa056374696d65c26d08bc65fa08757365642d6d" +
	"656dc2b0c41000fa08616f662d62617365c000fff06e3bfec0ff5aa2"

// EmptyRDB is the decoded 88-byte canonical empty RDB payload.
var EmptyRDB = mustHexDecode(emptyRDBHex)

// BundledReplicationID is the compiled-in master_replid a fresh Primary is
// constructed with: the first 88 hex characters of emptyRDBHex, stable for
// the process lifetime and exactly 88 characters long as reported by
// INFO replication.
var BundledReplicationID = emptyRDBHex[:88]

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("replication: malformed embedded RDB hex constant: " + err.Error())
	}
	return b
}
