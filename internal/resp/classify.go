package resp

import "redisd/internal/command"

// ValueKind discriminates the shapes Classify can hand back alongside a
// Command.
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueString
	ValueArray
)

// Value is the argument payload accompanying a (possibly absent) Command.
type Value struct {
	Kind   ValueKind
	String string
	Array  []Payload
}

// Classify maps a decoded Payload to a command plus its arguments:
//   - BulkString matching the command table -> (cmd, ValueEmpty)
//   - BulkString not matching               -> (none, ValueString(body))
//   - Array whose first element is a matching BulkString -> (cmd, ValueArray(rest))
//   - Array whose first element doesn't match (or isn't a BulkString) -> (none, ValueArray(whole))
func Classify(p Payload) (command.Command, bool, Value) {
	switch v := p.(type) {
	case BulkString:
		if c, ok := command.Parse(string(v)); ok {
			return c, true, Value{Kind: ValueEmpty}
		}
		return command.Unknown, false, Value{Kind: ValueString, String: string(v)}
	case Array:
		if len(v) > 0 {
			if bs, ok := v[0].(BulkString); ok {
				if c, ok := command.Parse(string(bs)); ok {
					return c, true, Value{Kind: ValueArray, Array: v[1:]}
				}
			}
		}
		return command.Unknown, false, Value{Kind: ValueArray, Array: v}
	default:
		return command.Unknown, false, Value{Kind: ValueEmpty}
	}
}

// Group is one pipelined command plus its argument Value and whether it is
// the last command in a batch. Whether a group's reply is actually sent is
// decided by the caller based on the kind of connection it's reading from
// (every command on a client connection replies; nothing on the
// primary->replica ingestion channel ever does), not by IsTerminal:
// IsTerminal is a property of the batch's shape, not a reply gate.
type Group struct {
	Command    command.Command
	HasCmd     bool
	Value      Value
	IsTerminal bool
}

// GroupPipeline splits a batch of decoded payloads into per-command groups:
// each Payload that classifies as a command starts a new group; a Payload
// that doesn't is appended to the argument array of the current command
// group, or, before any command, forms its own group carrying its
// non-command Value. The last group in the batch is marked terminal.
func GroupPipeline(payloads []Payload) []Group {
	groups := make([]Group, 0, len(payloads))
	for _, p := range payloads {
		cmd, ok, val := Classify(p)
		if !ok && len(groups) > 0 && groups[len(groups)-1].HasCmd {
			cur := &groups[len(groups)-1]
			args := append(append(Array(nil), cur.Value.Array...), p)
			cur.Value = Value{Kind: ValueArray, Array: args}
			continue
		}
		groups = append(groups, Group{Command: cmd, HasCmd: ok, Value: val})
	}
	if len(groups) > 0 {
		groups[len(groups)-1].IsTerminal = true
	}
	return groups
}
