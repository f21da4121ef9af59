package resp

// StringArgs flattens a ValueArray's BulkString elements into plain strings,
// the shape every command handler in internal/dispatch actually wants.
// Non-BulkString elements (never produced by a conforming client) render via
// their String() method rather than being dropped, so malformed input still
// reaches argument validation instead of vanishing silently.
func StringArgs(v Value) []string {
	switch v.Kind {
	case ValueArray:
		args := make([]string, len(v.Array))
		for i, p := range v.Array {
			if bs, ok := p.(BulkString); ok {
				args[i] = string(bs)
			} else {
				args[i] = p.String()
			}
		}
		return args
	case ValueString:
		return []string{v.String}
	default:
		return nil
	}
}
