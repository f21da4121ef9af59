// Package config defines the configuration surface the server consumes and
// a two-stage file+flag loader: gopkg.in/yaml.v3 parses an optional file
// into a permissive map, then github.com/mitchellh/mapstructure decodes
// that map onto a typed File struct. CLI flags always win over the file,
// and the file always wins over built-in defaults.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PeerAddr is a normalised host:port pair for --replicaof.
type PeerAddr struct {
	Host string
	Port uint16
}

// Core is the configuration the protocol core actually consumes.
type Core struct {
	Port      uint16
	ReplicaOf *PeerAddr
}

// Default returns the built-in defaults: port 6379, no replicaof.
func Default() Core {
	return Core{Port: 6379}
}

// File is the optional on-disk override, decoded from YAML.
type File struct {
	Port      *uint16 `mapstructure:"port"`
	ReplicaOf *string `mapstructure:"replicaof"`
}

// LoadFile reads and decodes a YAML config file at path.
func LoadFile(path string) (File, error) {
	var f File
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrap(err, "config: read file")
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return f, errors.Wrap(err, "config: parse yaml")
	}
	if err := mapstructure.Decode(generic, &f); err != nil {
		return f, errors.Wrap(err, "config: decode into File")
	}
	return f, nil
}

// ApplyFile layers f under core's existing values: a File field only
// overrides Core when Core does not already carry an explicit (flag-set)
// value.
func ApplyFile(core Core, f File, portSetByFlag, replicaOfSetByFlag bool) (Core, error) {
	if !portSetByFlag && f.Port != nil {
		core.Port = *f.Port
	}
	if !replicaOfSetByFlag && f.ReplicaOf != nil {
		addr, err := ParsePeerAddr(*f.ReplicaOf)
		if err != nil {
			return core, err
		}
		core.ReplicaOf = &addr
	}
	return core, nil
}

// ParsePeerAddr accepts either "host port" or "host:port" and normalises
// "localhost" to "127.0.0.1".
func ParsePeerAddr(s string) (PeerAddr, error) {
	s = strings.TrimSpace(s)
	var host, portStr string
	switch {
	case strings.Contains(s, " "):
		parts := strings.Fields(s)
		if len(parts) != 2 {
			return PeerAddr{}, errors.Errorf("config: malformed replicaof %q", s)
		}
		host, portStr = parts[0], parts[1]
	case strings.Contains(s, ":"):
		idx := strings.LastIndex(s, ":")
		host, portStr = s[:idx], s[idx+1:]
	default:
		return PeerAddr{}, errors.Errorf("config: malformed replicaof %q", s)
	}

	if host == "localhost" {
		host = "127.0.0.1"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return PeerAddr{}, errors.Wrapf(err, "config: malformed port in replicaof %q", s)
	}
	return PeerAddr{Host: host, Port: uint16(port)}, nil
}

func (p PeerAddr) String() string {
	return p.Host + ":" + strconv.Itoa(int(p.Port))
}
