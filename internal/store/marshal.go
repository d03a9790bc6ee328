package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/bip/internal/ir"
)

// marshalPorts converts a port id list to canonical JSON TEXT for storage.
func marshalPorts(ports []string) (string, error) {
	if ports == nil {
		ports = []string{}
	}
	data, err := ir.MarshalCanonical(ports)
	if err != nil {
		return "", fmt.Errorf("marshal ports: %w", err)
	}
	return string(data), nil
}

// unmarshalPorts parses a stored port id list.
func unmarshalPorts(data string) ([]string, error) {
	var ports []string
	if err := json.Unmarshal([]byte(data), &ports); err != nil {
		return nil, fmt.Errorf("unmarshal ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
