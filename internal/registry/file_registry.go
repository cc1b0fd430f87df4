package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ConnectionsFile is the registry file name under the user's home directory.
const ConnectionsFile = ".m365-connections.json"

// DefaultPath returns ~/.m365-connections.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("DefaultPath: %w", err)
	}
	return filepath.Join(home, ConnectionsFile), nil
}

// FileRegistry reads connections from a JSON file on every call, so edits by
// the operator take effect immediately. A missing or unparseable file is an
// empty registry. The file is never written.
type FileRegistry struct {
	path string
}

// NewFileRegistry creates a registry backed by the file at path.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

func (r *FileRegistry) GetConnection(_ context.Context, name string) (*Connection, error) {
	conns, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("GetConnection: %w", err)
	}
	c, ok := conns[name]
	if !ok {
		return nil, nil
	}
	c.Name = name
	return &c, nil
}

func (r *FileRegistry) ListConnections(_ context.Context) ([]Connection, error) {
	conns, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("ListConnections: %w", err)
	}
	return sortedConnections(conns), nil
}

func (r *FileRegistry) load() (map[string]Connection, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Connection{}, nil
		}
		return nil, err
	}
	var f registryFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return map[string]Connection{}, nil
	}
	if f.Connections == nil {
		return map[string]Connection{}, nil
	}
	return f.Connections, nil
}

func sortedConnections(conns map[string]Connection) []Connection {
	out := make([]Connection, 0, len(conns))
	for name, c := range conns {
		c.Name = name
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
