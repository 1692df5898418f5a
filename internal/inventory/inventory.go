// Package inventory reads the YAML list of instances the console can open
// terminals against.
//
//	instances:
//	  - name: web-1
//	    display_name: Web 1
//	    host: 10.0.0.5
//	    user: deploy
//	    authorized_key: ssh-ed25519 AAAA...
//	  - db-1            # name only: simulated terminal, no address
package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/claworc/console/internal/database"
)

const defaultSSHPort = 22

// File is the top-level inventory document.
type File struct {
	Instances []Entry `yaml:"instances"`
}

// Entry describes one instance.
type Entry struct {
	Name          string `yaml:"name"`
	DisplayName   string `yaml:"display_name"`
	Host          string `yaml:"host"`
	User          string `yaml:"user"`
	Port          int    `yaml:"port"`
	Container     string `yaml:"container"`
	AuthorizedKey string `yaml:"authorized_key"`
}

var entryKeys = map[string]bool{
	"name": true, "display_name": true, "host": true, "user": true,
	"port": true, "container": true, "authorized_key": true,
}

// UnmarshalYAML accepts either a bare instance name or the mapping form.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*e = Entry{Name: value.Value}
		return nil
	}
	if value.Kind == yaml.MappingNode {
		for i := 0; i < len(value.Content); i += 2 {
			if k := value.Content[i].Value; !entryKeys[k] {
				return fmt.Errorf("line %d: unknown field %q", value.Content[i].Line, k)
			}
		}
	}
	type rawEntry Entry
	var raw rawEntry
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = Entry(raw)
	return nil
}

// Load reads and validates the inventory at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates an inventory document. Unknown keys are
// rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	seen := make(map[string]bool, len(f.Instances))
	for i, e := range f.Instances {
		if e.Name == "" {
			return nil, fmt.Errorf("instance #%d: name is required", i+1)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("instance %q listed twice", e.Name)
		}
		seen[e.Name] = true
		if e.Port < 0 || e.Port > 65535 {
			return nil, fmt.Errorf("instance %q: invalid port %d", e.Name, e.Port)
		}
	}
	return &f, nil
}

// Rows converts the inventory into database rows ready for
// database.SyncInstances.
func (f *File) Rows() []database.Instance {
	out := make([]database.Instance, 0, len(f.Instances))
	for _, e := range f.Instances {
		inst := database.Instance{
			Name:          e.Name,
			DisplayName:   e.DisplayName,
			Host:          e.Host,
			SSHUser:       e.User,
			SSHPort:       e.Port,
			SSHPublicKey:  e.AuthorizedKey,
			ContainerName: e.Container,
		}
		if inst.DisplayName == "" {
			inst.DisplayName = e.Name
		}
		if inst.SSHUser == "" {
			inst.SSHUser = "root"
		}
		if inst.SSHPort == 0 {
			inst.SSHPort = defaultSSHPort
		}
		out = append(out, inst)
	}
	return out
}
