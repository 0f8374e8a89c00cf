package policy

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_policy.csv
var defaultFS embed.FS

const defaultName = "default_policy.csv"

// Default parses the policy compiled into the binary.
func Default() (*Set, error) {
	raw, err := defaultFS.ReadFile(defaultName)
	if err != nil {
		return nil, &ConfigError{Source: defaultName, Err: err}
	}
	return Parse(defaultName, bytes.NewReader(raw))
}

// Load parses the policy file at path. An empty path loads the default policy.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse reads a policy from r. Files ending in .yaml or .yml use the YAML
// format; everything else is read as casbin-style CSV lines.
func Parse(name string, r io.Reader) (*Set, error) {
	var (
		set *Set
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		set, err = parseYAML(name, r)
	default:
		set, err = parseCSV(name, r)
	}
	if err != nil {
		return nil, err
	}
	if len(set.rules) == 0 {
		return nil, &ConfigError{Source: name, Err: errors.New("no rules defined")}
	}
	return set, nil
}

func parseCSV(name string, r io.Reader) (*Set, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	set := &Set{source: name}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &ConfigError{Source: name, Line: parseErr.Line, Err: parseErr.Err}
			}
			return nil, &ConfigError{Source: name, Err: err}
		}
		line, _ := reader.FieldPos(0)
		fields := trimAll(record)
		if len(fields) == 1 && fields[0] == "" {
			continue
		}
		switch fields[0] {
		case "p":
			if len(fields) != 4 {
				return nil, &ConfigError{Source: name, Line: line, Err: fmt.Errorf("policy line needs 3 fields, got %d", len(fields)-1)}
			}
			rule, err := newRule(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, &ConfigError{Source: name, Line: line, Err: err}
			}
			set.rules = append(set.rules, rule)
		case "g":
			if len(fields) != 3 {
				return nil, &ConfigError{Source: name, Line: line, Err: fmt.Errorf("role line needs 2 fields, got %d", len(fields)-1)}
			}
			edge, err := newEdge(fields[1], fields[2])
			if err != nil {
				return nil, &ConfigError{Source: name, Line: line, Err: err}
			}
			set.edges = append(set.edges, edge)
		default:
			return nil, &ConfigError{Source: name, Line: line, Err: fmt.Errorf("unknown line kind %q", fields[0])}
		}
	}
	return set, nil
}

type yamlPolicy struct {
	Rules []struct {
		Role     string `yaml:"role"`
		Resource string `yaml:"resource"`
		Actions  string `yaml:"actions"`
	} `yaml:"rules"`
	Inherits []struct {
		Role   string `yaml:"role"`
		Parent string `yaml:"parent"`
	} `yaml:"inherits"`
}

func parseYAML(name string, r io.Reader) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc yamlPolicy
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Source: name, Err: err}
	}

	set := &Set{source: name}
	for i, item := range doc.Rules {
		rule, err := newRule(item.Role, item.Resource, item.Actions)
		if err != nil {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("rules[%d]: %w", i, err)}
		}
		set.rules = append(set.rules, rule)
	}
	for i, item := range doc.Inherits {
		edge, err := newEdge(item.Role, item.Parent)
		if err != nil {
			return nil, &ConfigError{Source: name, Err: fmt.Errorf("inherits[%d]: %w", i, err)}
		}
		set.edges = append(set.edges, edge)
	}
	return set, nil
}

func newRule(role, resource, actions string) (Rule, error) {
	role = strings.TrimSpace(role)
	resource = strings.TrimSpace(resource)
	actions = strings.TrimSpace(actions)
	switch {
	case role == "":
		return Rule{}, errors.New("missing role")
	case resource == "":
		return Rule{}, errors.New("missing resource")
	case actions == "":
		return Rule{}, errors.New("missing actions")
	}
	if err := validateResourcePattern(resource); err != nil {
		return Rule{}, err
	}
	re, err := compileAction(actions)
	if err != nil {
		return Rule{}, fmt.Errorf("action pattern %q: %w", actions, err)
	}
	return Rule{Role: role, ResourcePattern: resource, ActionPattern: actions, action: re}, nil
}

func newEdge(role, parent string) (Edge, error) {
	role = strings.TrimSpace(role)
	parent = strings.TrimSpace(parent)
	switch {
	case role == "":
		return Edge{}, errors.New("missing role")
	case parent == "":
		return Edge{}, errors.New("missing parent role")
	case role == parent:
		return Edge{}, fmt.Errorf("role %q cannot inherit itself", role)
	}
	return Edge{Role: role, Parent: parent}, nil
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
