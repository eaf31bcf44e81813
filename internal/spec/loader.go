package spec

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// sourceExts lists the recognised spec file extensions.
var sourceExts = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// ErrNoSources is returned when a spec directory holds no spec files.
var ErrNoSources = errors.New("no spec files found")

// LoadError is a fatal problem with one spec source.
type LoadError struct {
	Source string // file path
	Case   string // case name or "#<index>", empty for spec-level errors
	Err    error
}

func (e *LoadError) Error() string {
	var hexErr *HexError
	if errors.As(e.Err, &hexErr) && hexErr.Context != "" {
		return hexErr.Error()
	}
	if e.Case != "" {
		return fmt.Sprintf("%s: case %s: %v", e.Source, e.Case, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	specSchema  cue.Value
	schemaError error
)

// compiledSchema compiles the embedded schema once per process.
func compiledSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaError = fmt.Errorf("compile spec schema: %w", err)
			return
		}
		specSchema = v.LookupPath(cue.ParsePath("#Spec"))
	})
	return schemaCtx, specSchema, schemaError
}

// FindSources returns the spec files directly inside dir, sorted by name.
// If filter is non-empty it is matched as a glob against each file's base
// name without extension.
func FindSources(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spec directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !sourceExts[ext] {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(entry.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)
	return files, nil
}

// LoadDir loads every spec source in dir in lexicographic order.
// Any problem in any source fails the whole load; no partial result is
// returned. Two cases of the same binary whose names map to the same
// FileName are duplicates even when they live in different sources.
func LoadDir(dir, filter string) ([]*Spec, error) {
	files, err := FindSources(dir, filter)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSources, dir)
	}

	specs := make([]*Spec, 0, len(files))
	owners := make(map[caseKey]caseOwner)
	for _, path := range files {
		s, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, c := range s.Cases {
			key := caseKey{binary: FileName(s.Binary), name: FileName(c.Name)}
			if prev, ok := owners[key]; ok {
				return nil, &LoadError{
					Source: path,
					Case:   c.Name,
					Err:    fmt.Errorf("%w (also in %s)", duplicateName(prev.name, c.Name), prev.source),
				}
			}
			owners[key] = caseOwner{source: path, name: c.Name}
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// caseKey identifies a case by the artifact paths it would write.
type caseKey struct {
	binary, name string
}

type caseOwner struct {
	source, name string
}

func duplicateName(prev, name string) error {
	if prev == name {
		return errors.New("duplicate case name")
	}
	return fmt.Errorf("duplicate case name: %q and %q share log files", prev, name)
}

// LoadFile reads and validates a single spec source.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: fmt.Errorf("failed to read spec file: %w", err)}
	}
	return Parse(path, data)
}

// Parse decodes spec data. source names the data in error messages and
// its extension selects the syntax: .json is strict JSON, anything else
// is read as YAML.
func Parse(source string, data []byte) (*Spec, error) {
	ctx, schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	doc, err := compileSource(ctx, source, data)
	if err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("failed to parse: %w", err)}
	}
	if doc.IncompleteKind() != cue.StructKind {
		return nil, &LoadError{Source: source, Err: errors.New("spec must be an object")}
	}

	v := schema.Unify(doc)
	if err := v.Validate(); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("invalid spec: %s", firstCUEError(err))}
	}

	var raw rawSpec
	if err := v.Decode(&raw); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("invalid spec: %s", firstCUEError(err))}
	}

	return build(source, &raw)
}

// compileSource turns spec bytes into a CUE value. JSON must be strictly
// well-formed; CUE syntax such as comments or trailing commas is rejected.
func compileSource(ctx *cue.Context, source string, data []byte) (cue.Value, error) {
	if filepath.Ext(source) == ".json" {
		expr, err := cuejson.Extract(source, data)
		if err != nil {
			return cue.Value{}, errors.New(firstCUEError(err))
		}
		v := ctx.BuildExpr(expr, cue.Filename(source))
		if err := v.Err(); err != nil {
			return cue.Value{}, errors.New(firstCUEError(err))
		}
		return v, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return cue.Value{}, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return cue.Value{}, errors.New("spec must be an object")
	}
	doc, err := yamlValue(root.Content[0])
	if err != nil {
		return cue.Value{}, err
	}
	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return cue.Value{}, errors.New(firstCUEError(err))
	}
	return v, nil
}

// yamlValue converts a YAML node to plain Go values, keeping only the JSON
// data model. Implicit timestamps and binary scalars are rejected instead of
// being rewritten, so an unquoted date never turns into a different string.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias)

	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
				if err := mergeInto(m, v); err != nil {
					return nil, err
				}
				continue
			}
			if k.Kind != yaml.ScalarNode || k.ShortTag() != "!!str" {
				return nil, fmt.Errorf("line %d: mapping key %q is not a string", k.Line, k.Value)
			}
			val, err := yamlValue(v)
			if err != nil {
				return nil, err
			}
			m[k.Value] = val
		}
		return m, nil

	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil

	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!str":
			return n.Value, nil
		case "!!null":
			return nil, nil
		case "!!int":
			var i int64
			err := n.Decode(&i)
			return i, err
		case "!!float":
			var f float64
			err := n.Decode(&f)
			return f, err
		case "!!bool":
			var b bool
			err := n.Decode(&b)
			return b, err
		}
		return nil, fmt.Errorf("line %d: value %q has type %s; quote it to use it as a string", n.Line, n.Value, n.ShortTag())
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// mergeInto applies a "<<" merge value to m. Keys already present win.
func mergeInto(m map[string]any, v *yaml.Node) error {
	if v.Kind == yaml.AliasNode {
		v = v.Alias
	}
	if v.Kind == yaml.SequenceNode {
		for _, item := range v.Content {
			if err := mergeInto(m, item); err != nil {
				return err
			}
		}
		return nil
	}
	if v.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: merge value must be a mapping", v.Line)
	}
	val, err := yamlValue(v)
	if err != nil {
		return err
	}
	for k, x := range val.(map[string]any) {
		if _, ok := m[k]; !ok {
			m[k] = x
		}
	}
	return nil
}

// build applies the checks the schema cannot express and decodes fixtures.
func build(source string, raw *rawSpec) (*Spec, error) {
	if raw.Binary == "" {
		return nil, &LoadError{Source: source, Err: errors.New("missing or invalid 'binary' field")}
	}
	if len(raw.Cases) == 0 {
		return nil, &LoadError{Source: source, Err: errors.New("missing or invalid 'cases' list")}
	}

	s := &Spec{
		Binary: raw.Binary,
		Source: source,
		Cases:  make([]Case, 0, len(raw.Cases)),
	}
	seen := make(map[string]string, len(raw.Cases))

	for i, rc := range raw.Cases {
		if rc.Name == "" {
			return nil, &LoadError{Source: source, Case: fmt.Sprintf("#%d", i), Err: errors.New("missing a name")}
		}
		key := FileName(rc.Name)
		if prev, ok := seen[key]; ok {
			return nil, &LoadError{Source: source, Case: rc.Name, Err: duplicateName(prev, rc.Name)}
		}
		seen[key] = rc.Name

		stdin, err := decodeField(rc.StdinHex, source, rc.Name, "stdin_hex")
		if err != nil {
			return nil, &LoadError{Source: source, Case: rc.Name, Err: err}
		}
		stdout, err := decodeField(rc.StdoutHex, source, rc.Name, "stdout_hex")
		if err != nil {
			return nil, &LoadError{Source: source, Case: rc.Name, Err: err}
		}

		s.Cases = append(s.Cases, Case{
			Name:     rc.Name,
			Stdin:    stdin,
			Stdout:   stdout,
			ExitCode: rc.ExitCode,
		})
	}

	return s, nil
}

// firstCUEError trims a CUE error list to its first entry.
func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
