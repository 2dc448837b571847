package assetloader

import (
	"fmt"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/yaml"
	"github.com/cespare/xxhash/v2"
)

// Decoder turns resolved files into opaque assets.
// Values from one decoder share its CUE context, so a Decoder and the
// values it returns must not be used from multiple goroutines.
type Decoder struct {
	ctx *cue.Context
}

// NewDecoder creates a decoder with its own CUE context
func NewDecoder() *Decoder {
	return &Decoder{
		ctx: cuecontext.New(),
	}
}

// Context returns the CUE context used by this decoder
func (d *Decoder) Context() *cue.Context {
	return d.ctx
}

// Decode builds an Asset from a resolved result.
// A file asset decodes to its content. A directory asset decodes to a
// struct with one field per file, keyed by the file name without extension.
// Files in subdirectories nest under one field per directory, so
// models/User.json becomes models.User.
func (d *Decoder) Decode(res *Resolved) (*Asset, error) {
	if res == nil || len(res.Files) == 0 {
		return nil, fmt.Errorf("nothing to decode")
	}

	var value cue.Value
	var content []byte

	if !res.Dir {
		f := res.Files[0]
		v, err := d.decodeFile(f.Name, f.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", res.Source, err)
		}
		value = v
		content = f.Data
	} else {
		value = d.ctx.CompileString("{}")
		for _, f := range res.Files {
			v, err := d.decodeFile(f.Name, f.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s/%s: %w", res.Source, f.Name, err)
			}
			value = value.FillPath(filePath(f.Name), v)

			if len(content) > 0 {
				content = append(content, '\n')
			}
			content = append(content, f.Data...)
		}
		if value.Err() != nil {
			return nil, fmt.Errorf("failed to build %s: %w", res.Source, value.Err())
		}
	}

	return &Asset{
		Name:    res.Name,
		Source:  res.Source,
		Digest:  fmt.Sprintf("%s:%x", res.Name, xxhash.Sum64(content)),
		Content: content,
		Value:   value,
	}, nil
}

// decodeFile compiles a single file according to its extension.
// JSON is decoded strictly; a repeated key keeps its last value.
// Extensionless files are decoded as JSON when they are valid JSON and as
// CUE otherwise.
func (d *Decoder) decodeFile(name string, data []byte) (cue.Value, error) {
	ext := path.Ext(name)
	switch {
	case ext == ".yaml" || ext == ".yml":
		file, err := yaml.Extract(name, data)
		if err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return d.build(d.ctx.BuildFile(file))

	case ext == ".json" || (ext == "" && json.Valid(data)):
		expr, err := json.Extract(name, data)
		if err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
		lastWins(expr)
		return d.build(d.ctx.BuildExpr(expr))

	default:
		v := d.ctx.CompileBytes(data, cue.Filename(name))
		if v.Err() != nil {
			return cue.Value{}, fmt.Errorf("failed to compile: %w", v.Err())
		}
		return v, nil
	}
}

func (d *Decoder) build(v cue.Value) (cue.Value, error) {
	if v.Err() != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", v.Err())
	}
	return v, nil
}

// lastWins drops earlier occurrences of a repeated object key so the value
// is the last one written, as JSON decoders do. The field keeps its first
// position.
func lastWins(expr ast.Expr) {
	switch x := expr.(type) {
	case *ast.StructLit:
		seen := make(map[string]int)
		elts := make([]ast.Decl, 0, len(x.Elts))
		for _, decl := range x.Elts {
			field, ok := decl.(*ast.Field)
			if !ok {
				elts = append(elts, decl)
				continue
			}
			lastWins(field.Value)

			label, _, err := ast.LabelName(field.Label)
			if err != nil {
				elts = append(elts, decl)
				continue
			}
			if i, ok := seen[label]; ok {
				elts[i] = field
				continue
			}
			seen[label] = len(elts)
			elts = append(elts, field)
		}
		x.Elts = elts

	case *ast.ListLit:
		for _, e := range x.Elts {
			lastWins(e)
		}
	}
}

// models splits a decoded schema set into its top-level fields
func models(v cue.Value) (map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, fmt.Errorf("schema set is not a struct: %w", err)
	}

	out := make(map[string]cue.Value)
	for iter.Next() {
		out[iter.Selector().Unquoted()] = iter.Value()
	}
	return out, nil
}

// filePath maps a slash-separated file name in a directory asset to the
// CUE path it is filled at
func filePath(name string) cue.Path {
	parts := strings.Split(stem(name), "/")
	sels := make([]cue.Selector, 0, len(parts))
	for _, p := range parts {
		sels = append(sels, cue.Str(p))
	}
	return cue.MakePath(sels...)
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
