package templates

import (
	"errors"
	"fmt"
	"html/template"
	"strings"
	"text/template/parse"
)

var ErrRender = errors.New("render template")

// Renderer substitutes named variables into template source. Output is HTML
// escaped. Variables missing from vars render as the empty string, including
// nested fields whose parent object is absent or null. A parent holding a
// non-object value is still an error.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(content string, vars map[string]any) (string, error) {
	tmpl, err := r.parse(content)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	for _, path := range fieldPaths(tmpl) {
		vars, _ = fill(vars, path[:len(path)-1])
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, vars); err != nil {
		return "", fmt.Errorf("%w: execute: %v", ErrRender, err)
	}
	return out.String(), nil
}

// Check reports whether content parses, without executing it.
func (r *Renderer) Check(content string) error {
	_, err := r.parse(content)
	return err
}

func (r *Renderer) parse(content string) (*template.Template, error) {
	tmpl, err := template.New("notification").Option("missingkey=zero").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrRender, err)
	}
	return tmpl, nil
}

// missing stands in for an absent parent object. It prints as nothing.
type missing map[string]any

func (missing) String() string { return "" }

// fill returns m with an object present at every key along path. Maps are
// copied before they change so the caller's vars are never mutated.
func fill(m map[string]any, path []string) (map[string]any, bool) {
	if len(path) == 0 {
		return m, false
	}
	key := path[0]

	var next map[string]any
	absent := false
	switch c := m[key].(type) {
	case nil:
		next, absent = missing{}, true
	case missing:
		next, absent = c, true
	case map[string]any:
		next = c
	default:
		return m, false
	}

	filled, changed := fill(next, path[1:])
	if !changed && m[key] != nil {
		return m, false
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if absent {
		out[key] = missing(filled)
	} else {
		out[key] = filled
	}
	return out, true
}

// fieldPaths lists the multi-level field chains evaluated against the root
// data, e.g. ["user" "name"] for {{.user.name}} or {{$.user.name}}.
func fieldPaths(tmpl *template.Template) [][]string {
	var paths [][]string
	for _, t := range tmpl.Templates() {
		if t.Tree != nil && t.Tree.Root != nil {
			paths = walk(t.Tree.Root, true, paths)
		}
	}
	return paths
}

// walk collects field chains under node. rootDot is false inside with and
// range bodies, where dot no longer refers to the template data.
func walk(node parse.Node, rootDot bool, paths [][]string) [][]string {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return paths
		}
		for _, child := range n.Nodes {
			paths = walk(child, rootDot, paths)
		}
	case *parse.ActionNode:
		paths = walk(n.Pipe, rootDot, paths)
	case *parse.PipeNode:
		if n == nil {
			return paths
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				paths = walk(arg, rootDot, paths)
			}
		}
	case *parse.FieldNode:
		if rootDot && len(n.Ident) > 1 {
			paths = append(paths, n.Ident)
		}
	case *parse.VariableNode:
		if len(n.Ident) > 2 && n.Ident[0] == "$" {
			paths = append(paths, n.Ident[1:])
		}
	case *parse.ChainNode:
		paths = walk(n.Node, rootDot, paths)
	case *parse.IfNode:
		paths = walk(n.Pipe, rootDot, paths)
		paths = walk(n.List, rootDot, paths)
		paths = walk(n.ElseList, rootDot, paths)
	case *parse.WithNode:
		paths = walk(n.Pipe, rootDot, paths)
		paths = walk(n.List, false, paths)
		paths = walk(n.ElseList, rootDot, paths)
	case *parse.RangeNode:
		paths = walk(n.Pipe, rootDot, paths)
		paths = walk(n.List, false, paths)
		paths = walk(n.ElseList, rootDot, paths)
	case *parse.TemplateNode:
		paths = walk(n.Pipe, rootDot, paths)
	}
	return paths
}
