package chain

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/jtagft/pkg/device"
)

// ErrNoTarget is returned by Parse when the description brackets no device.
var ErrNoTarget = errors.New("chain: no target device in brackets")

// Chain descriptions list devices from TDO to TDI, for example
// "xcf32p+[6slx45]+xcf04s". Any of + , : - separates elements.
var chainLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Name", Pattern: `[A-Za-z0-9_]+`},
	{Name: "Sep", Pattern: `[+,:-]`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
})

type chainAST struct {
	Elements []*elementAST `parser:"@@ ( Sep @@ )*"`
}

type elementAST struct {
	Pos lexer.Position

	Target *string `parser:"  '[' @Name ']'"`
	Name   *string `parser:"| @Name"`
}

var chainParser = participle.MustBuild[chainAST](
	participle.Lexer(chainLexer),
	participle.Elide("Whitespace"),
)

func parseElements(s string) ([]*elementAST, error) {
	ast, err := chainParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("chain: parse %q: %w", s, err)
	}
	return ast.Elements, nil
}

// Parse reads a full chain description. Exactly one element must be
// bracketed; it becomes the target.
func Parse(reg *device.Registry, s string) (Topology, error) {
	elems, err := parseElements(s)
	if err != nil {
		return Topology{}, err
	}
	t := Topology{Target: -1}
	for i, e := range elems {
		name := e.Name
		if e.Target != nil {
			if t.Target >= 0 {
				return Topology{}, fmt.Errorf("chain: %s: second target %q", e.Pos, *e.Target)
			}
			t.Target = i
			name = e.Target
		}
		d, err := NewDevice(reg, *name)
		if err != nil {
			return Topology{}, fmt.Errorf("chain: %s: %w", e.Pos, err)
		}
		t.Devices = append(t.Devices, d)
	}
	if t.Target < 0 {
		return Topology{}, fmt.Errorf("chain: %q: %w", s, ErrNoTarget)
	}
	return t, nil
}

// ParseList reads an unbracketed list of head or tail devices.
func ParseList(reg *device.Registry, s string) ([]Device, error) {
	if s == "" {
		return nil, nil
	}
	elems, err := parseElements(s)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(elems))
	for _, e := range elems {
		if e.Target != nil {
			return nil, fmt.Errorf("chain: %s: target %q not allowed in a head or tail list", e.Pos, *e.Target)
		}
		d, err := NewDevice(reg, *e.Name)
		if err != nil {
			return nil, fmt.Errorf("chain: %s: %w", e.Pos, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}
