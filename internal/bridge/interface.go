package bridge

import (
	"context"
	"fmt"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Handler implements a native operation. args holds exactly Arity values,
// decoded from the bridge text the script proxy produced; missing arguments
// are Null.
type Handler func(ctx context.Context, args []value.Value) error

// Operation is one entry of an interface's registration table.
type Operation struct {
	Name    string
	Arity   int
	Handler Handler
}

// Signature returns the exported shape of the operation.
func (op Operation) Signature() Signature {
	return Signature{Name: op.Name, Arity: op.Arity}
}

// Interface groups operations under a name. Children become nested
// namespaces of the script-facing proxy object.
type Interface struct {
	Name       string
	Operations []Operation
	Children   []*Interface
}

// Binder exposes a raw native object to the script runtime under name, with
// one method per operation.
type Binder interface {
	Bind(name string, ops []Operation) error
}

// Validate checks names, arities and handlers across the whole tree.
func (i *Interface) Validate() error {
	return i.validate(i.Name)
}

func (i *Interface) validate(path string) error {
	if i == nil {
		return fmt.Errorf("nil interface under %q", path)
	}
	if !value.IsIdentifier(i.Name) {
		return fmt.Errorf("interface %q: invalid name", path)
	}
	seen := make(map[string]struct{}, len(i.Operations)+len(i.Children))
	for _, op := range i.Operations {
		if !value.IsIdentifier(op.Name) {
			return fmt.Errorf("interface %q: invalid operation name %q", path, op.Name)
		}
		if op.Arity < 0 {
			return fmt.Errorf("interface %q: operation %q has negative arity", path, op.Name)
		}
		if op.Handler == nil {
			return fmt.Errorf("interface %q: operation %q has no handler", path, op.Name)
		}
		if _, ok := seen[op.Name]; ok {
			return fmt.Errorf("interface %q: duplicate name %q", path, op.Name)
		}
		seen[op.Name] = struct{}{}
	}
	for _, child := range i.Children {
		if child == nil {
			return fmt.Errorf("interface %q: nil child", path)
		}
		if _, ok := seen[child.Name]; ok {
			return fmt.Errorf("interface %q: duplicate name %q", path, child.Name)
		}
		seen[child.Name] = struct{}{}
		if err := child.validate(path + "." + child.Name); err != nil {
			return err
		}
	}
	return nil
}

// Signatures returns the exported shapes of the interface's own operations.
func (i *Interface) Signatures() []Signature {
	sigs := make([]Signature, len(i.Operations))
	for n, op := range i.Operations {
		sigs[n] = op.Signature()
	}
	return sigs
}
