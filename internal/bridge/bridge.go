// Package bridge correlates host-initiated script calls with their results
// and exports native operations to the script runtime.
//
// The script runtime can only be driven by injecting text; results come back
// asynchronously through a reporting hook. Correlator builds a call/return API
// on top of that, and Exporter generates the script-side proxies through which
// scripts reach native operations.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Host is the script-hosting collaborator a Bridge drives.
type Host interface {
	Injector
	Binder
	// SetResultSink routes the script's result-reporting hook to sink.
	SetResultSink(sink func(raw string))
}

// Bridge wires a Correlator and an Exporter to a Host.
type Bridge struct {
	id         string
	host       Host
	logger     *slog.Logger
	correlator *Correlator
	exporter   *Exporter
}

// New returns a Bridge for host. If host can validate function references or
// detect its own loop goroutine, those capabilities are used unless options
// override them.
func New(host Host, opts ...Option) (*Bridge, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if v, ok := host.(FunctionValidator); ok && o.validator == nil {
		o.validator = v
	}
	if d, ok := host.(LoopDetector); ok && o.detector == nil {
		o.detector = d
	}

	id := uuid.NewString()
	o.logger = o.logger.With(slog.String("bridge", id))

	b := &Bridge{
		id:         id,
		host:       host,
		logger:     o.logger,
		correlator: newCorrelator(host, o),
		exporter:   NewExporter(o.prefix),
	}
	host.SetResultSink(b.correlator.ReportResult)
	return b, nil
}

// ID identifies this bridge in logs.
func (b *Bridge) ID() string { return b.id }

// Correlator returns the bridge's call correlator.
func (b *Bridge) Correlator() *Correlator { return b.correlator }

// Exporter returns the bridge's proxy exporter.
func (b *Bridge) Exporter() *Exporter { return b.exporter }

// Invoke is shorthand for Correlator().Invoke.
func (b *Bridge) Invoke(ctx context.Context, fn value.Value, args []value.Value, onResult ResultFunc) error {
	return b.correlator.Invoke(ctx, fn, args, onResult)
}

// Call is shorthand for Correlator().Call.
func (b *Bridge) Call(ctx context.Context, fn value.Value, args ...value.Value) (value.Value, error) {
	return b.correlator.Call(ctx, fn, args...)
}

// Setup binds every interface in the tree rooted at root and injects the
// proxies. The root's operations live directly on the prefix object; each
// child adds a namespace named after it.
func (b *Bridge) Setup(root *Interface) error {
	if err := root.Validate(); err != nil {
		return err
	}
	stmts, err := b.setup(root, root.Name, "", nil)
	if err != nil {
		return err
	}
	if err := b.inject(stmts); err != nil {
		return fmt.Errorf("inject proxies: %w", err)
	}
	b.logger.Info("exported interface", slog.String("interface", root.Name), slog.Int("statements", len(stmts)))
	return nil
}

// Statements returns what Setup would inject for root into a fresh script
// environment. Nothing is bound and the bridge's exporter is left untouched.
func Statements(prefix string, root *Interface) ([]string, error) {
	if prefix != "" && !value.IsIdentifier(prefix) {
		return nil, fmt.Errorf("invalid interface prefix %q", prefix)
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return collectStatements(NewExporter(prefix), root, root.Name, "", nil), nil
}

func (b *Bridge) setup(iface *Interface, path, namespace string, out []string) ([]string, error) {
	native := NativeName(path)
	if err := b.host.Bind(native, iface.Operations); err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	out = append(out, b.exporter.Export(native, namespace, iface.Signatures())...)
	for _, child := range iface.Children {
		var err error
		out, err = b.setup(child, path+"."+child.Name, joinNamespace(namespace, child.Name), out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func collectStatements(e *Exporter, iface *Interface, path, namespace string, out []string) []string {
	out = append(out, e.Export(NativeName(path), namespace, iface.Signatures())...)
	for _, child := range iface.Children {
		out = collectStatements(e, child, path+"."+child.Name, joinNamespace(namespace, child.Name), out)
	}
	return out
}

func (b *Bridge) inject(stmts []string) error {
	if bi, ok := b.host.(BatchInjector); ok {
		return bi.InjectBatch(stmts...)
	}
	for _, s := range stmts {
		if err := b.host.Inject(s); err != nil {
			return err
		}
	}
	return nil
}

func joinNamespace(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
