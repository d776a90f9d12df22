package bridge

import (
	"strconv"
	"strings"
	"sync"
)

// DefaultPrefix is the script-side root object that holds exported proxies.
const DefaultPrefix = "NativeBridge"

// EncodeFunctionName is the script-side function that turns any script value
// into bridge text before it is handed to a native method.
const EncodeFunctionName = "valueToBridgeString"

// Signature names an exported operation and its arity.
type Signature struct {
	Name  string
	Arity int
}

// Exporter renders script-side proxy definitions for native operations.
//
// Each proxy has the arity of its operation and forwards every argument,
// encoded by valueToBridgeString, to the raw native object. Namespace objects
// are initialised exactly once per Exporter, however many operations or
// Export calls populate them.
type Exporter struct {
	prefix string

	mu          sync.Mutex
	initialized map[string]struct{}
}

// NewExporter returns an exporter rooted at prefix, or DefaultPrefix if prefix
// is empty.
func NewExporter(prefix string) *Exporter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Exporter{
		prefix:      prefix,
		initialized: make(map[string]struct{}),
	}
}

// Prefix returns the script-side root object name.
func (e *Exporter) Prefix() string { return e.prefix }

// Export returns the statements that define proxies for ops under namespace
// (dotted, "" for the root), forwarding to the raw native object nativeName.
func (e *Exporter) Export(nativeName, namespace string, ops []Signature) []string {
	var out []string

	e.mu.Lock()
	target := e.prefix
	out = e.initLocked(out, target)
	if namespace != "" {
		for _, segment := range strings.Split(namespace, ".") {
			target += "." + segment
			out = e.initLocked(out, target)
		}
	}
	e.mu.Unlock()

	for _, op := range ops {
		out = append(out, proxyStatement(target, nativeName, op))
	}
	return out
}

// Reset forgets which namespaces were initialised, e.g. after the script
// environment was reloaded.
func (e *Exporter) Reset() {
	e.mu.Lock()
	e.initialized = make(map[string]struct{})
	e.mu.Unlock()
}

func (e *Exporter) initLocked(out []string, path string) []string {
	if _, ok := e.initialized[path]; ok {
		return out
	}
	e.initialized[path] = struct{}{}
	if !strings.Contains(path, ".") {
		// the root is a global; var makes it visible to every later statement
		return append(out, "var "+path+" = { };")
	}
	return append(out, path+" = { };")
}

func proxyStatement(target, nativeName string, op Signature) string {
	params := make([]string, op.Arity)
	encoded := make([]string, op.Arity)
	for i := range params {
		params[i] = "arg" + strconv.Itoa(i)
		encoded[i] = EncodeFunctionName + "(" + params[i] + ")"
	}
	return target + "." + op.Name + " = function(" + strings.Join(params, ", ") + ") { " +
		nativeName + "." + op.Name + "(" + strings.Join(encoded, ", ") + "); };"
}

// NativeName mangles a dotted interface path into the identifier under which
// the raw native object is exposed, distinct from its script-facing proxy.
// Dots become "_" and underscores "_0"; no segment starts with a digit, so
// distinct paths never share a name.
func NativeName(path string) string {
	var sb strings.Builder
	sb.WriteString("__")
	for _, r := range path {
		switch r {
		case '.':
			sb.WriteByte('_')
		case '_':
			sb.WriteString("_0")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
