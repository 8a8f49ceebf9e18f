package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Import names one function a guest expects from its environment.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Key formats the import as "module#name".
func (i Import) Key() string {
	return i.Module + "#" + i.Name
}

// Module is a compiled guest.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	closed   bool
}

// Imports lists the functions the guest imports, in declaration order.
func (m *Module) Imports() []Import {
	defs := m.compiled.ImportedFunctions()
	out := make([]Import, 0, len(defs))
	for _, def := range defs {
		mod, name, ok := def.Import()
		if !ok {
			continue
		}
		out = append(out, Import{
			Module:  mod,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	return out
}

// Exports lists the names of the functions the guest exports.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Compiled exposes the wazero compiled module.
func (m *Module) Compiled() wazero.CompiledModule {
	return m.compiled
}

// Close releases the compiled code. Running instances are unaffected.
// Calling Close more than once is a no-op.
func (m *Module) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.compiled.Close(ctx)
}

// Closed reports whether Close has been called.
func (m *Module) Closed() bool {
	return m.closed
}
