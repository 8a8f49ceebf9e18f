package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	// Name is the guest module name; empty means anonymous.
	Name string
}

// Instance is a guest linked against a bridge.
type Instance struct {
	bridge  *bridge.Bridge
	module  api.Module
	host    api.Module
	guest   *guest
	memory  *Memory
	started bool
}

// Instantiate links mod against b and instantiates it. Start functions
// are not run; call Start once the embedder is ready.
func (e *Engine) Instantiate(ctx context.Context, mod *Module, b *bridge.Bridge, cfg *InstanceConfig) (*Instance, error) {
	if err := checkImports(mod, b); err != nil {
		return nil, err
	}

	ns := b.Namespace()
	if e.runtime.Module(ns) != nil {
		return nil, errors.New(errors.PhaseLinking, errors.KindInstantiation).
			Import(ns).
			Detail("namespace %q is already bound in this engine", ns).
			Build()
	}

	builder := e.runtime.NewHostModuleBuilder(ns)
	for _, s := range b.Imports() {
		builder.NewFunctionBuilder().
			WithGoFunction(s.GoFunction(), s.Params, s.Results).
			WithName(s.Name).
			Export(s.Name)
	}
	host, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseLinking, ns, "*", err)
	}

	modCfg := wazero.NewModuleConfig().WithStartFunctions()
	if cfg != nil && cfg.Name != "" {
		modCfg = modCfg.WithName(cfg.Name)
	} else {
		modCfg = modCfg.WithName("")
	}

	inst, err := e.runtime.InstantiateModule(ctx, mod.compiled, modCfg)
	if err != nil {
		_ = host.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	g := newGuest(inst, b.Config().MallocExport)
	if g.malloc == nil {
		Logger().Warn("guest exports no allocator; string results will fail",
			zap.String("export", b.Config().MallocExport))
	}
	b.Attach(g)

	i := &Instance{
		bridge: b,
		module: inst,
		host:   host,
		guest:  g,
	}
	if mem := inst.Memory(); mem != nil {
		i.memory = &Memory{mem: mem}
	}

	Logger().Debug("instantiated guest",
		zap.String("namespace", ns),
		zap.Int("shims", len(b.Imports())))
	return i, nil
}

// checkImports reports every import in the bridge namespace that the
// bridge does not provide, and every signature mismatch.
func checkImports(mod *Module, b *bridge.Bridge) error {
	ns := b.Namespace()
	var missing []string
	for _, imp := range mod.Imports() {
		if imp.Module != ns {
			continue
		}
		s, ok := b.Lookup(imp.Name)
		if !ok {
			missing = append(missing, imp.Key())
			continue
		}
		if !sameTypes(s.Params, imp.Params) || !sameTypes(s.Results, imp.Results) {
			return errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
				Import(imp.Key()).
				Detail("guest expects %s, bridge provides %s",
					signature(imp.Params, imp.Results), signature(s.Params, s.Results)).
				Build()
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	name := func(vs []api.ValueType) string {
		s := "("
		for i, v := range vs {
			if i > 0 {
				s += ", "
			}
			s += api.ValueTypeName(v)
		}
		return s + ")"
	}
	return name(params) + " -> " + name(results)
}

// Bridge returns the bridge the instance is linked against.
func (i *Instance) Bridge() *bridge.Bridge {
	return i.bridge
}

// Module exposes the wazero guest module.
func (i *Instance) Module() api.Module {
	return i.module
}

// Memory returns guest memory, or nil when the guest has none.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Start runs the guest entry point: the configured start export, falling
// back to "main". It runs at most once; a guest with neither export has
// nothing to start.
func (i *Instance) Start(ctx context.Context) error {
	if i.started {
		return nil
	}
	i.started = true

	name := i.bridge.Config().StartExport
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		name = "main"
		fn = i.module.ExportedFunction(name)
	}
	if fn == nil {
		Logger().Debug("guest has no entry point")
		return nil
	}
	if len(fn.Definition().ParamTypes()) > 0 {
		return errors.Unsupported(errors.PhaseRuntime,
			fmt.Sprintf("entry point %s takes parameters", name))
	}
	if _, err := fn.Call(ctx); err != nil {
		return callError(name, err)
	}
	return nil
}

// Call invokes an exported guest function.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	out, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, callError(name, err)
	}
	return out, nil
}

// Close detaches the bridge and closes the guest and host modules.
func (i *Instance) Close(ctx context.Context) error {
	i.bridge.Close()
	var firstErr error
	if i.module != nil {
		if err := i.module.Close(ctx); err != nil {
			firstErr = err
		}
		i.module = nil
	}
	if i.host != nil {
		if err := i.host.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.host = nil
	}
	i.guest = nil
	i.memory = nil
	return firstErr
}

// callError classifies a failed guest call.
func callError(name string, err error) error {
	kind := errors.KindTrap
	var be *errors.Error
	var te *bridge.ThrownError
	switch {
	case stderrors.As(err, &te):
		kind = errors.KindGuestThrow
	case stderrors.As(err, &be):
		kind = be.Kind
	}
	e := errors.Wrap(errors.PhaseRuntime, kind, err, "call "+name)
	e.Import = name
	return e
}
