package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Shape classifies a shim by how it reports results.
type Shape uint8

const (
	// ShapeVoid returns nothing and cannot fail.
	ShapeVoid Shape = iota
	// ShapeFallible returns nothing; failures go to the exception slot.
	ShapeFallible
	// ShapeValue returns a value and cannot fail.
	ShapeValue
	// ShapeFallibleValue returns a value; failures go to the exception slot.
	ShapeFallibleValue
)

func (s Shape) String() string {
	switch s {
	case ShapeVoid:
		return "void"
	case ShapeFallible:
		return "fallible"
	case ShapeValue:
		return "value"
	case ShapeFallibleValue:
		return "fallible-value"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// Fallible reports whether the shim takes an exnptr parameter.
func (s Shape) Fallible() bool {
	return s == ShapeFallible || s == ShapeFallibleValue
}

// Shim is one imported function: its guest signature and the adapter that
// runs the host function against a wazero value stack.
type Shim struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Shape   Shape

	bridge *Bridge
	fn     reflect.Value
	hasCtx bool
	args   []paramCodec
	result *resultCodec
}

// Register adds a host function under name. See the package documentation
// for the parameter and result mapping.
func (b *Bridge) Register(name string, fn any) error {
	s, err := b.newShim(name, fn)
	if err != nil {
		return errors.Registration(errors.PhaseHost, b.cfg.Namespace, name, err)
	}
	return b.add(s)
}

// MustRegister is Register that panics on error.
func (b *Bridge) MustRegister(name string, fn any) {
	if err := b.Register(name, fn); err != nil {
		panic(err)
	}
}

func (b *Bridge) add(s *Shim) error {
	if _, dup := b.shims[s.Name]; dup {
		return errors.Registration(errors.PhaseHost, b.cfg.Namespace, s.Name,
			stderrors.New("already registered"))
	}
	b.shims[s.Name] = s
	b.order = append(b.order, s)

	Logger().Debug("registered shim",
		zap.String("name", s.Name),
		zap.Stringer("shape", s.Shape),
		zap.Int("params", len(s.Params)),
		zap.Int("results", len(s.Results)))
	return nil
}

func (b *Bridge) newShim(name string, fn any) (*Shim, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseHost, "variadic host functions")
	}

	s := &Shim{Name: name, bridge: b, fn: rv}

	// Results first: a string result puts retptr ahead of every argument.
	fallible := false
	numOut := rt.NumOut()
	if numOut > 0 && rt.Out(numOut-1) == errorType {
		fallible = true
		numOut--
	}
	switch numOut {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			return nil, errors.Unsupported(errors.PhaseHost, "error as a value result")
		}
		rc := resultFor(rt.Out(0))
		s.result = &rc
	default:
		return nil, errors.Unsupported(errors.PhaseHost,
			fmt.Sprintf("%d results; at most one value and a trailing error", rt.NumOut()))
	}

	switch {
	case s.result == nil && !fallible:
		s.Shape = ShapeVoid
	case s.result == nil:
		s.Shape = ShapeFallible
	case !fallible:
		s.Shape = ShapeValue
	default:
		s.Shape = ShapeFallibleValue
	}

	params := []api.ValueType{}
	if s.result != nil && s.result.retptr {
		params = append(params, api.ValueTypeI32)
	}
	for i := 0; i < rt.NumIn(); i++ {
		in := rt.In(i)
		if in == contextType {
			if i != 0 {
				return nil, errors.InvalidInput(errors.PhaseHost, "context.Context must be the first parameter")
			}
			s.hasCtx = true
			continue
		}
		pc := paramFor(in)
		s.args = append(s.args, pc)
		params = append(params, pc.flat...)
	}
	if fallible {
		params = append(params, api.ValueTypeI32)
	}
	s.Params = params

	s.Results = []api.ValueType{}
	if s.result != nil {
		s.Results = s.result.flat
	}
	return s, nil
}

// GoFunction adapts the shim to wazero's host function interface.
func (s *Shim) GoFunction() api.GoFunction {
	return api.GoFunc(s.Call)
}

// Call runs the shim against a wazero value stack: parameters are read
// from stack, results are written back to it.
func (s *Shim) Call(ctx context.Context, stack []uint64) {
	b := s.bridge
	b.mustAttached(s.Name)

	pos := 0
	var retptr uint32
	if s.result != nil && s.result.retptr {
		retptr = uint32(stack[0])
		pos = 1
	}

	n := len(s.args)
	if s.hasCtx {
		n++
	}
	in := make([]reflect.Value, 0, n)
	if s.hasCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for _, a := range s.args {
		width := len(a.flat)
		in = append(in, a.lift(b, s.Name, stack[pos:pos+width]))
		pos += width
	}

	var exnptr uint32
	if s.Shape.Fallible() {
		exnptr = uint32(stack[pos])
	}

	out, err := s.invoke(in)
	if err == nil && s.result != nil {
		err = s.result.lower(ctx, b, out, stack, retptr)
		if err != nil && !s.Shape.Fallible() {
			panic(violation(s.Name, err))
		}
	}
	if err == nil {
		return
	}

	if len(s.Results) > 0 {
		stack[0] = 0
	}
	if werr := b.WriteException(exnptr, err); werr != nil {
		panic(violation(s.Name, werr))
	}
	Logger().Debug("host function threw",
		zap.String("name", s.Name),
		zap.Error(err))
}

// invoke calls the host function. For fallible shims a panic that is not a
// contract violation becomes the returned error, Go runtime faults included.
func (s *Shim) invoke(in []reflect.Value) (result reflect.Value, err error) {
	if s.Shape.Fallible() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if isContractViolation(r) {
				panic(r)
			}
			err = recoveredError(s.Name, r)
		}()
	}

	out := s.fn.Call(in)
	if s.Shape.Fallible() {
		if e := out[len(out)-1]; !e.IsNil() {
			return reflect.Value{}, e.Interface().(error)
		}
	}
	if s.result != nil {
		result = out[0]
	}
	return result, nil
}

func isContractViolation(r any) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindContractViolation
}

func recoveredError(name string, r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(errors.PhaseHost, errors.KindInvalidData).
		Import(name).
		Value(r).
		Detail("panic: %v", r).
		Build()
}
