// Package wasmtest assembles small WebAssembly core modules in memory for
// tests and examples.
package wasmtest

import "fmt"

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

const funcRef = 0x70

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Sig is shorthand for FuncType{Params: params, Results: results}.
func Sig(params []ValType, results ...ValType) FuncType {
	return FuncType{Params: params, Results: results}
}

// Params is shorthand for a parameter list.
func Params(vs ...ValType) []ValType { return vs }

func (f FuncType) equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	typ    uint32
	locals []ValType
	body   []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type global struct {
	typ     ValType
	mutable bool
	init    int64
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a core module under construction. Function indices count
// imports first, so every Import must precede every Func.
type Module struct {
	types   []FuncType
	imports []importFunc
	funcs   []function
	exports []export
	globals []global
	data    []segment
	elems   []uint32
	memMin  uint32
	memMax  *uint32
	hasMem  bool
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

// Type returns the index of ft in the type section, adding it if needed.
func (m *Module) Type(ft FuncType) uint32 {
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// Import adds a function import and returns its function index.
func (m *Module) Import(module, name string, ft FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmtest: import %s.%s after a defined function", module, name))
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.Type(ft)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function whose body is built by body; the trailing end
// is added automatically. Locals follow the parameters.
func (m *Module) Func(ft FuncType, locals []ValType, body func(c *Code)) uint32 {
	var c Code
	if body != nil {
		body(&c)
	}
	c.End()
	m.funcs = append(m.funcs, function{typ: m.Type(ft), locals: locals, body: c.w.bytes()})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Export exports a function.
func (m *Module) Export(name string, fn uint32) *Module {
	m.exports = append(m.exports, export{name: name, kind: 0x00, idx: fn})
	return m
}

// Memory declares memory 0 and exports it as "memory".
func (m *Module) Memory(minPages uint32, maxPages ...uint32) *Module {
	m.hasMem = true
	m.memMin = minPages
	if len(maxPages) > 0 {
		limit := maxPages[0]
		m.memMax = &limit
	}
	m.exports = append(m.exports, export{name: "memory", kind: 0x02, idx: 0})
	return m
}

// Table places fns in table 0 starting at index 0 and exports it as
// "__indirect_function_table".
func (m *Module) Table(fns ...uint32) *Module {
	m.elems = append(m.elems, fns...)
	return m
}

// Global adds an i32 global and returns its index.
func (m *Module) Global(mutable bool, init int32) uint32 {
	m.globals = append(m.globals, global{typ: I32, mutable: mutable, init: int64(init)})
	return uint32(len(m.globals) - 1)
}

// Data places bytes at offset in memory 0.
func (m *Module) Data(offset uint32, b []byte) *Module {
	m.data = append(m.data, segment{offset: offset, data: b})
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var out writer
	out.put(0x00, 0x61, 0x73, 0x6D)
	out.put(0x01, 0x00, 0x00, 0x00)

	if len(m.types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.types)))
		for _, t := range m.types {
			sec.put(0x60)
			writeValTypes(&sec, t.Params)
			writeValTypes(&sec, t.Results)
		}
		out.section(1, &sec)
	}

	if len(m.imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.name(imp.module)
			sec.name(imp.name)
			sec.put(0x00)
			sec.u32(imp.typ)
		}
		out.section(2, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.u32(f.typ)
		}
		out.section(3, &sec)
	}

	if len(m.elems) > 0 {
		var sec writer
		sec.u32(1)
		sec.put(funcRef)
		sec.put(0x00)
		sec.u32(uint32(len(m.elems)))
		out.section(4, &sec)
	}

	if m.hasMem {
		var sec writer
		sec.u32(1)
		if m.memMax != nil {
			sec.put(0x01)
			sec.u32(m.memMin)
			sec.u32(*m.memMax)
		} else {
			sec.put(0x00)
			sec.u32(m.memMin)
		}
		out.section(5, &sec)
	}

	if len(m.globals) > 0 {
		var sec writer
		sec.u32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.put(byte(g.typ))
			if g.mutable {
				sec.put(0x01)
			} else {
				sec.put(0x00)
			}
			sec.put(0x41)
			sec.s64(g.init)
			sec.put(0x0B)
		}
		out.section(6, &sec)
	}

	exports := m.exports
	if len(m.elems) > 0 {
		exports = append(exports[:len(exports):len(exports)],
			export{name: "__indirect_function_table", kind: 0x01, idx: 0})
	}
	if len(exports) > 0 {
		var sec writer
		sec.u32(uint32(len(exports)))
		for _, e := range exports {
			sec.name(e.name)
			sec.put(e.kind)
			sec.u32(e.idx)
		}
		out.section(7, &sec)
	}

	if len(m.elems) > 0 {
		var sec writer
		sec.u32(1)
		sec.u32(0x00)
		sec.put(0x41, 0x00, 0x0B) // offset: i32.const 0
		sec.u32(uint32(len(m.elems)))
		for _, fn := range m.elems {
			sec.u32(fn)
		}
		out.section(9, &sec)
	}

	if len(m.funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body writer
			body.u32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.u32(1)
				body.put(byte(l))
			}
			body.raw(f.body)
			sec.u32(uint32(body.size()))
			sec.raw(body.bytes())
		}
		out.section(10, &sec)
	}

	if len(m.data) > 0 {
		var sec writer
		sec.u32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.u32(0x00)
			sec.put(0x41)
			sec.s64(int64(int32(d.offset)))
			sec.put(0x0B)
			sec.u32(uint32(len(d.data)))
			sec.raw(d.data)
		}
		out.section(11, &sec)
	}

	return out.bytes()
}

func writeValTypes(w *writer, vs []ValType) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.put(byte(v))
	}
}
