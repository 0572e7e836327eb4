package mir

import "github.com/lumen-lang/lumenc/pkg/types"

// FieldDef is one named, typed struct field, in declaration order (layout
// order is this order — pkg/types.SizeOf assumes it for non-MIR callers).
type FieldDef struct {
	Name string
	Type *types.Type
}

// StructDef is a struct type's field layout, keyed by its mangled name in
// Module.Structs.
type StructDef struct {
	Name     string
	TypeArgs []*types.Type
	Fields   []FieldDef
}

// VariantDef is one enum variant: a name and its payload field types (empty
// for a unit variant).
type VariantDef struct {
	Name    string
	Payload []*types.Type
}

// EnumDef is an enum type's variant layout, keyed by its mangled name in
// Module.Enums.
type EnumDef struct {
	Name     string
	TypeArgs []*types.Type
	Variants []VariantDef
}

// Module is a full compilation unit: every function plus the struct/enum
// layouts its types.Type values reference by name.
type Module struct {
	Name      string
	Functions []*Function
	Structs   map[string]*StructDef
	Enums     map[string]*EnumDef

	interner *types.Interner
}

// NewModule constructs an empty module with its own type interner — interning
// is per-compilation-unit, not shared across modules.
func NewModule(name string) *Module {
	return &Module{
		Name:     name,
		Structs:  map[string]*StructDef{},
		Enums:    map[string]*EnumDef{},
		interner: types.NewInterner(),
	}
}

// Interner returns the module's type interner.
func (m *Module) Interner() *types.Interner { return m.interner }

// AddFunction appends fn to the module.
func (m *Module) AddFunction(fn *Function) { m.Functions = append(m.Functions, fn) }

// Function looks up a function by name, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// AddStruct registers a struct layout under its mangled type name.
func (m *Module) AddStruct(mangledName string, def *StructDef) { m.Structs[mangledName] = def }

// AddEnum registers an enum layout under its mangled type name.
func (m *Module) AddEnum(mangledName string, def *EnumDef) { m.Enums[mangledName] = def }

// FieldIndex returns the declaration-order index of fieldName in the named
// struct, or -1 if not found. Used by GetElementPtr lowering.
func (d *StructDef) FieldIndex(fieldName string) int {
	for i, f := range d.Fields {
		if f.Name == fieldName {
			return i
		}
	}
	return -1
}

// VariantIndex returns the declaration-order index of variantName in the
// named enum, or -1 if not found.
func (d *EnumDef) VariantIndex(variantName string) int {
	for i, v := range d.Variants {
		if v.Name == variantName {
			return i
		}
	}
	return -1
}
