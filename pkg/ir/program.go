package ir

import (
	"fmt"

	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/types"
)

// Global is any named entity a Program's name index may hold: a Func,
// Extern, Atom, or Block (block labels are addressable, spec.md §3.3).
type Global interface {
	Name() string
	SetName(string)
	Visibility() types.Visibility
	SetVisibility(types.Visibility)
	usesSlot() *[]Use
}

// globalBase implements the common Global bookkeeping; every Global
// variant embeds it.
type globalBase struct {
	name string
	vis  types.Visibility
	uses []Use
}

func (g *globalBase) Name() string                        { return g.name }
func (g *globalBase) SetName(n string)                     { g.name = n }
func (g *globalBase) Visibility() types.Visibility         { return g.vis }
func (g *globalBase) SetVisibility(v types.Visibility)     { g.vis = v }
func (g *globalBase) usesSlot() *[]Use                     { return &g.uses }

// Uses returns every (user instruction, operand slot) pair whose
// operand is a GlobalRef pointing at this global.
func (g *globalBase) Uses() []Use { return append([]Use(nil), g.uses...) }

// --- StackObject / Param ---

// StackObject is one statically sized, aligned slot in a Func's
// activation record (spec.md §3.3).
type StackObject struct {
	Index int
	Size  uint32
	Align uint8
}

// Param is one (type, ABI flag) pair in a Func's parameter list.
type Param struct {
	Type types.Type
	Flag ArgFlag
}

// --- Func ---

// Func is a Global owning an ordered list of Blocks (spec.md §3.3).
// The first block is the entry; blocks are stored in insertion order
// but codegen iteration uses reverse post-order (spec.md §3.2, §5).
type Func struct {
	globalBase
	parent   *Program
	blocks   []*Block
	align    uint32 // 0 = absent
	hasAlign bool
	cc       types.CallingConv
	varArg   bool
	noInline bool
	cpu      string
	tuneCPU  string
	features string
	abi      string
	personality Global // optional
	params   []Param
	stack    []StackObject
}

// NewFunc creates a detached Func; add it to a Program with AddFunc.
func NewFunc(name string, vis types.Visibility) *Func {
	f := &Func{}
	f.name, f.vis = name, vis
	return f
}

func (f *Func) Parent() *Program          { return f.parent }
func (f *Func) CallingConv() types.CallingConv { return f.cc }
func (f *Func) SetCallingConv(cc types.CallingConv) { f.cc = cc }
func (f *Func) VarArg() bool               { return f.varArg }
func (f *Func) SetVarArg(b bool)           { f.varArg = b }
func (f *Func) NoInline() bool             { return f.noInline }
func (f *Func) SetNoInline(b bool)         { f.noInline = b }
func (f *Func) CPU() string                { return f.cpu }
func (f *Func) SetCPU(s string)            { f.cpu = s }
func (f *Func) TuneCPU() string            { return f.tuneCPU }
func (f *Func) SetTuneCPU(s string)        { f.tuneCPU = s }
func (f *Func) Features() string           { return f.features }
func (f *Func) SetFeatures(s string)       { f.features = s }
func (f *Func) ABI() string                { return f.abi }
func (f *Func) SetABI(s string)            { f.abi = s }
func (f *Func) Personality() Global        { return f.personality }
func (f *Func) SetPersonality(g Global)    { f.personality = g }
func (f *Func) Params() []Param            { return append([]Param(nil), f.params...) }
func (f *Func) SetParams(p []Param)        { f.params = p }
func (f *Func) StackObjects() []StackObject { return append([]StackObject(nil), f.stack...) }

// AddStackObject appends a new stack slot and returns its index.
func (f *Func) AddStackObject(size uint32, align uint8) int {
	idx := len(f.stack)
	f.stack = append(f.stack, StackObject{Index: idx, Size: size, Align: align})
	return idx
}

// Alignment returns the function's alignment and whether one is set.
func (f *Func) Alignment() (uint32, bool) { return f.align, f.hasAlign }

// SetAlignment sets the function's alignment.
func (f *Func) SetAlignment(align uint32) { f.align, f.hasAlign = align, true }

// Entry returns the function's entry block (the first block added).
func (f *Func) Entry() *Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// Blocks returns the function's blocks in insertion order.
func (f *Func) Blocks() []*Block { return append([]*Block(nil), f.blocks...) }

// AddBlock appends block to the function, or inserts it immediately
// before `before` if non-nil (spec.md §4.3, "AddX(item, before)").
func (f *Func) AddBlock(block *Block, before *Block) {
	block.parent = f
	if before == nil {
		f.blocks = append(f.blocks, block)
		return
	}
	for i, b := range f.blocks {
		if b == before {
			f.blocks = append(f.blocks[:i], append([]*Block{block}, f.blocks[i:]...)...)
			return
		}
	}
	f.blocks = append(f.blocks, block)
}

// RemoveBlock detaches block from the function without destroying it.
func (f *Func) RemoveBlock(block *Block) {
	for i, b := range f.blocks {
		if b == block {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
			block.parent = nil
			return
		}
	}
}

// Successors returns a block's CFG successors by inspecting its
// terminator.
func (b *Block) Successors() []*Block {
	term := b.GetTerminator()
	if term == nil {
		return nil
	}
	switch term.Kind() {
	case OpJmp:
		return []*Block{term.Target()}
	case OpJcc:
		t, f := term.Branches()
		return []*Block{t, f}
	case OpSwitch:
		cases, deflt := term.SwitchCases()
		out := make([]*Block, 0, len(cases)+1)
		for _, c := range cases {
			out = append(out, c.Target)
		}
		return append(out, deflt)
	case OpInvoke:
		out := []*Block{}
		if c := term.Continuation(); c != nil {
			out = append(out, c)
		}
		if l := term.LandingPad(); l != nil {
			out = append(out, l)
		}
		return out
	default:
		return nil
	}
}

// Predecessors returns a block's CFG predecessors, computed by
// scanning every block in the parent function (spec.md §6.4).
func (b *Block) Predecessors() []*Block {
	if b.parent == nil {
		return nil
	}
	var preds []*Block
	for _, other := range b.parent.blocks {
		for _, succ := range other.Successors() {
			if succ == b {
				preds = append(preds, other)
				break
			}
		}
	}
	return preds
}

// IsLandingPad reports whether the block begins with a LandingPad
// marker instruction.
func (b *Block) IsLandingPad() bool {
	return len(b.insts) > 0 && b.insts[0].Kind() == OpLandingPad
}

// GetTerminator returns the block's terminating instruction, or nil
// if the block is empty (only valid as an intermediate construction
// state; a well-formed block always ends in a terminator).
func (b *Block) GetTerminator() *Inst {
	if len(b.insts) == 0 {
		return nil
	}
	last := b.insts[len(b.insts)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// ReversePostOrder returns the function's blocks in reverse
// post-order from the entry block, the deterministic linearization
// codegen uses (spec.md §5).
func (f *Func) ReversePostOrder() []*Block {
	entry := f.Entry()
	if entry == nil {
		return nil
	}
	visited := make(map[*Block]bool)
	var post []*Block
	var visit func(*Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// --- Block ---

// Block is a Global owning an ordered list of Instructions, the last
// of which must be a terminator (spec.md §3.3).
type Block struct {
	globalBase
	parent *Func
	insts  []*Inst
}

// NewBlock creates a detached block; add it to a Func with AddBlock.
func NewBlock(name string, vis types.Visibility) *Block {
	b := &Block{}
	b.name, b.vis = name, vis
	return b
}

func (b *Block) Parent() *Func    { return b.parent }
func (b *Block) Insts() []*Inst   { return append([]*Inst(nil), b.insts...) }
func (b *Block) Size() int        { return len(b.insts) }

// AddInst appends inst to the block, or inserts it immediately before
// `before` if non-nil.
func (b *Block) AddInst(inst *Inst, before *Inst) {
	inst.parent = b
	if before == nil {
		b.insts = append(b.insts, inst)
		return
	}
	for i, it := range b.insts {
		if it == before {
			b.insts = append(b.insts[:i], append([]*Inst{inst}, b.insts[i:]...)...)
			return
		}
	}
	b.insts = append(b.insts, inst)
}

// RemoveInst detaches inst from the block without destroying it.
func (b *Block) RemoveInst(inst *Inst) {
	for i, it := range b.insts {
		if it == inst {
			b.insts = append(b.insts[:i], b.insts[i+1:]...)
			inst.parent = nil
			return
		}
	}
}

// EraseInst detaches and destroys inst. It requires every return
// slot's use-chain to be empty first (spec.md §4.1): callers must
// ReplaceAllUsesWith(undef) beforehand if the value is still used.
func (b *Block) EraseInst(inst *Inst) error {
	for slot := 0; slot < inst.NumReturns(); slot++ {
		if inst.NumUses(slot) > 0 {
			return llerr.In(llerr.InternalInvariant, "", b.Name(),
				"erase of instruction with %d live uses at slot %d", inst.NumUses(slot), slot)
		}
	}
	for idx, op := range inst.operands {
		if list, ok := operandUseSlot(op); ok {
			removeUse(list, inst, idx)
		}
	}
	b.RemoveInst(inst)
	return nil
}

// --- Data / Object / Atom / Item ---

// Data is a named segment owning an ordered list of Objects.
type Data struct {
	name       string
	threadLocal bool
	parent     *Program
	objects    []*Object
}

func (d *Data) Name() string         { return d.name }
func (d *Data) ThreadLocal() bool    { return d.threadLocal }
func (d *Data) SetThreadLocal(b bool) { d.threadLocal = b }
func (d *Data) Parent() *Program     { return d.parent }
func (d *Data) Objects() []*Object   { return append([]*Object(nil), d.objects...) }

func (d *Data) AddObject(o *Object, before *Object) {
	o.parent = d
	if before == nil {
		d.objects = append(d.objects, o)
		return
	}
	for i, ob := range d.objects {
		if ob == before {
			d.objects = append(d.objects[:i], append([]*Object{o}, d.objects[i:]...)...)
			return
		}
	}
	d.objects = append(d.objects, o)
}

// Object owns an ordered list of Atoms.
type Object struct {
	parent *Data
	atoms  []*Atom
}

func (o *Object) Parent() *Data  { return o.parent }
func (o *Object) Atoms() []*Atom { return append([]*Atom(nil), o.atoms...) }

// AddAtom appends a to the object, or inserts it immediately before
// `before` if non-nil, and registers it as a named Global on the
// owning Program (if the object is already attached to one) so that
// GetGlobal/GetGlobalOrExtern can resolve it by name.
func (o *Object) AddAtom(a *Atom, before *Atom) error {
	a.parent = o
	if before == nil {
		o.atoms = append(o.atoms, a)
	} else {
		inserted := false
		for i, at := range o.atoms {
			if at == before {
				o.atoms = append(o.atoms[:i], append([]*Atom{a}, o.atoms[i:]...)...)
				inserted = true
				break
			}
		}
		if !inserted {
			o.atoms = append(o.atoms, a)
		}
	}
	if o.parent != nil && o.parent.parent != nil {
		return o.parent.parent.insertGlobal(a)
	}
	return nil
}

// Atom is a Global: a named, aligned segment of bytes and symbolic
// references (spec.md GLOSSARY).
type Atom struct {
	globalBase
	parent   *Object
	align    uint32
	hasAlign bool
	items    []Item
}

func NewAtom(name string, vis types.Visibility) *Atom {
	a := &Atom{}
	a.name, a.vis = name, vis
	return a
}

func (a *Atom) Parent() *Object          { return a.parent }
func (a *Atom) Alignment() (uint32, bool) { return a.align, a.hasAlign }
func (a *Atom) SetAlignment(v uint32)    { a.align, a.hasAlign = v, true }
func (a *Atom) Items() []Item            { return append([]Item(nil), a.items...) }
func (a *Atom) AddItem(it Item)          { a.items = append(a.items, it) }

// Item is one element of an Atom's byte-and-reference content.
type Item interface{ implItem() }

type ItemInt8 struct{ Value int8 }
type ItemInt16 struct{ Value int16 }
type ItemInt32 struct{ Value int32 }
type ItemInt64 struct{ Value int64 }
type ItemFloat64 struct{ Value float64 }
type ItemAlign struct{ Value uint32 }
type ItemSpace struct{ Size uint32 }
type ItemString struct{ Value string }
type ItemExpr struct{ Expr *SymExpr }

func (ItemInt8) implItem()    {}
func (ItemInt16) implItem()   {}
func (ItemInt32) implItem()   {}
func (ItemInt64) implItem()   {}
func (ItemFloat64) implItem() {}
func (ItemAlign) implItem()   {}
func (ItemSpace) implItem()   {}
func (ItemString) implItem()  {}
func (ItemExpr) implItem()    {}

// --- Extern ---

// Extern is an unresolved symbol reference the linker binds to a
// definition if one exists (spec.md §3.3, GLOSSARY).
type Extern struct {
	globalBase
	parent  *Program
	alias   Global // optional
	section *string
}

func NewExtern(name string) *Extern {
	e := &Extern{}
	e.name, e.vis = name, types.GlobalDefault
	return e
}

func (e *Extern) Parent() *Program { return e.parent }
func (e *Extern) Alias() Global    { return e.alias }
func (e *Extern) SetAlias(g Global) { e.alias = g }
func (e *Extern) Section() (string, bool) {
	if e.section == nil {
		return "", false
	}
	return *e.section, true
}
func (e *Extern) SetSection(s string) { e.section = &s }

// --- Xtor ---

// Xtor is a constructor/destructor record: (kind, priority, function)
// per spec.md §3.2 and GLOSSARY.
type Xtor struct {
	parent   *Program
	priority int32
	kind     types.XtorKind
	fn       *Func
}

func NewXtor(priority int32, kind types.XtorKind, fn *Func) *Xtor {
	return &Xtor{priority: priority, kind: kind, fn: fn}
}

func (x *Xtor) Parent() *Program     { return x.parent }
func (x *Xtor) Priority() int32      { return x.priority }
func (x *Xtor) Kind() types.XtorKind { return x.kind }
func (x *Xtor) Func() *Func          { return x.fn }

// --- Program ---

// Program owns exclusively: Functions, Data segments, Externs, Xtors,
// and a name index mapping each symbol name to its defining global
// (spec.md §3.2). The name-uniqueness invariant of §3.2 is enforced
// on every insertion via insertGlobal's four conflict policies
// (spec.md §4.3).
type Program struct {
	name         string
	funcs        []*Func
	datas        []*Data
	externs      []*Extern
	xtors        []*Xtor
	globals      map[string]Global
	localCounter int
}

// NewProgram creates an empty program with the given name.
func NewProgram(name string) *Program {
	return &Program{name: name, globals: make(map[string]Global)}
}

func (p *Program) Name() string  { return p.name }
func (p *Program) Funcs() []*Func   { return append([]*Func(nil), p.funcs...) }
func (p *Program) Data() []*Data    { return append([]*Data(nil), p.datas...) }
func (p *Program) Externs() []*Extern { return append([]*Extern(nil), p.externs...) }
func (p *Program) Xtor() []*Xtor    { return append([]*Xtor(nil), p.xtors...) }

// Globals returns every global in the name index.
func (p *Program) Globals() []Global {
	out := make([]Global, 0, len(p.globals))
	for _, g := range p.globals {
		out = append(out, g)
	}
	return out
}

// GetGlobal returns the global registered under name, if any.
func (p *Program) GetGlobal(name string) (Global, bool) {
	g, ok := p.globals[name]
	return g, ok
}

// GetGlobalOrExtern returns the global registered under name,
// creating and registering a fresh Extern if none exists yet
// (original_source/core/prog.h's Prog::GetGlobalOrExtern, preserved
// per SPEC_FULL.md §7 — not present in spec.md's distillation).
func (p *Program) GetGlobalOrExtern(name string) Global {
	if g, ok := p.globals[name]; ok {
		return g
	}
	ext := NewExtern(name)
	p.AddExtern(ext, nil)
	return ext
}

// GetExtern returns the Extern registered under name, if the global
// under that name is in fact an Extern.
func (p *Program) GetExtern(name string) (*Extern, bool) {
	g, ok := p.globals[name]
	if !ok {
		return nil, false
	}
	e, ok := g.(*Extern)
	return e, ok
}

// GetData returns the Data segment registered under name, if any.
func (p *Program) GetData(name string) (*Data, bool) {
	for _, d := range p.datas {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// GetOrCreateData returns the Data segment registered under name,
// creating an empty one if none exists.
func (p *Program) GetOrCreateData(name string) *Data {
	if d, ok := p.GetData(name); ok {
		return d
	}
	d := &Data{name: name, parent: p}
	p.datas = append(p.datas, d)
	return d
}

// insertGlobal applies the four name-conflict policies of spec.md
// §4.3 when adding g under its current name.
func (p *Program) insertGlobal(g Global) error {
	name := g.Name()
	existing, ok := p.globals[name]
	if !ok {
		p.globals[name] = g
		return nil
	}
	if ex, isExtern := existing.(*Extern); isExtern {
		replaceAllUsesWith(ex.usesSlot(), GlobalRef{Global: g})
		p.removeExtern(ex)
		p.globals[name] = g
		return nil
	}
	if existing.Visibility().IsWeak() && g.Visibility().IsWeak() {
		// Existing wins; caller's g is not inserted.
		return nil
	}
	existingLocal := existing.Visibility().IsLocal()
	gLocal := g.Visibility().IsLocal()
	if existingLocal != gLocal {
		p.localCounter++
		if existingLocal {
			newName := fmt.Sprintf("%s$local%d", name, p.localCounter)
			existing.SetName(newName)
			p.globals[newName] = existing
			p.globals[name] = g
		} else {
			newName := fmt.Sprintf("%s$local%d", name, p.localCounter)
			g.SetName(newName)
			p.globals[newName] = g
		}
		return nil
	}
	return llerr.New(llerr.DuplicateSymbol, "%q defined twice", name)
}

func (p *Program) removeGlobalName(name string) {
	delete(p.globals, name)
}

// AddFunc appends fn to the program, or inserts it immediately before
// `before` if non-nil.
func (p *Program) AddFunc(fn *Func, before *Func) error {
	if err := p.insertGlobal(fn); err != nil {
		return err
	}
	fn.parent = p
	if before == nil {
		p.funcs = append(p.funcs, fn)
		return nil
	}
	for i, f := range p.funcs {
		if f == before {
			p.funcs = append(p.funcs[:i], append([]*Func{fn}, p.funcs[i:]...)...)
			return nil
		}
	}
	p.funcs = append(p.funcs, fn)
	return nil
}

// RemoveFunc detaches fn without destroying it.
func (p *Program) RemoveFunc(fn *Func) {
	for i, f := range p.funcs {
		if f == fn {
			p.funcs = append(p.funcs[:i], p.funcs[i+1:]...)
			p.removeGlobalName(fn.Name())
			fn.parent = nil
			return
		}
	}
}

// AddExtern appends ext to the program, or inserts it immediately
// before `before` if non-nil.
func (p *Program) AddExtern(ext *Extern, before *Extern) error {
	if err := p.insertGlobal(ext); err != nil {
		return err
	}
	ext.parent = p
	if before == nil {
		p.externs = append(p.externs, ext)
		return nil
	}
	for i, e := range p.externs {
		if e == before {
			p.externs = append(p.externs[:i], append([]*Extern{ext}, p.externs[i:]...)...)
			return nil
		}
	}
	p.externs = append(p.externs, ext)
	return nil
}

func (p *Program) removeExtern(ext *Extern) {
	for i, e := range p.externs {
		if e == ext {
			p.externs = append(p.externs[:i], p.externs[i+1:]...)
			p.removeGlobalName(ext.Name())
			return
		}
	}
}

// EraseExtern removes ext from the program's extern list and name
// index; its use-chain is left as it is. pkg/linker calls it to move
// an unresolved Extern, together with its uses, into the output
// program.
func (p *Program) EraseExtern(ext *Extern) { p.removeExtern(ext) }

// AddData appends data to the program, or inserts it immediately
// before `before` if non-nil.
func (p *Program) AddData(data *Data, before *Data) {
	data.parent = p
	if before == nil {
		p.datas = append(p.datas, data)
		return
	}
	for i, d := range p.datas {
		if d == before {
			p.datas = append(p.datas[:i], append([]*Data{data}, p.datas[i:]...)...)
			return
		}
	}
	p.datas = append(p.datas, data)
}

// RemoveData detaches data without destroying it.
func (p *Program) RemoveData(data *Data) {
	for i, d := range p.datas {
		if d == data {
			p.datas = append(p.datas[:i], p.datas[i+1:]...)
			return
		}
	}
}

// AddXtor appends xtor to the program, or inserts it immediately
// before `before` if non-nil.
func (p *Program) AddXtor(xtor *Xtor, before *Xtor) {
	xtor.parent = p
	if before == nil {
		p.xtors = append(p.xtors, xtor)
		return
	}
	for i, x := range p.xtors {
		if x == before {
			p.xtors = append(p.xtors[:i], append([]*Xtor{xtor}, p.xtors[i:]...)...)
			return
		}
	}
	p.xtors = append(p.xtors, xtor)
}
