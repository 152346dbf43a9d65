// Package linker implements the whole-program symbol resolution and
// transfer-closure pass of spec.md §4.5, grounded structurally on
// _examples/wippyai-wasm-runtime/linker's package-level logger idiom
// and original_source/tools/llir-ld's load/define/transfer staging.
package linker

import (
	"encoding/binary"
	"strconv"

	"go.uber.org/zap"

	"github.com/nandor-llir/llir/pkg/bitcode"
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/llerr"
	"github.com/nandor-llir/llir/pkg/types"
)

// Input is one buffer handed to the linker: a LLIR object, a LLIR
// archive, or something else entirely (recorded as an unresolved
// external input for a system linker to handle).
type Input struct {
	Name string
	Data []byte
}

// Options configures a Linker.
type Options struct {
	// EntryName is the symbol the transfer closure starts from.
	// Defaults to "_start".
	EntryName string
	// SearchPaths and Libraries name a system-linker library search,
	// recorded but not resolved by this core (spec.md §4.5 step 1).
	SearchPaths []string
	Libraries   []string
}

// Linker runs the six-step pipeline of spec.md §4.5 over a set of
// loaded LLIR modules.
type Linker struct {
	opts Options
}

// New creates a Linker with the given options, defaulting EntryName
// to "_start" when empty.
func New(opts Options) *Linker {
	if opts.EntryName == "" {
		opts.EntryName = "_start"
	}
	return &Linker{opts: opts}
}

// Link runs Load, Define, FindEntry, Transfer, and SetVisibilities in
// sequence and returns the finished output program. Dead globals (not
// reached from the entry closure) are dropped because Transfer only
// ever moves what it reaches.
func (l *Linker) Link(inputs []Input) (*ir.Program, error) {
	modules, unresolved, err := l.Load(inputs)
	if err != nil {
		return nil, err
	}
	for _, name := range unresolved {
		Logger().Info("unresolved external input, deferred to system linker", zap.String("input", name))
	}

	defs, err := l.Define(modules)
	if err != nil {
		return nil, err
	}
	Logger().Debug("defined symbols", zap.Int("count", len(defs)))

	entry, err := l.FindEntry(defs)
	if err != nil {
		return nil, err
	}

	output := ir.NewProgram("a.out")
	if err := l.Transfer(output, defs, entry); err != nil {
		return nil, err
	}
	l.SetVisibilities(output, entry)
	return output, nil
}

// Load decodes every input buffer into an in-memory program. An
// archive is expanded into one program per member. A buffer matching
// neither the object nor the archive magic is recorded by name in
// unresolved rather than treated as an error (spec.md §4.5 step 1).
func (l *Linker) Load(inputs []Input) (modules []*ir.Program, unresolved []string, err error) {
	for _, in := range inputs {
		if len(in.Data) < 4 {
			unresolved = append(unresolved, in.Name)
			continue
		}
		switch binary.LittleEndian.Uint32(in.Data[:4]) {
		case bitcode.ObjectMagic:
			prog, err := bitcode.Read(in.Data)
			if err != nil {
				return nil, nil, err
			}
			modules = append(modules, prog)
		case bitcode.ArchiveMagic:
			members, err := bitcode.ReadArchive(in.Data)
			if err != nil {
				return nil, nil, err
			}
			for _, m := range members {
				prog, err := bitcode.Read(m)
				if err != nil {
					return nil, nil, err
				}
				modules = append(modules, prog)
			}
		default:
			unresolved = append(unresolved, in.Name)
		}
	}
	Logger().Debug("loaded inputs", zap.Int("modules", len(modules)), zap.Int("unresolved", len(unresolved)))
	return modules, unresolved, nil
}

// Define walks every loaded module and registers each Func and Atom
// in a defs map keyed by name (spec.md §4.5 step 2). A Local-visibility
// definition never collides with a same-named definition in another
// module (Local restricts the symbol to its defining module, spec.md
// §3.3), so it is keyed under a module-qualified name instead. Two
// non-weak, non-local definitions of the same name is fatal; a weak
// definition yields to a non-weak one and two weak definitions keep
// whichever was seen first.
func (l *Linker) Define(modules []*ir.Program) (map[string]ir.Global, error) {
	defs := make(map[string]ir.Global)
	for modIdx, m := range modules {
		for _, fn := range m.Funcs() {
			if err := define(defs, fn, modIdx); err != nil {
				return nil, err
			}
		}
		for _, d := range m.Data() {
			for _, o := range d.Objects() {
				for _, a := range o.Atoms() {
					if err := define(defs, a, modIdx); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return defs, nil
}

func define(defs map[string]ir.Global, g ir.Global, modIdx int) error {
	name := g.Name()
	if g.Visibility().IsLocal() {
		defs[localKey(name, modIdx)] = g
		return nil
	}
	existing, ok := defs[name]
	if !ok {
		defs[name] = g
		return nil
	}
	switch {
	case existing.Visibility().IsWeak() && g.Visibility().IsWeak():
		return nil
	case existing.Visibility().IsWeak():
		defs[name] = g
		return nil
	case g.Visibility().IsWeak():
		return nil
	default:
		return llerr.New(llerr.DuplicateSymbol, "%q defined twice", name)
	}
}

func localKey(name string, modIdx int) string {
	return name + "$local" + strconv.Itoa(modIdx)
}

// FindEntry looks up the entry-point name in defs, failing fatally if
// no loaded module defines it (spec.md §4.5 step 3).
func (l *Linker) FindEntry(defs map[string]ir.Global) (ir.Global, error) {
	entry, ok := defs[l.opts.EntryName]
	if !ok {
		return nil, llerr.New(llerr.MissingEntry, "entry point %q not defined in any loaded module", l.opts.EntryName)
	}
	return entry, nil
}

// resolveGlobal maps an Extern, or a weak definition, to the
// definition defs holds under its name (for a weak definition that
// lost in Define, the winning one), leaving every other Global
// (including an Extern with no matching definition anywhere)
// unchanged.
func resolveGlobal(defs map[string]ir.Global, g ir.Global) ir.Global {
	if g == nil {
		return nil
	}
	if g.Visibility().IsWeak() {
		if winner, ok := defs[g.Name()]; ok {
			return winner
		}
		return g
	}
	ext, ok := g.(*ir.Extern)
	if !ok {
		return g
	}
	if real, ok := defs[ext.Name()]; ok {
		return real
	}
	return g
}

// Transfer moves entry, then recursively every global transitively
// referenced by its instructions' operands and every Atom referenced
// by a data item, into output (spec.md §4.5 step 4). An Extern
// operand is resolved against defs first (step 5): when a real
// definition exists, the consuming instruction is rewritten to refer
// to it directly instead of transferring the Extern placeholder;
// otherwise the Extern itself is transferred, landing in output as an
// unresolved symbol. Every Xtor whose function is reachable this way
// is carried over too, since a constructor/destructor runs
// unconditionally at load time rather than being called from entry.
func (l *Linker) Transfer(output *ir.Program, defs map[string]ir.Global, entry ir.Global) error {
	// Snapshot the distinct home modules before the loop below starts
	// reparenting Funcs onto output; RemoveFunc/AddFunc overwrite a
	// transferred Func's Parent(), so this must run first.
	homes := modulesOf(defs)

	visited := make(map[ir.Global]bool)
	queue := []ir.Global{entry}

	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		g = resolveGlobal(defs, g)
		if g == nil || visited[g] {
			continue
		}
		visited[g] = true

		switch v := g.(type) {
		case *ir.Func:
			if err := transferFunc(output, defs, v, &queue); err != nil {
				return err
			}
		case *ir.Atom:
			if err := transferAtom(output, defs, v, &queue); err != nil {
				return err
			}
		case *ir.Extern:
			if err := transferExtern(output, v); err != nil {
				return err
			}
			if alias := v.Alias(); alias != nil {
				queue = append(queue, alias)
			}
		}
	}

	for _, home := range homes {
		for _, xtor := range home.Xtor() {
			if !visited[xtor.Func()] {
				continue
			}
			output.AddXtor(ir.NewXtor(xtor.Priority(), xtor.Kind(), xtor.Func()), nil)
		}
	}

	Logger().Debug("transfer closure complete",
		zap.Int("funcs", len(output.Funcs())),
		zap.Int("externs", len(output.Externs())),
		zap.Int("data segments", len(output.Data())))
	return nil
}

// modulesOf returns the distinct home programs still reachable from
// defs' func entries, used only to walk each module's Xtor list once.
func modulesOf(defs map[string]ir.Global) []*ir.Program {
	seen := make(map[*ir.Program]bool)
	var out []*ir.Program
	for _, g := range defs {
		fn, ok := g.(*ir.Func)
		if !ok {
			continue
		}
		home := fn.Parent()
		if home == nil || seen[home] {
			continue
		}
		seen[home] = true
		out = append(out, home)
	}
	return out
}

func transferFunc(output *ir.Program, defs map[string]ir.Global, fn *ir.Func, queue *[]ir.Global) error {
	if home := fn.Parent(); home != nil {
		home.RemoveFunc(fn)
	}
	if err := output.AddFunc(fn, nil); err != nil {
		return err
	}
	if p := fn.Personality(); p != nil {
		resolved := resolveGlobal(defs, p)
		fn.SetPersonality(resolved)
		*queue = append(*queue, resolved)
	}
	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			resolveInstOperands(defs, inst, queue)
		}
	}
	return nil
}

// resolveInstOperands rewrites every GlobalRef/ExprRef operand that
// names an Extern with a real definition to point at that definition
// directly, then enqueues whatever it now points at for transfer.
func resolveInstOperands(defs map[string]ir.Global, inst *ir.Inst, queue *[]ir.Global) {
	for idx, op := range inst.Operands() {
		switch o := op.(type) {
		case ir.GlobalRef:
			resolved := resolveGlobal(defs, o.Global)
			if resolved != o.Global {
				inst.SetOperand(idx, ir.GlobalRef{Global: resolved})
			}
			*queue = append(*queue, resolved)
		case ir.ExprRef:
			resolved := resolveGlobal(defs, o.Expr.Symbol)
			o.Expr.Symbol = resolved
			*queue = append(*queue, resolved)
		}
	}
}

func transferAtom(output *ir.Program, defs map[string]ir.Global, a *ir.Atom, queue *[]ir.Global) error {
	srcData := a.Parent().Parent()
	outData := output.GetOrCreateData(srcData.Name())
	outData.SetThreadLocal(srcData.ThreadLocal())
	obj := &ir.Object{}
	outData.AddObject(obj, nil)
	if err := obj.AddAtom(a, nil); err != nil {
		return err
	}
	for _, it := range a.Items() {
		expr, ok := it.(ir.ItemExpr)
		if !ok {
			continue
		}
		resolved := resolveGlobal(defs, expr.Expr.Symbol)
		expr.Expr.Symbol = resolved
		*queue = append(*queue, resolved)
	}
	return nil
}

func transferExtern(output *ir.Program, ext *ir.Extern) error {
	if home := ext.Parent(); home != nil {
		home.EraseExtern(ext)
	}
	return output.AddExtern(ext, nil)
}

// SetVisibilities marks the entry function global_default and every
// other transferred Func global_hidden (spec.md §4.5 step 6).
func (l *Linker) SetVisibilities(output *ir.Program, entry ir.Global) {
	entry.SetVisibility(types.GlobalDefault)
	for _, fn := range output.Funcs() {
		if ir.Global(fn) == entry {
			continue
		}
		fn.SetVisibility(types.GlobalHidden)
	}
}
