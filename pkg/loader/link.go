package loader

import (
	"github.com/flubbe/slang/pkg/bytecode"
	"github.com/flubbe/slang/pkg/compiler"
	"github.com/flubbe/slang/pkg/vm"
)

// link binds every loaded module's external references: imported
// function calls to exporter entries, native declarations to registry
// callbacks, and re-exported constants back to their origin's value.
func (s *Session) link() (*vm.Program, error) {
	prog := &vm.Program{Modules: make([]*vm.LinkedModule, len(s.order))}

	for _, lm := range s.order {
		linked := &vm.LinkedModule{M: lm.mod}

		for _, ref := range lm.mod.FuncRefs {
			target, err := s.bindFuncRef(lm, ref)
			if err != nil {
				return nil, err
			}
			linked.FuncBindings = append(linked.FuncBindings, target)
		}

		for _, nd := range lm.mod.Natives {
			fn, err := s.bindNative(lm, nd)
			if err != nil {
				return nil, err
			}
			linked.NativeBindings = append(linked.NativeBindings, fn)
		}

		if err := s.verifyConsts(lm); err != nil {
			return nil, err
		}

		prog.Modules[lm.index] = linked
	}
	return prog, nil
}

func (s *Session) bindFuncRef(lm *loadedModule, ref bytecode.FuncRef) (vm.FuncID, error) {
	exPath := lm.mod.Imports[ref.ImportIndex].Path
	exporter, ok := s.modules[exPath]
	if !ok {
		return vm.FuncID{}, linkErrorf(UnresolvedImport, lm.path, "imported module %s is not loaded", exPath)
	}
	for _, ex := range exporter.mod.ExportedFuncs {
		if ex.Name != ref.Name {
			continue
		}
		if ex.Native {
			return vm.FuncID{}, linkErrorf(UnresolvedImport, lm.path,
				"%s::%s is native now; recompile against the current exporter", exPath, ref.Name)
		}
		if !typeRefsEqual(ex.Params, ref.Params) || !ex.Ret.Equal(ref.Ret) {
			return vm.FuncID{}, linkErrorf(UnresolvedImport, lm.path,
				"%s::%s signature changed; recompile against the current exporter", exPath, ref.Name)
		}
		return vm.FuncID{Module: exporter.index, Func: int(ex.Index)}, nil
	}
	return vm.FuncID{}, linkErrorf(UnresolvedImport, lm.path, "%s exports no function %q", exPath, ref.Name)
}

func (s *Session) bindNative(lm *loadedModule, nd bytecode.NativeDesc) (vm.NativeFunc, error) {
	params, ret, fn, ok := s.registry.Lookup(nd.Lib, nd.Name)
	if !ok {
		return nil, linkErrorf(NativeSignatureMismatch, lm.path,
			"no host function %s::%s registered", nd.Lib, nd.Name)
	}
	if !typeRefsEqual(params, nd.Params) || !ret.Equal(nd.Ret) {
		return nil, linkErrorf(NativeSignatureMismatch, lm.path,
			"%s::%s declared %s but host registers %s",
			nd.Lib, nd.Name, signature(nd.Params, nd.Ret), signature(params, ret))
	}
	return fn, nil
}

// verifyConsts checks every re-exported constant against the value the
// origin module declares. Two modules disagreeing on a shared constant
// means one of them linked against a stale exporter.
func (s *Session) verifyConsts(lm *loadedModule) error {
	for _, ec := range lm.mod.ExportedConsts {
		if ec.OriginModule == "" {
			continue
		}
		origin, ok := s.modules[ec.OriginModule]
		if !ok {
			continue
		}
		for _, oc := range origin.mod.ExportedConsts {
			if oc.Name != ec.OriginName {
				continue
			}
			if !oc.Value.Equal(ec.Value) {
				return &compiler.TypeError{
					Code:   compiler.ConstMismatch,
					Detail: formatConstMismatch(lm.path, ec, origin.path, oc),
				}
			}
			break
		}
	}
	return nil
}

func formatConstMismatch(importer string, ec bytecode.ConstExport, origin string, oc bytecode.ConstExport) string {
	return importer + " re-exports " + ec.Name + " as " + ec.Value.String() +
		" but " + origin + " declares " + oc.Name + " = " + oc.Value.String()
}

func typeRefsEqual(a, b []bytecode.TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func signature(params []bytecode.TypeRef, ret bytecode.TypeRef) string {
	sig := "("
	for i, p := range params {
		if i > 0 {
			sig += ", "
		}
		sig += p.String()
	}
	return sig + ") -> " + ret.String()
}
