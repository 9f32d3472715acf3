package extension

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/x"
)

// Import pairs a package alias with its full path so that workflow
// definitions can reference types by short name.
type Import struct {
	Package string
	PkgPath string
}

type Imports []*Import

// PkgPath resolves a package alias to its full path.
func (i Imports) PkgPath(pkg string) string {
	for _, candidate := range i {
		if candidate.Package == pkg {
			return candidate.PkgPath
		}
	}
	return ""
}

// HasPkgPath reports whether the path is already registered.
func (i Imports) HasPkgPath(pkgPath string) bool {
	for _, candidate := range i {
		if candidate.PkgPath == pkgPath {
			return true
		}
	}
	return false
}

type Types struct {
	x.Registry
	imports Imports
}

// Register adds a data type to the registry
func (t *Types) Register(dataType *x.Type) {
	if dataType.PkgPath != "" {
		if idx := strings.LastIndex(dataType.PkgPath, "/"); idx > 0 {
			pkgPath := dataType.PkgPath[:idx]
			if !t.imports.HasPkgPath(pkgPath) {
				t.imports = append(t.imports, &Import{Package: dataType.PkgPath[idx+1:], PkgPath: dataType.PkgPath})
			}
		}
	}
	t.Registry.Register(dataType)
}

// Lookup returns a data type from the registry
func (t *Types) Lookup(dataType string, options ...Option) *x.Type {
	temp := &Types{imports: t.imports}
	for _, opt := range options {
		opt(temp)
	}

	typeModifier := ""
	if idx := strings.LastIndex(dataType, "]"); idx != -1 {
		typeModifier = dataType[:idx+1]
		dataType = dataType[idx+1:]
	}

	if idx := strings.LastIndex(dataType, "."); idx != -1 {
		var pkg, typeName string
		pkg = dataType[:idx]
		typeName = dataType[idx+1:]
		if pkgPath := temp.imports.PkgPath(pkg); pkgPath != "" {
			pkg = pkgPath
		}
		dataType = fmt.Sprintf("%s.%s", pkg, typeName)
	}
	ret := t.Registry.Lookup(dataType)
	if ret == nil {
		return nil
	}
	rType := ret.Type

	switch strings.TrimSpace(typeModifier) {
	case "[]":
		rType = reflect.SliceOf(rType)
	case "[][]":
		rType = reflect.SliceOf(reflect.SliceOf(rType))
	case "map[string]":
		rType = reflect.MapOf(reflect.TypeOf(""), rType)
	case "map[string][]":
		rType = reflect.MapOf(reflect.TypeOf(""), reflect.SliceOf(rType))
	}
	if rType != ret.Type {
		return x.NewType(rType)
	}
	return ret
}

// Imports returns the registered package aliases.
func (t *Types) Imports() Imports {
	return t.imports
}

// NewTypes creates a new types
func NewTypes(options ...x.RegistryOption) *Types {
	result := &Types{
		Registry: *x.NewRegistry(options...),
	}
	return result
}
