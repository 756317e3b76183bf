package lua

import (
	"context"
	"errors"
	"fmt"
	"math"

	glua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

// script is one loaded Lua module. A Lua state is not goroutine-safe; all
// calls happen on the startup and shutdown goroutine.
type script struct {
	name string
	L    *glua.LState

	host     plugin.Host
	builder  *graph.Builder
	manifest *graph.Manifest

	constructed bool
	display     string
}

// Construct runs the script's create function inside a guarded builder.
func (s *script) Construct(ctx context.Context, h plugin.Host) (err error) {
	if s.constructed {
		return nil
	}

	b := graph.Begin(h.Engine)
	defer func() { err = plugin.Finish(b, err) }()

	s.host = h
	s.builder = b
	defer func() { s.builder = nil }()

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	registerUA(s.L, s)

	if err := s.call(fnCreate); err != nil {
		return err
	}
	display, err := s.callString(fnName)
	if err != nil {
		return err
	}

	m, err := b.Commit()
	if err != nil {
		return err
	}
	s.manifest = m
	s.display = display
	s.constructed = true
	return nil
}

// Destruct runs destroy and removes the script's subtree.
func (s *script) Destruct() error {
	if !s.constructed {
		return nil
	}
	s.constructed = false

	var errs []error
	if err := s.call(fnDestroy); err != nil {
		errs = append(errs, err)
	}
	if err := s.manifest.Teardown(s.host.Engine); err != nil {
		errs = append(errs, fmt.Errorf("teardown: %w", err))
	}
	s.manifest = nil
	return errors.Join(errs...)
}

// Name returns the name reported by plugin_name at construction.
func (s *script) Name() string {
	if !s.constructed {
		return plugin.NotInitialized(s.name)
	}
	return s.display
}

// Close releases the Lua state.
func (s *script) Close() error {
	s.L.Close()
	return nil
}

func (s *script) call(fn string) error {
	if err := s.L.CallByParam(glua.P{
		Fn:      s.L.GetGlobal(fn),
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

func (s *script) callString(fn string) (string, error) {
	if err := s.L.CallByParam(glua.P{
		Fn:      s.L.GetGlobal(fn),
		NRet:    1,
		Protect: true,
	}); err != nil {
		return "", fmt.Errorf("%s: %w", fn, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	str, ok := ret.(glua.LString)
	if !ok {
		return "", fmt.Errorf("%s: returned %s, want string", fn, ret.Type())
	}
	return string(str), nil
}

// registerUA installs the `ua` global table.
func registerUA(L *glua.LState, s *script) {
	mod := L.NewTable()

	mod.RawSetString("OBJECTS", glua.LString(addrspace.ObjectsFolder.String()))

	mod.RawSetString("namespace", L.NewFunction(func(L *glua.LState) int {
		uri := L.CheckString(1)
		idx := s.host.Engine.AddNamespace(uri)
		L.Push(glua.LNumber(idx))
		return 1
	}))

	mod.RawSetString("add_object", L.NewFunction(func(L *glua.LState) int {
		return uaAddObject(L, s)
	}))

	mod.RawSetString("add_variable", L.NewFunction(func(L *glua.LState) int {
		return uaAddVariable(L, s)
	}))

	mod.RawSetString("add_reference", L.NewFunction(func(L *glua.LState) int {
		return uaAddReference(L, s)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *glua.LState) int {
		level := L.CheckString(1)
		msg := L.CheckString(2)
		logger := s.host.Logger
		if logger == nil {
			return 0
		}
		switch level {
		case "debug":
			logger.Debug(msg, "script", s.name)
		case "warn":
			logger.Warn(msg, "script", s.name)
		case "error":
			logger.Error(msg, "script", s.name)
		default:
			logger.Info(msg, "script", s.name)
		}
		return 0
	}))

	L.SetGlobal("ua", mod)
}

func (s *script) requireBuilder(L *glua.LState, fn string) *graph.Builder {
	if s.builder == nil {
		L.RaiseError("ua.%s is only available during create", fn)
	}
	return s.builder
}

// nodeArg parses a node id string field of a table argument.
func nodeArg(L *glua.LState, t *glua.LTable, key string, def addrspace.NodeID) addrspace.NodeID {
	v := t.RawGetString(key)
	if v == glua.LNil {
		return def
	}
	id, err := addrspace.ParseNodeID(v.String())
	if err != nil {
		L.RaiseError("%s: %v", key, err)
	}
	return id
}

// nsArg reads the ns field as a namespace index.
func nsArg(L *glua.LState, t *glua.LTable) uint16 {
	n, ok := t.RawGetString("ns").(glua.LNumber)
	if !ok || n < 0 || n > math.MaxUint16 {
		L.RaiseError("ns must be a namespace index")
	}
	return uint16(n)
}

// requestedID reads the optional numeric id field.
func requestedID(L *glua.LState, t *glua.LTable, ns uint16) addrspace.NodeID {
	n, ok := t.RawGetString("id").(glua.LNumber)
	if !ok {
		return addrspace.NullNodeID
	}
	if n <= 0 || n > math.MaxUint32 {
		L.RaiseError("id out of range")
	}
	return addrspace.NumericID(ns, uint32(n))
}

// stringField reads a string field; required fields raise when absent.
func stringField(L *glua.LState, t *glua.LTable, key string, required bool) string {
	v := t.RawGetString(key)
	if v == glua.LNil {
		if required {
			L.RaiseError("%s is required", key)
		}
		return ""
	}
	str, ok := v.(glua.LString)
	if !ok {
		L.RaiseError("%s must be a string", key)
	}
	return string(str)
}

// ua.add_object{parent=, ns=, name=, id=, description=} -> node id
func uaAddObject(L *glua.LState, s *script) int {
	b := s.requireBuilder(L, "add_object")
	t := L.CheckTable(1)
	ns := nsArg(L, t)

	id, err := b.AddObject(addrspace.ObjectNode{
		RequestedID: requestedID(L, t, ns),
		Parent:      nodeArg(L, t, "parent", addrspace.ObjectsFolder),
		BrowseName:  addrspace.QualifiedName{Namespace: ns, Name: stringField(L, t, "name", true)},
		Description: stringField(L, t, "description", false),
	})
	if err != nil {
		L.RaiseError("add_object: %v", err)
	}
	L.Push(glua.LString(id.String()))
	return 1
}

var luaDataTypes = map[string]addrspace.NodeID{
	"boolean": addrspace.BooleanType,
	"int32":   addrspace.Int32Type,
	"uint32":  addrspace.UInt32Type,
	"string":  addrspace.StringType,
}

// variableValue converts a Lua value to the Go value for dataType.
func variableValue(L *glua.LState, dataType string, v glua.LValue) any {
	switch dataType {
	case "boolean":
		return glua.LVAsBool(v)
	case "string":
		if v == glua.LNil {
			return ""
		}
		return v.String()
	case "int32":
		n, ok := v.(glua.LNumber)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			L.RaiseError("value must be an int32")
		}
		return int32(n)
	case "uint32":
		n, ok := v.(glua.LNumber)
		if !ok || n < 0 || n > math.MaxUint32 {
			L.RaiseError("value must be a uint32")
		}
		return uint32(n)
	}
	return nil
}

// ua.add_variable{parent=, ns=, name=, id=, type=, value=, writable=} -> node id
func uaAddVariable(L *glua.LState, s *script) int {
	b := s.requireBuilder(L, "add_variable")
	t := L.CheckTable(1)
	ns := nsArg(L, t)

	typeName := stringField(L, t, "type", true)
	dataType, ok := luaDataTypes[typeName]
	if !ok {
		L.RaiseError("unsupported type %q", typeName)
	}

	access := addrspace.AccessRead
	if glua.LVAsBool(t.RawGetString("writable")) {
		access = addrspace.AccessReadWrite
	}

	id, err := b.AddVariable(addrspace.VariableNode{
		RequestedID: requestedID(L, t, ns),
		Parent:      nodeArg(L, t, "parent", addrspace.ObjectsFolder),
		BrowseName:  addrspace.QualifiedName{Namespace: ns, Name: stringField(L, t, "name", true)},
		Description: stringField(L, t, "description", false),
		DataType:    dataType,
		Value:       variableValue(L, typeName, t.RawGetString("value")),
		AccessLevel: access,
	})
	if err != nil {
		L.RaiseError("add_variable: %v", err)
	}
	L.Push(glua.LString(id.String()))
	return 1
}

var luaReferenceTypes = map[string]addrspace.NodeID{
	"organizes":    addrspace.Organizes,
	"component":    addrspace.HasComponent,
	"property":     addrspace.HasProperty,
	"event_source": addrspace.HasEventSource,
	"notifier":     addrspace.HasNotifier,
}

// ua.add_reference(source, kind, target)
func uaAddReference(L *glua.LState, s *script) int {
	b := s.requireBuilder(L, "add_reference")
	source, err := addrspace.ParseNodeID(L.CheckString(1))
	if err != nil {
		L.RaiseError("source: %v", err)
	}
	kind := L.CheckString(2)
	refType, ok := luaReferenceTypes[kind]
	if !ok {
		L.RaiseError("unsupported reference kind %q", kind)
	}
	target, err := addrspace.ParseNodeID(L.CheckString(3))
	if err != nil {
		L.RaiseError("target: %v", err)
	}

	if err := b.AddReference(addrspace.Reference{Source: source, Type: refType, Target: target}); err != nil {
		L.RaiseError("add_reference: %v", err)
	}
	return 0
}
