// Package capability holds the capability modules compiled into the binary
// and their registration table.
package capability

import (
	"github.com/nerrad567/gray-logic-ua/internal/capability/bdi"
	"github.com/nerrad567/gray-logic-ua/internal/capability/helloworld"
	"github.com/nerrad567/gray-logic-ua/internal/capability/ioports"
	"github.com/nerrad567/gray-logic-ua/internal/capability/simpleevent"
	"github.com/nerrad567/gray-logic-ua/internal/capability/vinput"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

// Logical names of the built-in modules.
const (
	HelloWorld  = "helloworld"
	BDI         = bdi.LogicalName
	IOPorts     = ioports.LogicalName
	VInput      = vinput.LogicalName
	SimpleEvent = simpleevent.LogicalName
)

// Builtins returns the registration table for prefix. Modules are activated
// in table order.
func Builtins(prefix string) []plugin.Builtin {
	return []plugin.Builtin{
		{Name: prefix + HelloWorld, New: func() plugin.Module { return helloworld.New() }},
		{Name: prefix + BDI, New: func() plugin.Module { return bdi.New() }},
		{Name: prefix + IOPorts, New: func() plugin.Module { return ioports.New() }},
		{Name: prefix + VInput, New: func() plugin.Module { return vinput.New() }},
		{Name: prefix + SimpleEvent, New: func() plugin.Module { return simpleevent.New() }},
	}
}

// Names returns the logical names of the built-in modules in table order.
func Names() []string {
	return []string{HelloWorld, BDI, IOPorts, VInput, SimpleEvent}
}
