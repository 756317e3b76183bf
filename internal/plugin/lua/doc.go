// Package lua loads capability modules written as Lua scripts.
//
// A script named "<prefix><name>.lua" in the module directory must define
// three global functions:
//
//	function plugin_name() return "opc-example-plugin" end
//	function create()
//	    local ns  = ua.namespace("http://example.com/OpcUA/Example/")
//	    local obj = ua.add_object{parent = ua.OBJECTS, ns = ns, name = "Example"}
//	    ua.add_variable{parent = obj, ns = ns, name = "Greeting",
//	                    type = "string", value = "hi", writable = false}
//	end
//	function destroy() end
//
// create runs inside a graph.Builder, so an error raised from it removes
// every node the script created. Scripts run in a sandbox without the os,
// io, package and debug libraries and without file loading.
package lua
