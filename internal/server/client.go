package server

import (
	"context"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

// Read returns the value of a variable.
func (s *Server) Read(ctx context.Context, id addrspace.NodeID) (any, error) {
	var out any
	err := s.Do(ctx, func(e addrspace.Engine) error {
		v, err := e.Read(ctx, id)
		out = v
		return err
	})
	return out, err
}

// Write coerces value to the variable's data type and writes it.
// Values decoded from JSON arrive as float64 and are narrowed here.
func (s *Server) Write(ctx context.Context, id addrspace.NodeID, value any) error {
	return s.Do(ctx, func(e addrspace.Engine) error {
		v, err := e.CoerceValue(id, value)
		if err != nil {
			return err
		}
		return e.Write(ctx, id, v)
	})
}

// Call coerces the input arguments and invokes method on object.
func (s *Server) Call(ctx context.Context, object, method addrspace.NodeID, input []any) ([]any, error) {
	var out []any
	err := s.Do(ctx, func(e addrspace.Engine) error {
		args, err := e.CoerceArguments(method, input)
		if err != nil {
			return err
		}
		out, err = e.Call(ctx, object, method, args)
		return err
	})
	return out, err
}

// Browse returns the references of a node.
func (s *Server) Browse(ctx context.Context, id addrspace.NodeID) ([]addrspace.ReferenceDescription, error) {
	var out []addrspace.ReferenceDescription
	err := s.Do(ctx, func(e addrspace.Engine) error {
		refs, err := e.Browse(id)
		out = refs
		return err
	})
	return out, err
}

// Node returns a snapshot of a node's attributes.
func (s *Server) Node(ctx context.Context, id addrspace.NodeID) (addrspace.NodeInfo, error) {
	var out addrspace.NodeInfo
	err := s.Do(ctx, func(e addrspace.Engine) error {
		info, err := e.Node(id)
		out = info
		return err
	})
	return out, err
}
