package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/auth"
)

// nodeResponse is the JSON form of a node's attributes.
type nodeResponse struct {
	ID              string                   `json:"id"`
	Class           string                   `json:"class"`
	BrowseName      string                   `json:"browse_name"`
	DisplayName     addrspace.LocalizedText  `json:"display_name"`
	Description     *addrspace.LocalizedText `json:"description,omitempty"`
	TypeDefinition  string                   `json:"type_definition,omitempty"`
	DataType        string                   `json:"data_type,omitempty"`
	Access          *accessResponse          `json:"access,omitempty"`
	EventNotifier   bool                     `json:"subscribe_to_events,omitempty"`
	Abstract        bool                     `json:"abstract,omitempty"`
	InputArguments  []argumentResponse       `json:"input_arguments,omitempty"`
	OutputArguments []argumentResponse       `json:"output_arguments,omitempty"`
}

type accessResponse struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

type argumentResponse struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Description string `json:"description,omitempty"`
}

// referenceResponse is one browse result.
type referenceResponse struct {
	ReferenceType  string `json:"reference_type"`
	IsForward      bool   `json:"is_forward"`
	Target         string `json:"target"`
	BrowseName     string `json:"browse_name"`
	DisplayName    string `json:"display_name"`
	Class          string `json:"class"`
	TypeDefinition string `json:"type_definition,omitempty"`
}

type writeRequest struct {
	Value json.RawMessage `json:"value"`
}

type callRequest struct {
	Arguments []any `json:"arguments"`
}

func toNodeResponse(info addrspace.NodeInfo) nodeResponse {
	out := nodeResponse{
		ID:              info.ID.String(),
		Class:           info.Class.String(),
		BrowseName:      info.BrowseName.String(),
		DisplayName:     info.DisplayName,
		EventNotifier:   info.EventNotifier&addrspace.SubscribeToEvents != 0,
		Abstract:        info.Abstract,
		InputArguments:  toArguments(info.InputArguments),
		OutputArguments: toArguments(info.OutputArgs),
	}
	if info.Description.Text != "" {
		d := info.Description
		out.Description = &d
	}
	if !info.TypeDefinition.IsNull() {
		out.TypeDefinition = info.TypeDefinition.String()
	}
	if info.Class == addrspace.ClassVariable {
		out.DataType = info.DataType.String()
		out.Access = &accessResponse{
			Read:  info.AccessLevel&addrspace.AccessRead != 0,
			Write: info.AccessLevel&addrspace.AccessWrite != 0,
		}
	}
	return out
}

func toArguments(args []addrspace.Argument) []argumentResponse {
	if len(args) == 0 {
		return nil
	}
	out := make([]argumentResponse, len(args))
	for i, a := range args {
		out[i] = argumentResponse{Name: a.Name, DataType: a.DataType.String(), Description: a.Description}
	}
	return out
}

// nodeParam parses a path parameter in "ns=1;i=42" notation.
// Writes a 400 response and returns false when it is malformed.
func nodeParam(w http.ResponseWriter, r *http.Request, name string) (addrspace.NodeID, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, "malformed "+name+" parameter")
		return addrspace.NodeID{}, false
	}
	id, err := addrspace.ParseNodeID(raw)
	if err != nil {
		writeBadRequest(w, "invalid node id: "+raw)
		return addrspace.NodeID{}, false
	}
	return id, true
}

// handleGetNode returns a node's attributes.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r, "id")
	if !ok {
		return
	}
	info, err := s.nodes.Node(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNodeResponse(info))
}

// handleBrowse returns a node's forward and inverse references.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r, "id")
	if !ok {
		return
	}
	refs, err := s.nodes.Browse(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	out := make([]referenceResponse, 0, len(refs))
	for _, ref := range refs {
		rr := referenceResponse{
			ReferenceType: ref.ReferenceType.String(),
			IsForward:     ref.IsForward,
			Target:        ref.Target.String(),
			BrowseName:    ref.BrowseName.String(),
			DisplayName:   ref.DisplayName.Text,
			Class:         ref.NodeClass.String(),
		}
		if !ref.TypeDefinition.IsNull() {
			rr.TypeDefinition = ref.TypeDefinition.String()
		}
		out = append(out, rr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         id.String(),
		"references": out,
		"count":      len(out),
	})
}

// handleReadValue reads a variable, going to the device when it has a data source.
func (s *Server) handleReadValue(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r, "id")
	if !ok {
		return
	}
	v, err := s.nodes.Read(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    id.String(),
		"value": v,
	})
}

// handleWriteValue writes a variable. The body is {"value": ...}.
func (s *Server) handleWriteValue(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r, "id")
	if !ok {
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}
	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeBadRequest(w, "invalid value")
		return
	}

	if err := s.nodes.Write(r.Context(), id, value); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("node written",
		"node", id.String(),
		"subject", subject(r),
		"request_id", reqID(r),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleCallMethod calls a method on an object. The body is
// {"arguments": [...]} and may be omitted for methods without input.
func (s *Server) handleCallMethod(w http.ResponseWriter, r *http.Request) {
	object, ok := nodeParam(w, r, "id")
	if !ok {
		return
	}
	method, ok := nodeParam(w, r, "method")
	if !ok {
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	out, err := s.nodes.Call(r.Context(), object, method, req.Arguments)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("method called",
		"object", object.String(),
		"method", method.String(),
		"subject", subject(r),
		"request_id", reqID(r),
	)
	if out == nil {
		out = []any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outputs": out,
	})
}

// subject returns the token subject stored by requirePermission.
func subject(r *http.Request) string {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		return c.Subject
	}
	return ""
}
