package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/gaganchapa/daggr/pkg/daggr"
	"github.com/gaganchapa/daggr/pkg/daggr/history"
)

const maxBodySize = 1 << 20 // 1MB

// portID formats the wire id for a port. The double underscore keeps node
// and port recoverable on the client side; node names cannot contain it
// ambiguously because splitPortID cuts on the first occurrence.
func portID(node, port string) string {
	return node + "__" + port
}

// splitPortID is the inverse of portID. The second return is empty for a
// bare node id, which call bodies may use to target the default input.
func splitPortID(id string) (node, port string) {
	node, port, _ = strings.Cut(id, "__")
	return node, port
}

type componentJSON struct {
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
	Value any    `json:"value,omitempty"`
}

type portJSON struct {
	ID        string         `json:"id"`
	Port      string         `json:"port"`
	Component *componentJSON `json:"component,omitempty"`
	Fixed     bool           `json:"fixed,omitempty"`
}

type nodeJSON struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Interaction string     `json:"interaction,omitempty"`
	Inputs      []portJSON `json:"inputs"`
	Outputs     []portJSON `json:"outputs"`
}

type edgeJSON struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Scatter bool   `json:"scatter,omitempty"`
	Gather  bool   `json:"gather,omitempty"`
}

type schemaResponse struct {
	Graph string     `json:"graph"`
	Nodes []nodeJSON `json:"nodes"`
	Edges []edgeJSON `json:"edges"`
}

// handleSchema renders the graph shape for frontend collaborators: every
// node with its ports and components, every edge with its markers. Ports
// of remote nodes are resolved first, so the schema reflects discovered
// signatures rather than placeholders.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.Validate(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	resp := schemaResponse{Graph: s.graph.Name()}
	for _, n := range s.graph.Nodes() {
		resp.Nodes = append(resp.Nodes, describeNode(n))
	}
	for _, e := range s.graph.Edges() {
		resp.Edges = append(resp.Edges, edgeJSON{
			Source:  portID(e.Source.Name(), e.SourcePort),
			Target:  portID(e.Target.Name(), e.TargetPort),
			Scatter: e.Scattered,
			Gather:  e.Gathered,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func describeNode(n daggr.Node) nodeJSON {
	nj := nodeJSON{
		Name: n.Name(),
		Kind: nodeKind(n),
	}
	if in, ok := n.(*daggr.InteractionNode); ok {
		nj.Interaction = in.Kind()
	}
	fixed := n.FixedInputs()
	for _, p := range n.InputPorts() {
		pj := portJSON{ID: portID(n.Name(), p), Port: p}
		if c, ok := n.InputComponents()[p]; ok {
			pj.Component = describeComponent(c)
		}
		if _, ok := fixed[p]; ok {
			pj.Fixed = true
		}
		nj.Inputs = append(nj.Inputs, pj)
	}
	for _, p := range n.OutputPorts() {
		pj := portJSON{ID: portID(n.Name(), p), Port: p}
		if c, ok := n.OutputComponents()[p]; ok {
			pj.Component = describeComponent(c)
		}
		nj.Outputs = append(nj.Outputs, pj)
	}
	return nj
}

func nodeKind(n daggr.Node) string {
	switch n.(type) {
	case *daggr.FuncNode:
		return "func"
	case *daggr.RemoteNode:
		return "remote"
	case *daggr.InteractionNode:
		return "interaction"
	case *daggr.InputNode:
		return "input"
	default:
		return "unknown"
	}
}

func describeComponent(c *daggr.Component) *componentJSON {
	if c == nil {
		return nil
	}
	return &componentJSON{Kind: c.Kind, Label: c.Label, Value: c.Value}
}

type callRequest struct {
	// Inputs carries entry values keyed "node__port". A bare node key
	// binds to the node's default input port.
	Inputs map[string]any `json:"inputs"`
}

type callResponse struct {
	RunID   string         `json:"run_id"`
	Results map[string]any `json:"results"`
}

// handleCall runs the full graph. Entry inputs override every other input
// source for the run; the response carries each node's unwrapped result.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry := make(map[string]any, len(req.Inputs))
	for id, v := range req.Inputs {
		node, port := splitPortID(id)
		if port == "" {
			entry[node] = v
			continue
		}
		m, ok := entry[node].(map[string]any)
		if !ok {
			m = make(map[string]any)
			entry[node] = m
		}
		m[port] = v
	}

	s.mu.Lock()
	results, err := s.ex.ExecuteAll(r.Context(), entry)
	runID := s.ex.RunID()
	s.mu.Unlock()
	if err != nil {
		writeExecError(w, err)
		return
	}

	resp := callResponse{RunID: runID, Results: make(map[string]any, len(results))}
	for name, v := range results {
		resp.Results[name] = daggr.Unwrap(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

type nodeCallRequest struct {
	// Inputs carries override values keyed by port name.
	Inputs map[string]any `json:"inputs"`
}

type nodeCallResponse struct {
	Node   string `json:"node"`
	Result any    `json:"result"`
}

// handleCallNode re-executes a single node with its stored upstream
// results, applying the request inputs as overrides.
func (s *Server) handleCallNode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	var req nodeCallRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	result, err := s.ex.ExecuteNode(r.Context(), name, req.Inputs)
	s.mu.Unlock()
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeCallResponse{Node: name, Result: daggr.Unwrap(result)})
}

type itemCallResponse struct {
	Node   string `json:"node"`
	Index  int    `json:"index"`
	Result any    `json:"result"`
}

// handleCallItem re-executes one item of a scattered node, replacing that
// item's slot in the stored envelope.
func (s *Server) handleCallItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "node")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid item index %q", chi.URLParam(r, "index")))
		return
	}
	var req nodeCallRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	result, err := s.ex.ExecuteScatteredItem(r.Context(), name, index, req.Inputs)
	s.mu.Unlock()
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemCallResponse{Node: name, Index: index, Result: daggr.Unwrap(result)})
}

type runsResponse struct {
	Runs []string `json:"runs"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.history.Runs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

type runEntryJSON struct {
	Node      string `json:"node"`
	Sequence  int    `json:"sequence"`
	Timestamp string `json:"timestamp"`
	Result    any    `json:"result"`
}

type runResponse struct {
	RunID   string         `json:"run_id"`
	Results []runEntryJSON `json:"results"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	entries, err := s.history.ListRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", runID))
		return
	}

	resp := runResponse{RunID: runID, Results: make([]runEntryJSON, 0, len(entries))}
	for _, e := range entries {
		ej := runEntryJSON{
			Node:      e.Node,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
		data, err := s.history.LoadResult(runID, e.Node)
		if err == nil {
			var v any
			if sonic.Unmarshal(data, &v) == nil {
				ej.Result = v
			}
		}
		resp.Results = append(resp.Results, ej)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads and decodes a JSON request body into dst. An empty body
// is accepted and leaves dst zero-valued. Returns false after writing an
// error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return false
	}
	if len(data) == 0 {
		return true
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// writeExecError maps execution errors onto HTTP statuses: missing nodes
// are 404, structural problems and bad indices are client errors, and
// anything raised by node code itself is a 500.
func writeExecError(w http.ResponseWriter, err error) {
	var (
		validationErr *daggr.ValidationError
		indexErr      *daggr.ItemIndexError
	)
	switch {
	case errors.Is(err, daggr.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, daggr.ErrNotScattered), errors.As(err, &indexErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, daggr.ErrCycle), errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, history.ErrStoreClosed):
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
