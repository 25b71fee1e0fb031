package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/jonathan/closing-engine/internal/server/middleware"
	"github.com/sirupsen/logrus"
)

// maxRequestBody bounds the size of an execution request.
const maxRequestBody = 1 << 20

// ExecuteResponse is the body of a completed batch.
type ExecuteResponse struct {
	BatchID        string            `json:"batch_id"`
	Succeeded      []string          `json:"succeeded"`
	Failed         []closing.Failure `json:"failed"`
	SummaryMessage string            `json:"summary_message"`
}

func newExecuteResponse(o *closing.ExecutionOutcome) ExecuteResponse {
	return ExecuteResponse{
		BatchID:        o.BatchID,
		Succeeded:      o.Succeeded,
		Failed:         o.Failed,
		SummaryMessage: o.Summary(),
	}
}

// handleListProcesses serves GET /processes?category=&data_type=&month=&year=
func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := closing.ProcessFilter{
		Category: q.Get("category"),
		DataType: q.Get("data_type"),
	}

	var fields []closing.FieldError
	filter.Month = queryInt(q, "month", &fields)
	filter.Year = queryInt(q, "year", &fields)
	if len(fields) > 0 {
		s.writeError(w, &closing.RequestShapeError{Fields: fields})
		return
	}

	processes, err := s.reader.ListProcesses(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, processes)
}

// handleListHistory serves GET /processes/history?category=&code=&month=&year=
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := closing.HistoryFilter{
		Category: q.Get("category"),
		Code:     q.Get("code"),
	}

	var fields []closing.FieldError
	filter.Month = queryInt(q, "month", &fields)
	filter.Year = queryInt(q, "year", &fields)
	if len(fields) > 0 {
		s.writeError(w, &closing.RequestShapeError{Fields: fields})
		return
	}

	entries, err := s.reader.ListHistory(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, entries)
}

// handleExecute serves POST /processes/execute. The actor and the override
// privilege come from the operator token.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.GetIdentity(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req closing.ExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	outcome, err := s.executor.Execute(r.Context(), &req, identity.Operator, identity.Override)
	if err != nil {
		if outcome != nil {
			s.log.WithFields(logrus.Fields{
				"batch_id":  outcome.BatchID,
				"succeeded": len(outcome.Succeeded),
				"failed":    len(outcome.Failed),
			}).WithError(err).Error("batch interrupted")
			s.jsonResponse(w, HTTPStatus(err), ErrorBody{Message: err.Error(), Details: newExecuteResponse(outcome)})
			return
		}
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, newExecuteResponse(outcome))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &closing.RequestShapeError{Fields: []closing.FieldError{{
				Field:   typeErr.Field,
				Message: "must be of type " + typeErr.Type.String(),
			}}}
		}
		return &ErrBadRequest{Message: "invalid request body"}
	}
	return nil
}

// queryInt parses an optional integer query parameter. A missing value is zero.
func queryInt(q url.Values, key string, fields *[]closing.FieldError) int {
	raw := q.Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*fields = append(*fields, closing.FieldError{Field: key, Message: "must be an integer"})
		return 0
	}
	return n
}
