package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/service"
	"github.com/vinayprograms/taskapi/task"
)

// IdempotencyKeyHeader carries the client token for creation.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	maxBodyBytes = 1 << 20
	maxBulkSize  = 100
)

// decode reads a JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	switch {
	case stderrors.Is(err, io.EOF):
		return errors.InvalidField("body", "request body is required")
	case stderrors.As(err, &tooLarge):
		return errors.InvalidField("body", "request body too large")
	default:
		return errors.InvalidField("body", "malformed JSON: "+err.Error())
	}
}

// setETag exposes the task version for If-Match.
func setETag(w http.ResponseWriter, t *task.Task) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(t.Version, 10)))
}

// ifMatch parses an If-Match header of the form "3" or W/"3".
func ifMatch(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, errors.InvalidField("If-Match", "must be a task version")
	}
	return &v, nil
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	var in service.CreateInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	t, err := s.svc.Create(r.Context(), in, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeError(w, log, err)
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+t.ID)
	setETag(w, t)
	writeData(w, http.StatusCreated, t)
}

func (s *Server) bulkCreate(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	var ins []service.CreateInput
	if err := decode(w, r, &ins); err != nil {
		writeError(w, log, err)
		return
	}
	switch {
	case len(ins) == 0:
		writeError(w, log, errors.InvalidField("tasks", "must not be empty"))
		return
	case len(ins) > maxBulkSize:
		writeError(w, log, errors.InvalidField("tasks", "at most "+strconv.Itoa(maxBulkSize)+" tasks per request"))
		return
	}
	out, err := s.svc.BulkCreate(r.Context(), ins)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeData(w, http.StatusCreated, out)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, loggerFrom(r.Context()), err)
		return
	}
	setETag(w, t)
	writeData(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	var in service.UpdateInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	if in.ExpectedVersion == nil {
		v, err := ifMatch(r)
		if err != nil {
			writeError(w, log, err)
			return
		}
		in.ExpectedVersion = v
	}
	t, err := s.svc.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, log, err)
		return
	}
	setETag(w, t)
	writeData(w, http.StatusOK, t)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	var in service.StatusInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	if in.ExpectedVersion == nil {
		v, err := ifMatch(r)
		if err != nil {
			writeError(w, log, err)
			return
		}
		in.ExpectedVersion = v
	}
	t, err := s.svc.UpdateStatus(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, log, err)
		return
	}
	setETag(w, t)
	writeData(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, loggerFrom(r.Context()), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	c, err := parseCriteria(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	p, err := s.svc.List(r.Context(), c)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writePage(w, p)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	q := r.URL.Query()
	var v []errors.FieldViolation
	page := intParam(q.Get("page"), "page", &v)
	size := intParam(q.Get("size"), "size", &v)
	if len(v) > 0 {
		writeError(w, log, errors.Validation(v...))
		return
	}
	p, err := s.svc.ListEvents(r.Context(), r.PathValue("id"), page, size)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writePage(w, p)
}

// parseCriteria reads listing parameters. Every malformed parameter is
// reported at once.
func parseCriteria(r *http.Request) (task.Criteria, error) {
	q := r.URL.Query()
	var v []errors.FieldViolation

	c := task.Criteria{
		Status:    task.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Priority:  task.Priority(strings.ToUpper(strings.TrimSpace(q.Get("priority")))),
		Assignee:  strings.TrimSpace(q.Get("assignee")),
		Tag:       strings.TrimSpace(q.Get("tag")),
		Text:      q.Get("textSearch"),
		Sort:      q.Get("sort"),
		Direction: q.Get("direction"),
	}
	c.DueBefore = timeParam(q.Get("dueBefore"), "dueBefore", true, &v)
	c.DueAfter = timeParam(q.Get("dueAfter"), "dueAfter", false, &v)
	c.Page = intParam(q.Get("page"), "page", &v)
	c.Size = intParam(q.Get("size"), "size", &v)

	if len(v) > 0 {
		return c, errors.Validation(v...)
	}
	return c, nil
}

func intParam(raw, field string, v *[]errors.FieldViolation) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*v = append(*v, errors.FieldViolation{Field: field, Message: "must be an integer"})
		return 0
	}
	return n
}

// timeParam accepts RFC 3339 timestamps or plain dates. A plain date used
// as an upper bound covers the whole day.
func timeParam(raw, field string, upper bool, v *[]errors.FieldViolation) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t
	}
	*v = append(*v, errors.FieldViolation{Field: field, Message: "must be an RFC 3339 timestamp or a YYYY-MM-DD date"})
	return nil
}
