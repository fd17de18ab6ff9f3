package stubserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"orgsync/backend"
	"orgsync/backend/sqlite"
	"orgsync/internal/utils"
)

// collection serves one resource kind
type collection struct {
	server   *Server
	kind     backend.Kind
	validate validator
}

type page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

func (c collection) list(w http.ResponseWriter, r *http.Request) {
	records, err := c.server.store.List(r.Context(), c.kind, userFrom(r.Context()))
	if err != nil {
		c.serverError(w, err)
		return
	}

	items := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		entity, err := rec.Entity()
		if err != nil {
			c.serverError(w, err)
			return
		}
		items = append(items, entity)
	}

	if !c.server.cfg.Paginate {
		writeJSON(w, http.StatusOK, items)
		return
	}
	writeJSON(w, http.StatusOK, c.paginate(r, items))
}

func (c collection) paginate(r *http.Request, items []json.RawMessage) page {
	size := c.server.cfg.PageSize
	n := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}

	p := page{Count: len(items), Results: []json.RawMessage{}}
	start := (n - 1) * size
	if start < len(items) {
		end := min(start+size, len(items))
		p.Results = items[start:end]
	}

	link := func(to int) *string {
		u := fmt.Sprintf("http://%s%s?page=%d", r.Host, r.URL.Path, to)
		return &u
	}
	if start+size < len(items) {
		p.Next = link(n + 1)
	}
	if n > 1 {
		p.Previous = link(n - 1)
	}
	return p
}

func (c collection) create(w http.ResponseWriter, r *http.Request) {
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	c.save(w, r, doc, 0)
}

func (c collection) get(w http.ResponseWriter, r *http.Request) {
	rec, ok := c.find(w, r)
	if !ok {
		return
	}
	c.writeRecord(w, http.StatusOK, rec)
}

func (c collection) update(w http.ResponseWriter, r *http.Request) {
	rec, ok := c.find(w, r)
	if !ok {
		return
	}
	doc, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	c.save(w, r, doc, rec.ID)
}

func (c collection) patch(w http.ResponseWriter, r *http.Request) {
	rec, ok := c.find(w, r)
	if !ok {
		return
	}
	changes, ok := decodeDocument(w, r)
	if !ok {
		return
	}

	var stored document
	if err := json.Unmarshal(rec.Data, &stored); err != nil {
		c.serverError(w, err)
		return
	}
	c.save(w, r, merge(stored, changes), rec.ID)
}

func (c collection) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := c.server.store.Delete(r.Context(), c.kind, userFrom(r.Context()), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "No "+string(c.kind)+" matches the given query.")
		return
	}
	if err != nil {
		c.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// save validates doc and inserts it (id 0) or overwrites record id
func (c collection) save(w http.ResponseWriter, r *http.Request, doc document, id backend.ID) {
	fields, errs := c.validate(doc, c.server.cfg.Now())
	if len(errs) > 0 {
		utils.Debugf("stub: rejected %s: %s", c.kind, errs)
		writeFieldErrors(w, errs)
		return
	}
	data, err := json.Marshal(fields)
	if err != nil {
		c.serverError(w, err)
		return
	}

	owner := userFrom(r.Context())
	if id == 0 {
		rec, err := c.server.store.Insert(r.Context(), c.kind, owner, data)
		if err != nil {
			c.serverError(w, err)
			return
		}
		c.writeRecord(w, http.StatusCreated, rec)
		return
	}

	rec, err := c.server.store.Update(r.Context(), c.kind, owner, id, data)
	if err != nil {
		c.serverError(w, err)
		return
	}
	c.writeRecord(w, http.StatusOK, rec)
}

func (c collection) find(w http.ResponseWriter, r *http.Request) (sqlite.Record, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return sqlite.Record{}, false
	}
	rec, err := c.server.store.Get(r.Context(), c.kind, userFrom(r.Context()), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "No "+string(c.kind)+" matches the given query.")
		return sqlite.Record{}, false
	}
	if err != nil {
		c.serverError(w, err)
		return sqlite.Record{}, false
	}
	return rec, true
}

func (c collection) writeRecord(w http.ResponseWriter, status int, rec sqlite.Record) {
	entity, err := rec.Entity()
	if err != nil {
		c.serverError(w, err)
		return
	}
	writeRaw(w, status, entity)
}

func (c collection) serverError(w http.ResponseWriter, err error) {
	utils.Errorf("stub: %s: %v", c.kind, err)
	writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
}

func pathID(w http.ResponseWriter, r *http.Request) (backend.ID, bool) {
	id, err := backend.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (document, bool) {
	var doc document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return nil, false
	}
	return doc, true
}
