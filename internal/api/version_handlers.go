package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"grimm.is/ruledit/internal/diff"
	"grimm.is/ruledit/internal/i18n"
	"grimm.is/ruledit/internal/ruleset"
	"grimm.is/ruledit/internal/versions"
)

// SaveVersionRequest stores rendered text directly.
type SaveVersionRequest struct {
	ConfigData  string `json:"config_data"`
	ConfigType  string `json:"config_type"`
	DeviceName  string `json:"device_name"`
	Description string `json:"description"`
}

// DiffResponse is the JSON form of a version comparison.
type DiffResponse struct {
	From    *versions.Record `json:"from"`
	To      *versions.Record `json:"to"`
	Lines   []string         `json:"lines"`
	Added   int              `json:"added"`
	Removed int              `json:"removed"`
}

func (s *Server) handleSaveVersion(w http.ResponseWriter, r *http.Request) {
	var req SaveVersionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}
	ft, err := ruleset.ParseFirewallType(req.ConfigType)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgUnknownType)
		return
	}
	if strings.TrimSpace(req.DeviceName) == "" {
		WriteErrorCtx(w, r, http.StatusBadRequest, nil, i18n.MsgInvalidParameter, "device_name")
		return
	}

	s.saveRecord(w, r, &versions.Record{
		DeviceName:  req.DeviceName,
		ConfigType:  string(ft),
		ConfigData:  req.ConfigData,
		Description: req.Description,
	})
}

// saveRecord writes rec to the store and responds with the stored record.
func (s *Server) saveRecord(w http.ResponseWriter, r *http.Request, rec *versions.Record) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.store.Save(ctx, rec); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordVersionSaved(rec.ConfigType)
	s.logger.Audit("save", fmt.Sprintf("version:%d", rec.ID),
		"device", rec.DeviceName,
		"version", rec.Version,
	)
	WriteJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	list, err := s.store.List(ctx, r.URL.Query().Get("device"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidParameter, "id")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// handleLoadVersion opens a new editing session on a stored version.
func (s *Server) handleLoadVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidParameter, "id")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !s.allowSession(w, r) {
		return
	}
	rs, err := versions.Load(rec)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusUnprocessableEntity, err, i18n.MsgParseFailed)
		return
	}
	s.metrics.RecordParse(string(rs.FirewallType), true, nil)

	v := s.sessions.create(rs)
	s.logger.Info("session loaded from version", "session", v.ID, "version_id", rec.ID, "device", rec.DeviceName)
	WriteJSON(w, http.StatusCreated, UploadResponse{sessionView: v, Issues: []ruleset.LineIssue{}})
}

// handleDiffVersions compares two versions. format=unified returns a
// unified diff as text.
func (s *Server) handleDiffVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidParameter, "from")
		return
	}
	to, err := strconv.ParseInt(q.Get("to"), 10, 64)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidParameter, "to")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	cmp, err := versions.Compare(ctx, s.store, from, to)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.metrics.RecordDiff()

	if q.Get("format") == "unified" {
		text, err := diff.Unified(cmp.From.ConfigData, cmp.To.ConfigData,
			versionName(cmp.From), versionName(cmp.To), 3)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		writeText(w, http.StatusOK, text)
		return
	}

	cmp.From.ConfigData, cmp.To.ConfigData = "", ""
	lines := cmp.Marked()
	WriteJSON(w, http.StatusOK, DiffResponse{
		From:    cmp.From,
		To:      cmp.To,
		Lines:   lines,
		Added:   cmp.Added,
		Removed: cmp.Removed,
	})
}

func versionName(rec *versions.Record) string {
	return fmt.Sprintf("%s v%d", rec.DeviceName, rec.Version)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	devices, err := s.store.Devices(ctx)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, devices)
}

// writeStoreError maps version store errors to responses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, versions.ErrNotFound) {
		WriteErrorCtx(w, r, http.StatusNotFound, err, i18n.MsgVersionNotFound)
		return
	}
	s.logger.Error("version store failed", "path", r.URL.Path, "error", err)
	WriteErrorCtx(w, r, http.StatusInternalServerError, err, i18n.MsgInternal)
}
