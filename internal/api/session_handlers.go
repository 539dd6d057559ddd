package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/ruledit/internal/i18n"
	"grimm.is/ruledit/internal/ruleset"
	"grimm.is/ruledit/internal/versions"
)

// UploadRequest is the JSON form of an upload.
type UploadRequest struct {
	Config       string `json:"config"`
	FirewallType string `json:"firewall_type"`
	DeviceName   string `json:"device_name"`
}

// UploadResponse describes the session created from an upload.
type UploadResponse struct {
	sessionView
	Issues []ruleset.LineIssue `json:"issues"`
}

// EditRequest opens a rule in the session's editor.
type EditRequest struct {
	Chain string `json:"chain"`
	Index int    `json:"index"`
}

// SaveRequest stores the session's rendering as a version.
type SaveRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.allowSession(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)

	req, err := readUpload(r, s.Config.MaxUploadBytes)
	if err != nil {
		if tooLarge(err) {
			WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, nil, i18n.MsgUploadTooLarge)
			return
		}
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}

	ft := s.Config.FirewallType()
	if req.FirewallType != "" {
		if ft, err = ruleset.ParseFirewallType(req.FirewallType); err != nil {
			WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgUnknownType)
			return
		}
	}

	strict := s.Config.StrictParse
	if v := r.URL.Query().Get("strict"); v != "" {
		strict, _ = strconv.ParseBool(v)
	}

	rs, issues, err := ruleset.ParseWithOptions(req.Config, ft, ruleset.ParseOptions{Strict: strict})
	s.metrics.RecordParse(string(ft), err == nil, issueReasons(issues))
	if err != nil {
		WriteErrorCtx(w, r, http.StatusUnprocessableEntity, err, i18n.MsgParseFailed)
		return
	}
	rs.DeviceName = req.DeviceName

	v := s.sessions.create(rs)
	s.logger.Info("session created",
		"session", v.ID,
		"device", rs.DeviceName,
		"type", ft,
		"rules", rs.TotalRules(),
		"skipped", len(issues),
	)

	if issues == nil {
		issues = []ruleset.LineIssue{}
	}
	WriteJSON(w, http.StatusCreated, UploadResponse{sessionView: v, Issues: issues})
}

// readUpload accepts either a multipart form with a config_file part or a
// JSON UploadRequest.
func readUpload(r *http.Request, maxBytes int64) (UploadRequest, error) {
	var req UploadRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := decodeJSON(r, &req, false)
		return req, err
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return req, err
	}
	f, _, err := r.FormFile("config_file")
	if err != nil {
		return req, fmt.Errorf("config_file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return req, err
	}
	req.Config = string(data)
	req.FirewallType = r.FormValue("firewall_type")
	req.DeviceName = r.FormValue("device_name")
	return req, nil
}

func issueReasons(issues []ruleset.LineIssue) []string {
	reasons := make([]string, len(issues))
	for i, is := range issues {
		reasons[i] = is.Reason
	}
	return reasons
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	var v sessionView
	err := s.sessions.with(r.PathValue("id"), func(e *sessionEntry) error {
		v = e.view()
		return nil
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.remove(id) {
		s.writeSessionError(w, r, errSessionNotFound)
		return
	}
	s.ws.CloseSession(id)
	s.logger.Info("session closed", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// mutate applies op to the session, then publishes and returns the new state.
// op returns the edit kind recorded in metrics, or "" for none.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(sess *ruleset.Session) (string, error)) {
	id := r.PathValue("id")
	var (
		v    sessionView
		kind string
	)
	err := s.sessions.with(id, func(e *sessionEntry) error {
		var err error
		if kind, err = op(e.session); err != nil {
			return err
		}
		v = e.view()
		return nil
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	if kind != "" {
		s.metrics.RecordEdit(kind)
	}
	s.ws.Publish(id, TopicRuleSet, v.update())
	WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule ruleset.Rule
	if err := decodeJSON(r, &rule, false); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}
	s.mutate(w, r, func(sess *ruleset.Session) (string, error) {
		return "add", sess.Add(rule)
	})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	chain, index, ok := s.ruleRef(w, r)
	if !ok {
		return
	}
	var rule ruleset.Rule
	if err := decodeJSON(r, &rule, false); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}
	s.mutate(w, r, func(sess *ruleset.Session) (string, error) {
		return "update", sess.Update(chain, index, rule)
	})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	chain, index, ok := s.ruleRef(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(sess *ruleset.Session) (string, error) {
		return "delete", sess.Delete(chain, index)
	})
}

func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decodeJSON(r, &req, false); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}

	var rule ruleset.Rule
	err := s.sessions.with(r.PathValue("id"), func(e *sessionEntry) error {
		var err error
		rule, err = e.session.BeginEdit(req.Chain, req.Index)
		return err
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *ruleset.Session) (string, error) {
		sess.CancelEdit()
		return "", nil
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var rule ruleset.Rule
	if err := decodeJSON(r, &rule, false); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}
	// A commit is an update while a rule is open in the editor, an add
	// otherwise.
	s.mutate(w, r, func(sess *ruleset.Session) (string, error) {
		kind := "add"
		if sess.Editing() {
			kind = "update"
		}
		return kind, sess.Commit(rule)
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var text string
	err := s.sessions.with(r.PathValue("id"), func(e *sessionEntry) error {
		text = e.session.Render()
		return nil
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, text)
}

// handleDownload serves the rendering as a file named after the firewall
// type and the current time in milliseconds. format=yaml or format=json
// export the model instead.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "yaml" && format != "json" {
		WriteErrorCtx(w, r, http.StatusBadRequest, nil, i18n.MsgInvalidParameter, "format")
		return
	}

	var (
		body []byte
		ft   ruleset.FirewallType
	)
	err := s.sessions.with(r.PathValue("id"), func(e *sessionEntry) error {
		rs := e.session.RuleSet
		ft = rs.FirewallType
		var err error
		switch format {
		case "yaml":
			body, err = yaml.Marshal(rs)
		case "json":
			body, err = rs.MarshalJSON()
		default:
			body = []byte(rs.Render())
		}
		return err
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	ext, contentType := ".rules", "text/plain; charset=utf-8"
	switch format {
	case "yaml":
		ext, contentType = ".yaml", "application/x-yaml"
	case "json":
		ext, contentType = ".json", "application/json"
	}
	filename := fmt.Sprintf("%s-%d%s", ft.Tool(), s.clock.Now().UnixMilli(), ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decodeJSON(r, &req, true); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
		return
	}

	var rec *versions.Record
	err := s.sessions.with(r.PathValue("id"), func(e *sessionEntry) error {
		rec = versions.FromRuleSet(e.session.RuleSet, req.Description)
		return nil
	})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if rec.DeviceName == "" {
		WriteErrorCtx(w, r, http.StatusBadRequest, errors.New("session has no device name"), i18n.MsgInvalidParameter, "device_name")
		return
	}

	s.saveRecord(w, r, rec)
}

// ruleRef parses the {chain}/{index} path values.
func (s *Server) ruleRef(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	chain := r.PathValue("chain")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || strings.TrimSpace(chain) == "" {
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidParameter, "index")
		return "", 0, false
	}
	return chain, index, true
}

// writeSessionError maps session and editor errors to responses.
func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errSessionNotFound):
		WriteErrorCtx(w, r, http.StatusNotFound, nil, i18n.MsgSessionNotFound)
	case errors.Is(err, ruleset.ErrRuleNotFound):
		WriteErrorCtx(w, r, http.StatusNotFound, err, i18n.MsgRuleNotFound)
	case errors.Is(err, ruleset.ErrMissingTarget):
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgMissingTarget)
	case errors.Is(err, ruleset.ErrInvalidRule):
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidRule)
	default:
		WriteErrorCtx(w, r, http.StatusBadRequest, err, i18n.MsgInvalidBody)
	}
}
