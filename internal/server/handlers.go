package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-urlform/pkg/artifact"
	"github.com/goliatone/go-urlform/pkg/document"
	"github.com/goliatone/go-urlform/pkg/validation"
)

type definitionResponse struct {
	Location   string             `json:"location"`
	State      string             `json:"state"`
	Definition *document.Object   `json:"definition"`
	FormErrors []string           `json:"form_errors,omitempty"`
	Validation []validation.Error `json:"validation,omitempty"`
}

type formResponse struct {
	Name     string  `json:"name"`
	Order    float64 `json:"order"`
	Schema   any     `json:"schema"`
	UISchema any     `json:"ui_schema,omitempty"`
	FormData any     `json:"form_data,omitempty"`
	Props    any     `json:"props,omitempty"`
}

type renderFailure struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	Templates map[string]string   `json:"templates"`
	Artifacts *artifact.Artifacts `json:"artifacts,omitempty"`
}

func (s *Server) handleDefinition(w http.ResponseWriter, _ *http.Request) {
	b := s.current()
	def := b.Definition()
	if def == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_LOADED", "definition not loaded")
		return
	}
	resp := definitionResponse{
		Location:   def.Location(),
		State:      b.State().String(),
		Definition: def.Root(),
		Validation: b.ValidationErrors(),
	}
	for _, err := range b.FormErrors() {
		resp.FormErrors = append(resp.FormErrors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForms(w http.ResponseWriter, _ *http.Request) {
	b := s.current()
	def := b.Definition()
	if def == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_LOADED", "definition not loaded")
		return
	}
	initial := b.InitialData()
	forms := make([]formResponse, 0, len(def.Forms()))
	for _, form := range def.Forms() {
		data := form.FormData
		if value, ok := initial[form.Name]; ok {
			data = value
		}
		forms = append(forms, formResponse{
			Name:     form.Name,
			Order:    form.Order,
			Schema:   form.Schema,
			UISchema: form.UISchema,
			FormData: data,
			Props:    form.Props,
		})
	}
	writeJSON(w, http.StatusOK, forms)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
		return
	}
	var formData map[string]any
	if strings.TrimSpace(string(body)) != "" {
		obj, err := document.DecodeObject(document.FormatJSON, "request", body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		formData = obj.Map()
	}

	out, err := s.current().Render(formData)
	var renderErr *artifact.RenderError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.As(err, &renderErr):
		failure := renderFailure{
			Error:     err.Error(),
			Code:      "RENDER_FAILED",
			Templates: make(map[string]string, len(renderErr.Errors)),
			Artifacts: out,
		}
		for name, tplErr := range renderErr.Errors {
			failure.Templates[name] = tplErr.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, failure)
	case errors.Is(err, artifact.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "INVALID_DATA", err.Error())
	}
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	b := s.current()
	if b.Definition() == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_LOADED", "definition not loaded")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		id = artifact.RootClass
	}
	writeCSS(w, b.StyleSheet(id))
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hooks.OnPageRender(true))
}

func (s *Server) handleStylesheet(w http.ResponseWriter, _ *http.Request) {
	writeCSS(w, s.hooks.Stylesheet())
}

func writeCSS(w http.ResponseWriter, css string) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, css)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
