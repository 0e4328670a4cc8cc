package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/pipeline"
	"github.com/pitabwire/linguist/ratelimiter"
	"github.com/pitabwire/linguist/richtext"
	"github.com/pitabwire/linguist/translator"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type interceptRequest struct {
	Message   richtext.Document `json:"message"`
	Sender    sender            `json:"sender"`
	Body      string            `json:"body,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
}

type interceptResponse struct {
	Message   richtext.Document `json:"message"`
	LookupKey string            `json:"lookup_key,omitempty"`
	Plain     string            `json:"plain,omitempty"`
	Annotated bool              `json:"annotated"`
	Auto      string            `json:"auto,omitempty"`
}

type translateRequest struct {
	UserID    string `json:"user_id"`
	LookupKey string `json:"lookup_key,omitempty"`
	Command   string `json:"command,omitempty"`
}

type translateResponse struct {
	LookupKey          string            `json:"lookup_key"`
	OriginalText       string            `json:"original_text"`
	OriginalLanguage   string            `json:"original_language"`
	TranslatedText     string            `json:"translated_text"`
	TranslatedLanguage string            `json:"translated_language"`
	Message            richtext.Document `json:"message"`
	Display            string            `json:"display"`
}

type languageRequest struct {
	Query string `json:"query"`
}

type autoModeRequest struct {
	Mode     string `json:"mode"`
	CanForce bool   `json:"can_force,omitempty"`
}

type replyResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	OK       bool   `json:"ok"`
}

type joinRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip,omitempty"`
}

type joinResponse struct {
	IsNew    bool     `json:"is_new"`
	Country  string   `json:"country,omitempty"`
	Language string   `json:"language"`
	Lines    []string `json:"lines,omitempty"`
}

type languageResponse struct {
	Code        string `json:"code"`
	NativeName  string `json:"native_name"`
	EnglishName string `json:"english_name"`
}

func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	var req interceptRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Message.Root == nil {
		writeError(w, http.StatusBadRequest, "message is required", "bad_request")
		return
	}

	out := s.pipeline.Intercept(r.Context(), pipeline.Inbound{
		Tree:      req.Message.Root,
		Sender:    richtext.Sender{ID: req.Sender.ID, Name: req.Sender.Name},
		Body:      req.Body,
		Recipient: req.Recipient,
	})

	resp := interceptResponse{
		Message:   richtext.Document{Root: out.Tree},
		LookupKey: out.LookupKey,
		Plain:     out.Plain,
		Annotated: out.Annotated,
	}
	if req.Recipient != "" {
		resp.Auto = out.Auto.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}

	key := strings.TrimSpace(req.LookupKey)
	if key == "" && req.Command != "" {
		key, _ = s.pipeline.LookupKeyFromCommand(req.Command)
	}
	if req.UserID == "" || key == "" {
		writeError(w, http.StatusBadRequest, "user_id and lookup_key or command are required", "bad_request")
		return
	}

	ctx := r.Context()
	rendering, err := s.pipeline.Translate(ctx, req.UserID, key)
	if err != nil {
		status, code := translateFailureStatus(err)
		util.Log(ctx).WithError(err).WithField("lookup_key", key).Debug("translation request failed")
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, status, s.pipeline.FailureMessage(ctx, req.UserID, err), code)
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		LookupKey:          rendering.LookupKey,
		OriginalText:       rendering.OriginalText,
		OriginalLanguage:   rendering.OriginalLanguage,
		TranslatedText:     rendering.TranslatedText,
		TranslatedLanguage: rendering.TranslatedLanguage,
		Message:            richtext.Document{Root: rendering.Tree},
		Display:            rendering.Display,
	})
}

func translateFailureStatus(err error) (int, string) {
	switch {
	case errors.Is(err, messages.ErrUnknownLookup):
		return http.StatusNotFound, "unknown_lookup"
	case errors.Is(err, messages.ErrNotYetAvailable):
		return http.StatusServiceUnavailable, "not_yet_available"
	case errors.Is(err, translator.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusBadGateway, "translation_failed"
	}
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "bad_request")
		return
	}

	reply := s.pipeline.SetLanguage(r.Context(), r.PathValue("id"), req.Query)
	status := http.StatusOK
	if !reply.OK {
		status = http.StatusNotFound
	}
	writeJSON(w, status, replyResponse(reply))
}

func (s *Server) handleSetAutoMode(w http.ResponseWriter, r *http.Request) {
	var req autoModeRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := data.ParseAutoMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}

	reply := s.pipeline.SetAutoMode(r.Context(), r.PathValue("id"), mode, req.CanForce)
	status := http.StatusOK
	if !reply.OK {
		status = http.StatusForbidden
	}
	writeJSON(w, status, replyResponse(reply))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}

	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		if ip = ratelimiter.GetIP(r); ip == "unknown" {
			ip = ""
		}
	}

	joined := s.pipeline.Join(r.Context(), r.PathValue("id"), req.Name, ip)
	writeJSON(w, http.StatusOK, joinResponse(joined))
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := s.pipeline.Languages(r.Context())
	if err != nil {
		util.Log(r.Context()).WithError(err).Error("could not list languages")
		writeError(w, http.StatusInternalServerError, "languages unavailable", "internal")
		return
	}

	resp := make([]languageResponse, 0, len(languages))
	for _, l := range languages {
		resp = append(resp, languageResponse{Code: l.Code, NativeName: l.NativeName, EnglishName: l.EnglishName})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		util.Log(r.Context()).WithError(err).Debug("rejecting malformed request body")
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
