package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"questlog/internal/auth"
	"questlog/internal/campaign"
	"questlog/internal/relation"
)

// --- accounts ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	if _, err := s.auth.Signup(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, success())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   session.Token,
		"user":    session.User,
	})
}

// --- games ---

type createGameRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.campaign.ListGames(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	id, err := s.campaign.CreateGame(r.Context(), userID(r), req.Name, req.Description)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"gameId": id})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	data, err := s.campaign.GetGameData(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

// --- content ---

// contentKind reads the content type from ?type=, or from a bare ?npc=1
// style flag.
func contentKind(r *http.Request) string {
	q := r.URL.Query()
	if kind := q.Get("type"); kind != "" {
		return kind
	}
	for _, kind := range []string{"npc", "player", "item", "scene"} {
		if q.Has(kind) {
			return kind
		}
	}
	return ""
}

type updateContentRequest struct {
	Data map[string]any `json:"data"`
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		s.writeError(w, http.StatusBadRequest, "missing gameId")
		return
	}
	docs, err := s.campaign.ListContent(r.Context(), userID(r), gameID, contentKind(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.campaign.GetContent(r.Context(), userID(r), r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateContentInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	id, err := s.campaign.CreateContent(r.Context(), userID(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	var req updateContentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	id := r.URL.Query().Get("id")
	if err := s.campaign.UpdateContent(r.Context(), userID(r), contentKind(r), id, req.Data); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("type") == "" || q.Get("id") == "" {
		s.writeError(w, http.StatusBadRequest, "missing type or id")
		return
	}
	if err := s.campaign.DeleteContent(r.Context(), userID(r), q.Get("type"), q.Get("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req campaign.ConnectInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.Connect(r.Context(), userID(r), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req campaign.DisconnectInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.Disconnect(r.Context(), userID(r), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleMarkDead(w http.ResponseWriter, r *http.Request) {
	var req campaign.MarkDeadInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.NPCID == "" {
		s.writeError(w, http.StatusBadRequest, "missing npcId")
		return
	}
	if err := s.campaign.MarkDead(r.Context(), userID(r), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

type relationshipRequest struct {
	Name   relation.Name   `json:"name"`
	Params relation.Params `json:"params"`
}

func (s *Server) handleApplyRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.ApplyRelationship(r.Context(), userID(r), req.Name, req.Params); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

// --- notes ---

type updateNoteRequest struct {
	NoteID string `json:"noteId"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := s.campaign.ListNotes(r.Context(), userID(r), q.Get("type"), q.Get("entityId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req campaign.NoteInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	notes, err := s.campaign.CreateNote(r.Context(), userID(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, notes)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.UpdateNote(r.Context(), userID(r), req.NoteID, req.Title, req.Text); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.campaign.DeleteNote(r.Context(), userID(r), r.URL.Query().Get("noteId")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

// --- sessions ---

type appendNoteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.campaign.ListSessions(r.Context(), userID(r), r.URL.Query().Get("gameId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req campaign.SaveSessionInput
	if !s.decodeBody(w, r, &req) {
		return
	}
	id, created, err := s.campaign.SaveSession(r.Context(), userID(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if created {
		s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.campaign.GetSession(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var req campaign.SessionPatch
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.PatchSession(r.Context(), userID(r), r.PathValue("id"), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.campaign.DeleteSession(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleAppendSessionNote(w http.ResponseWriter, r *http.Request) {
	var req appendNoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.campaign.AppendSessionNote(r.Context(), userID(r), r.PathValue("id"), req.Note); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

// --- scene images ---

func (s *Server) handleSetSceneImage(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.limits.MaxImageBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxImageBytes)
	if err := r.ParseMultipartForm(s.limits.MaxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no image uploaded")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading image")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}

	if err := s.campaign.SetSceneImage(r.Context(), userID(r), r.PathValue("id"), image, contentType); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, success())
}

func (s *Server) handleGetSceneImage(w http.ResponseWriter, r *http.Request) {
	image, contentType, err := s.campaign.SceneImage(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image); err != nil {
		s.logger.Error("failed to write image", "error", err)
	}
}
