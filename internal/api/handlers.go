package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

const (
	defaultListLimit    = 20
	defaultTopLimit     = 10
	defaultHistoryLimit = 100
	defaultLogLimit     = 50
	maxLimit            = 500
)

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	videos, err := s.store.ListVideos(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, "list videos failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": nonNil(videos)})
}

func (s *Server) topVideos(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	videos, err := s.store.TopVideos(r.Context(), limit)
	if err != nil {
		s.internalError(w, "top videos failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": nonNil(videos)})
}

func (s *Server) getVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.store.GetVideo(r.Context(), chi.URLParam(r, "video_id"))
	if err != nil {
		s.lookupError(w, "video", err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *Server) videoHistory(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	limit, _, err := parseLimitOffset(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetVideo(r.Context(), videoID); err != nil {
		s.lookupError(w, "video", err)
		return
	}
	history, err := s.store.VideoHistory(r.Context(), videoID, limit)
	if err != nil {
		s.internalError(w, "video history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"video_id": videoID, "history": nonNil(history)})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, "list users failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": nonNil(users)})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), chi.URLParam(r, "sec_uid"))
	if err != nil {
		s.lookupError(w, "user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// userVideos lists stored videos whose author_id equals the path segment.
func (s *Server) userVideos(w http.ResponseWriter, r *http.Request) {
	authorID := chi.URLParam(r, "sec_uid")
	videos, err := s.store.VideosByAuthor(r.Context(), authorID)
	if err != nil {
		s.internalError(w, "videos by author failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": nonNil(videos)})
}

// listTasks returns every task; ?active=true restricts it to enabled ones.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []crawler.MonitorTask
		err   error
	)
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		tasks, err = s.store.ActiveTasks(r.Context())
	} else {
		tasks, err = s.store.ListTasks(r.Context())
	}
	if err != nil {
		s.internalError(w, "list tasks failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

type createTaskRequest struct {
	TaskType string `json:"task_type"`
	TargetID string `json:"target_id"`
	Name     string `json:"name"`
	Interval int    `json:"interval"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	taskType := crawler.TaskType(strings.TrimSpace(req.TaskType))
	if !taskType.Valid() {
		writeError(w, http.StatusBadRequest, "task_type must be video, user or user_videos")
		return
	}
	target := strings.TrimSpace(req.TargetID)
	if target == "" {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}
	if req.Interval < 0 {
		writeError(w, http.StatusBadRequest, "interval must be >= 0")
		return
	}
	interval := req.Interval
	if interval == 0 {
		interval = s.cfg.DefaultInterval
	}
	task, err := s.store.CreateTask(r.Context(), crawler.NewMonitorTask(taskType, target, req.Name, interval))
	if err != nil {
		s.internalError(w, "create task failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "task_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid task_id")
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.lookupError(w, "task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := s.store.RecentLogs(r.Context(), limit)
	if err != nil {
		s.internalError(w, "recent logs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": nonNil(logs)})
}

type crawlRequest struct {
	VideoID   string `json:"video_id"`
	SecUID    string `json:"sec_uid"`
	MaxVideos *int   `json:"max_videos"`
	URL       string `json:"url"`
}

// crawlVideo accepts the id as JSON or as a query parameter.
func (s *Server) crawlVideo(w http.ResponseWriter, r *http.Request) {
	req, ok := s.crawlParams(w, r)
	if !ok {
		return
	}
	if req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	success := s.crawls.CrawlVideo(r.Context(), req.VideoID)
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "video_id": req.VideoID})
}

func (s *Server) crawlUser(w http.ResponseWriter, r *http.Request) {
	req, ok := s.crawlParams(w, r)
	if !ok {
		return
	}
	if req.SecUID == "" {
		writeError(w, http.StatusBadRequest, "sec_uid is required")
		return
	}
	success := s.crawls.CrawlUser(r.Context(), req.SecUID)
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "sec_uid": req.SecUID})
}

func (s *Server) crawlUserVideos(w http.ResponseWriter, r *http.Request) {
	req, ok := s.crawlParams(w, r)
	if !ok {
		return
	}
	if req.SecUID == "" {
		writeError(w, http.StatusBadRequest, "sec_uid is required")
		return
	}
	budget := s.cfg.Budget
	if req.MaxVideos != nil {
		if *req.MaxVideos < 0 {
			writeError(w, http.StatusBadRequest, "max_videos must be >= 0")
			return
		}
		budget.MaxItems = *req.MaxVideos
	}
	count := s.crawls.CrawlUserVideos(r.Context(), req.SecUID, budget)
	writeJSON(w, http.StatusOK, map[string]any{"sec_uid": req.SecUID, "count": count})
}

type resolveResponse struct {
	URL string `json:"url"`
	crawler.ShareTarget
}

// resolve maps a share link to a video id, or to a sec_uid when the link
// points at a profile.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	req, ok := s.crawlParams(w, r)
	if !ok {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	out := s.resolver.ResolveShareLink(r.Context(), req.URL)
	if target, found := out.Get(); found {
		writeJSON(w, http.StatusOK, resolveResponse{URL: req.URL, ShareTarget: target})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":  "link does not resolve to a video or user",
		"reason": string(out.Reason()),
	})
}

// crawlParams merges the JSON body with query parameters; the body wins.
func (s *Server) crawlParams(w http.ResponseWriter, r *http.Request) (crawlRequest, bool) {
	var req crawlRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return crawlRequest{}, false
	}
	q := r.URL.Query()
	req.VideoID = firstNonEmpty(req.VideoID, q.Get("video_id"))
	req.SecUID = firstNonEmpty(req.SecUID, q.Get("sec_uid"))
	req.URL = firstNonEmpty(req.URL, q.Get("url"))
	if req.MaxVideos == nil && q.Get("max_videos") != "" {
		n, err := strconv.Atoi(q.Get("max_videos"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_videos")
			return crawlRequest{}, false
		}
		req.MaxVideos = &n
	}
	return req, true
}

// decodeBody decodes a JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) lookupError(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	s.internalError(w, "get "+kind+" failed", err)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func parseLimitOffset(r *http.Request, def int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
