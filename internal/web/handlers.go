package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/review"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/storage"
)

type dueCard struct {
	Hash         string    `json:"hash"`
	Question     string    `json:"question"`
	Collection   string    `json:"collection"`
	NextReviewAt time.Time `json:"next_review_at"`
}

type historyEntry struct {
	At       time.Time `json:"at"`
	Quality  int       `json:"quality"`
	Interval int       `json:"interval"`
}

type stateResponse struct {
	EaseFactor     float64        `json:"ease_factor"`
	Interval       int            `json:"interval"`
	Repetitions    int            `json:"repetitions"`
	NextReviewAt   time.Time      `json:"next_review_at"`
	LastReviewedAt *time.Time     `json:"last_reviewed_at,omitempty"`
	LastQuality    *int           `json:"last_quality,omitempty"`
	Mature         bool           `json:"mature"`
	History        []historyEntry `json:"history"`
}

func newStateResponse(st sm2.ReviewState) stateResponse {
	resp := stateResponse{
		EaseFactor:   st.EaseFactor,
		Interval:     st.Interval,
		Repetitions:  st.Repetitions,
		NextReviewAt: st.NextReviewAt,
		Mature:       st.IsMature(),
		History:      make([]historyEntry, 0, st.History.Len()),
	}
	if st.Reviewed() {
		at, q := st.LastReviewedAt, int(st.LastQuality)
		resp.LastReviewedAt, resp.LastQuality = &at, &q
	}
	for _, e := range st.History.All() {
		resp.History = append(resp.History, historyEntry{At: e.At, Quality: int(e.Quality), Interval: e.Interval})
	}
	return resp
}

type cardResponse struct {
	Hash       string         `json:"hash"`
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Context    string         `json:"context,omitempty"`
	Collection string         `json:"collection"`
	State      *stateResponse `json:"state"`
}

// GET /api/due?collection=&limit=
func (s *Server) handleGetDue(w http.ResponseWriter, r *http.Request) {
	learner, err := s.learnerID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
	}

	due, err := s.reviews.DueCards(r.Context(), learner, r.URL.Query().Get("collection"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	hashes := make([]string, len(due))
	for i, c := range due {
		hashes[i] = c.ID
	}
	found, err := s.db.FindCards(r.Context(), hashes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cards := make([]dueCard, 0, len(due))
	for _, c := range due {
		// Cards deleted since the states were listed are skipped.
		card, ok := found[c.ID]
		if !ok {
			continue
		}
		cards = append(cards, dueCard{
			Hash:         card.Hash,
			Question:     card.Question,
			Collection:   card.Collection,
			NextReviewAt: c.State.NextReviewAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

// GET /api/cards/{hash}
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	learner, err := s.learnerID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	hash, err := s.db.ResolveCardHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	card, err := s.db.FindCardByHash(r.Context(), hash)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := cardResponse{
		Hash:       card.Hash,
		Question:   card.Question,
		Answer:     card.Answer,
		Context:    card.Context,
		Collection: card.Collection,
	}
	st, err := s.reviews.State(r.Context(), domain.StateKey{LearnerID: learner, CardHash: hash})
	switch {
	case errors.Is(err, review.ErrStateNotFound):
	case err != nil:
		s.respondError(w, r, err)
		return
	default:
		sr := newStateResponse(st)
		resp.State = &sr
	}
	respondJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Quality *int `json:"quality"`
}

// POST /api/cards/{hash}/reviews
func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.Quality == nil {
		badRequest(w, "quality is required")
		return
	}

	learner, err := s.learnerID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	hash, err := s.db.ResolveCardHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	st, err := s.reviews.Submit(r.Context(), domain.StateKey{LearnerID: learner, CardHash: hash}, sm2.Quality(*req.Quality))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newStateResponse(st))
}

type streakResponse struct {
	Current       int      `json:"current"`
	Longest       int      `json:"longest"`
	LastStudyDate string   `json:"last_study_date,omitempty"`
	StudyDates    []string `json:"study_dates"`
}

// GET /api/streak
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	learner, err := s.learnerID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, current, err := s.reviews.Streak(r.Context(), learner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := streakResponse{
		Current:       current,
		Longest:       rec.Longest,
		LastStudyDate: rec.LastStudyDate.String(),
		StudyDates:    []string{},
	}
	for _, d := range rec.StudyDates.Sorted() {
		resp.StudyDates = append(resp.StudyDates, d.String())
	}
	respondJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Learning int `json:"learning"`
	Mature   int `json:"mature"`
	Due      int `json:"due"`
}

// GET /api/stats?collection=
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	learner, err := s.learnerID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	st, err := s.reviews.Stats(r.Context(), learner, r.URL.Query().Get("collection"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statsResponse(st))
}

type sourceResponse struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

func newSourceResponse(src storage.Source) sourceResponse {
	resp := sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type, Name: src.Name}
	if src.LastScanned.Valid {
		t := src.LastScanned.Time
		resp.LastScanned = &t
	}
	return resp
}

// GET /api/sources
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		resp = append(resp, newSourceResponse(src))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sources": resp})
}

type createSourceRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// POST /api/sources
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.Path == "" {
		badRequest(w, "path is required")
		return
	}
	if req.Name == "" {
		req.Name = storage.CollectionName(req.Path)
	}

	if _, err := s.db.InsertSource(r.Context(), req.Path, storage.SourceType(req.Path), req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	src, err := s.db.FindSourceByPath(r.Context(), req.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSourceResponse(*src))
}

// DELETE /api/sources/{id}
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid source id")
		return
	}
	if err := s.db.DeleteSource(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncSourceResult struct {
	SourceID   int64    `json:"source_id"`
	Path       string   `json:"path"`
	Parsed     int      `json:"parsed"`
	Inserted   int      `json:"inserted"`
	Introduced int      `json:"introduced"`
	Moved      int      `json:"moved"`
	Orphaned   int      `json:"orphaned"`
	Errors     []string `json:"errors,omitempty"`
}

type syncResponse struct {
	Sources []syncSourceResult `json:"sources"`
	Error   string             `json:"error,omitempty"`
}

// POST /api/sync runs in the foreground; the response carries the
// per-source results. Failing sources do not fail the request.
func (s *Server) handlePostSync(w http.ResponseWriter, r *http.Request) {
	reports, err := s.syncer.Run(r.Context())

	resp := syncResponse{Sources: make([]syncSourceResult, 0, len(reports))}
	for _, rep := range reports {
		res := syncSourceResult{
			SourceID:   rep.SourceID,
			Path:       rep.Path,
			Parsed:     rep.Parsed,
			Inserted:   rep.Inserted,
			Introduced: rep.Introduced,
			Moved:      rep.Moved,
			Orphaned:   rep.Orphaned,
		}
		for _, e := range rep.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
		resp.Sources = append(resp.Sources, res)
	}
	if err != nil {
		if reports == nil {
			s.respondError(w, r, err)
			return
		}
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
