package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/matching"
)

const (
	weightParamPrefix    = "w."
	defaultAggregateName = "Custom Region"
	maxBodyBytes         = 1 << 20
)

type matchesResponse struct {
	Source  domain.Region  `json:"source"`
	Preset  string         `json:"preset"`
	Weights domain.Weights `json:"weights"`
	Matches []domain.Match `json:"matches"`
}

type aggregateRequest struct {
	IDs  []string `json:"ids"`
	Name string   `json:"name"`
}

type aggregateResponse struct {
	Region  domain.Region  `json:"region"`
	Matches []domain.Match `json:"matches,omitempty"`
}

type indicatorsResponse struct {
	Indicators []domain.Indicator `json:"indicators"`
	Categories []domain.Category  `json:"categories"`
}

func (s *Server) handleFilterRegions(w http.ResponseWriter, r *http.Request) {
	defer s.observe("filter", time.Now())

	q := r.URL.Query()
	f := matching.Filter{
		Type:   domain.RegionType(q.Get("type")),
		Parent: q.Get("parent"),
		Query:  q.Get("q"),
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid region type %q", f.Type))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.FilterRegions(f))
}

func (s *Server) handleSearchRegions(w http.ResponseWriter, r *http.Request) {
	defer s.observe("search", time.Now())
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.SearchRegions(r.URL.Query().Get("q")))
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	defer s.observe("get", time.Now())

	region, ok := s.engine.GetRegion(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, region)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	defer s.observe("match", time.Now())

	id := r.PathValue("id")
	source, ok := s.engine.GetRegion(id)
	if !ok {
		writeError(w, http.StatusNotFound, "region not found")
		return
	}

	q, err := parseMatchQuery(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	weights, name := s.engine.ResolveWeights(q)
	matches := s.engine.FindMatches(source.ID, q)
	s.publish(domain.NewMatchEvent(source.ID, name, q.Custom, matches))

	sharedobs.WriteJSON(w, http.StatusOK, matchesResponse{
		Source:  source,
		Preset:  name,
		Weights: weights,
		Matches: matches,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	defer s.observe("aggregate", time.Now())

	var req aggregateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultAggregateName
	}

	var (
		q          matching.MatchQuery
		wantsMatch bool
	)
	if raw := r.URL.Query().Get("matches"); raw != "" {
		var err error
		q, err = parseMatchQuery(r.URL.Query(), "matches")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		wantsMatch = q.Limit > 0
	}

	agg, ok := s.engine.AggregateRegions(req.IDs, name)
	s.publish(domain.NewAggregateEvent(agg.ID, req.IDs, ok))
	if !ok {
		writeError(w, http.StatusNotFound, "no matching regions")
		return
	}

	resp := aggregateResponse{Region: agg}
	if wantsMatch {
		resp.Matches = s.engine.MatchRegion(agg, q)
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndicators(w http.ResponseWriter, _ *http.Request) {
	indicators, categories := s.engine.Indicators()
	sharedobs.WriteJSON(w, http.StatusOK, indicatorsResponse{Indicators: indicators, Categories: categories})
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Presets())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Stats())
}

// parseMatchQuery reads preset, the result size from limitParam, and any
// w.<key> weights. A single weight parameter switches to custom weights.
func parseMatchQuery(values url.Values, limitParam string) (matching.MatchQuery, error) {
	q := matching.MatchQuery{Preset: values.Get("preset")}

	if raw := values.Get(limitParam); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid %s: must be a non-negative integer", limitParam)
		}
		q.Limit = n
	}

	for param, vals := range values {
		key, ok := strings.CutPrefix(param, weightParamPrefix)
		if !ok || len(vals) == 0 {
			continue
		}
		if key == "" {
			return q, errors.New("invalid weight: missing indicator key")
		}
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return q, fmt.Errorf("invalid weight for %s: %q", key, vals[0])
		}
		if q.Custom == nil {
			q.Custom = domain.Weights{}
		}
		q.Custom[key] = v
	}
	if err := q.Custom.Validate(); err != nil {
		return q, err
	}
	return q, nil
}
