package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appanalysis "github.com/codexray/malapi-catalog/internal/application/analysis"
	appbudget "github.com/codexray/malapi-catalog/internal/application/budget"
	appfunctions "github.com/codexray/malapi-catalog/internal/application/functions"
	appmapping "github.com/codexray/malapi-catalog/internal/application/mapping"
	appmatrix "github.com/codexray/malapi-catalog/internal/application/matrix"
	apptaxonomy "github.com/codexray/malapi-catalog/internal/application/taxonomy"
	domanalysis "github.com/codexray/malapi-catalog/internal/domain/analysis"
	dombudget "github.com/codexray/malapi-catalog/internal/domain/budget"
	domfunctions "github.com/codexray/malapi-catalog/internal/domain/functions"
	dommapping "github.com/codexray/malapi-catalog/internal/domain/mapping"
	domtaxonomy "github.com/codexray/malapi-catalog/internal/domain/taxonomy"
	"github.com/codexray/malapi-catalog/internal/middleware"
)

type Router struct {
	taxonomySvc *apptaxonomy.Service
	mappingSvc  *appmapping.Service
	matrixSvc   *appmatrix.Service
	functionSvc *appfunctions.Service
	analysisSvc *appanalysis.Service
	budgetSvc   *appbudget.Service
}

func NewRouter(taxonomySvc *apptaxonomy.Service, mappingSvc *appmapping.Service, matrixSvc *appmatrix.Service,
	functionSvc *appfunctions.Service, analysisSvc *appanalysis.Service, budgetSvc *appbudget.Service) http.Handler {
	r := &Router{
		taxonomySvc: taxonomySvc,
		mappingSvc:  mappingSvc,
		matrixSvc:   matrixSvc,
		functionSvc: functionSvc,
		analysisSvc: analysisSvc,
		budgetSvc:   budgetSvc,
	}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/api/v1", func(rt chi.Router) {
		rt.Route("/attack", func(at chi.Router) {
			at.Get("/tactics", r.wrap(r.handleListTactics))
			at.Get("/tactics/{id}", r.wrap(r.handleGetTactic))
			at.Get("/techniques", r.wrap(r.handleListTechniques))
			at.Get("/techniques/{id}", r.wrap(r.handleGetTechnique))
			at.Get("/techniques/{id}/functions", r.wrap(r.handleTechniqueFunctions))
			at.Get("/matrix", r.wrap(r.handleMatrix))
			at.Get("/statistics", r.wrap(r.handleStatistics))
		})
		rt.Route("/functions", func(ft chi.Router) {
			ft.Get("/", r.wrap(r.handleListFunctions))
			ft.Get("/{id}", r.wrap(r.handleGetFunction))
			ft.Delete("/{id}", r.wrap(r.handleDeleteFunction))
			ft.Get("/{id}/techniques", r.wrap(r.handleFunctionTechniques))
			ft.Post("/{id}/mappings", r.wrap(r.handleAddMapping))
			ft.Delete("/{id}/mappings/{techniqueID}", r.wrap(r.handleRemoveMapping))
		})
		rt.Route("/analysis", func(an chi.Router) {
			an.Post("/code", r.wrap(r.handleAnalyzeCode))
			an.Get("/cache/{id}", r.wrap(r.handleAnalysisCache))
			an.Get("/usage", r.wrap(r.handleUsage))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domtaxonomy.ErrNotFound),
				errors.Is(err, domfunctions.ErrNotFound),
				errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, dommapping.ErrUnknownTechnique):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, domanalysis.ErrUnknownType):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, dombudget.ErrExceeded):
				http.Error(w, "daily analysis budget exceeded", http.StatusTooManyRequests)
			case errors.Is(err, domanalysis.ErrAnalysisFailed):
				http.Error(w, err.Error(), http.StatusBadGateway)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func queryBool(req *http.Request, name string, def bool) bool {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func pathID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid function id: %w", domfunctions.ErrNotFound)
	}
	return id, nil
}

// GET /api/v1/attack/tactics
func (r *Router) handleListTactics(w http.ResponseWriter, req *http.Request) error {
	tactics, err := r.taxonomySvc.ListTactics(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, tactics)
}

// GET /api/v1/attack/tactics/{id}
func (r *Router) handleGetTactic(w http.ResponseWriter, req *http.Request) error {
	tactic, err := r.taxonomySvc.GetTactic(req.Context(), domtaxonomy.TacticID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, tactic)
}

// GET /api/v1/attack/techniques?tactic_id=&platform=&include_subtechniques=&revoked_only=
func (r *Router) handleListTechniques(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	techs, err := r.taxonomySvc.ListTechniques(req.Context(), domtaxonomy.Filter{
		TacticID:             domtaxonomy.TacticID(q.Get("tactic_id")),
		Platform:             q.Get("platform"),
		IncludeSubtechniques: queryBool(req, "include_subtechniques", true),
		RevokedOnly:          queryBool(req, "revoked_only", false),
	})
	if err != nil {
		return err
	}
	if techs == nil {
		techs = []*domtaxonomy.Technique{}
	}
	return writeJSON(w, techs)
}

// GET /api/v1/attack/techniques/{id}?include_subtechniques=
func (r *Router) handleGetTechnique(w http.ResponseWriter, req *http.Request) error {
	tech, err := r.taxonomySvc.GetTechnique(req.Context(),
		domtaxonomy.TechniqueID(chi.URLParam(req, "id")),
		queryBool(req, "include_subtechniques", true))
	if err != nil {
		return err
	}
	return writeJSON(w, tech)
}

// GET /api/v1/attack/techniques/{id}/functions?page=&page_size=
func (r *Router) handleTechniqueFunctions(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	result, err := r.mappingSvc.FunctionsFor(req.Context(),
		domtaxonomy.TechniqueID(chi.URLParam(req, "id")), page, size)
	if err != nil {
		return err
	}
	if result.FunctionIDs == nil {
		result.FunctionIDs = []int64{}
	}
	return writeJSON(w, result)
}

// GET /api/v1/attack/matrix?include_subtechniques=
func (r *Router) handleMatrix(w http.ResponseWriter, req *http.Request) error {
	columns, err := r.matrixSvc.BuildMatrix(req.Context(), queryBool(req, "include_subtechniques", false))
	if err != nil {
		return err
	}
	return writeJSON(w, columns)
}

// GET /api/v1/attack/statistics
func (r *Router) handleStatistics(w http.ResponseWriter, req *http.Request) error {
	stats, err := r.matrixSvc.GetStatistics(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, stats)
}

// GET /api/v1/functions?page=&page_size=
func (r *Router) handleListFunctions(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	result, err := r.functionSvc.Paginate(req.Context(), page, size)
	if err != nil {
		return err
	}
	if result.Data == nil {
		result.Data = []*domfunctions.Function{}
	}
	return writeJSON(w, result)
}

// GET /api/v1/functions/{id}
func (r *Router) handleGetFunction(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	fn, err := r.functionSvc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, fn)
}

// DELETE /api/v1/functions/{id}, cascades to the function's mappings
func (r *Router) handleDeleteFunction(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	if err := r.functionSvc.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /api/v1/functions/{id}/techniques
func (r *Router) handleFunctionTechniques(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	mappings, err := r.mappingSvc.TechniquesFor(req.Context(), id)
	if err != nil {
		return err
	}
	if mappings == nil {
		mappings = []*dommapping.Mapping{}
	}
	return writeJSON(w, mappings)
}

// POST /api/v1/functions/{id}/mappings
// Body: {"technique_id": "...", "mapping_type": "...", "confidence_score": 0.9, "is_verified": false}
func (r *Router) handleAddMapping(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	var body struct {
		TechniqueID string  `json:"technique_id"`
		MappingType string  `json:"mapping_type"`
		Confidence  float64 `json:"confidence_score"`
		Verified    bool    `json:"is_verified"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.TechniqueID == "" {
		return fmt.Errorf("technique_id is required: %w", dommapping.ErrUnknownTechnique)
	}
	err = r.mappingSvc.AddMapping(req.Context(), id, domtaxonomy.TechniqueID(body.TechniqueID), dommapping.Metadata{
		Type:       dommapping.Type(body.MappingType),
		Confidence: body.Confidence,
		Verified:   body.Verified,
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, map[string]any{"function_id": id, "technique_id": body.TechniqueID})
}

// DELETE /api/v1/functions/{id}/mappings/{techniqueID}
func (r *Router) handleRemoveMapping(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	if err := r.mappingSvc.RemoveMapping(req.Context(), id,
		domtaxonomy.TechniqueID(chi.URLParam(req, "techniqueID"))); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /api/v1/analysis/code
// Body: {"function_id": 1, "analysis_type": "code_explanation", "model": "gpt-4", "temperature": 0.7}
func (r *Router) handleAnalyzeCode(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		FunctionID   int64   `json:"function_id"`
		AnalysisType string  `json:"analysis_type"`
		Model        string  `json:"model"`
		Temperature  float32 `json:"temperature"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.AnalysisType == "" {
		body.AnalysisType = string(domanalysis.TypeCodeExplanation)
	}

	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesInFlight()
	defer middleware.DecrementAnalysesInFlight()

	result, err := r.analysisSvc.GetOrCompute(req.Context(), body.FunctionID,
		domanalysis.Type(body.AnalysisType), body.Model, body.Temperature)
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}
	return writeJSON(w, result)
}

// GET /api/v1/analysis/cache/{id}?analysis_type=&model=
func (r *Router) handleAnalysisCache(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	entry, err := r.analysisSvc.GetCached(req.Context(), id,
		domanalysis.Type(q.Get("analysis_type")), q.Get("model"))
	if err != nil {
		return err
	}
	if entry == nil {
		return writeJSON(w, map[string]any{"cached": false})
	}
	return writeJSON(w, map[string]any{"cached": true, "entry": entry})
}

// GET /api/v1/analysis/usage returns today's ledger entry
func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) error {
	entry, err := r.budgetSvc.Today(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, entry)
}
