// Package httprouter exposes the job service over HTTP.
package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"tubegrab/internal/config"
	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/infrastructure/delivery/http/middleware"
	"tubegrab/internal/infrastructure/delivery/http/request"
	"tubegrab/internal/infrastructure/delivery/http/response"
	"tubegrab/internal/observability"
	"tubegrab/internal/service"
	"tubegrab/pkg/fsname"

	"github.com/prometheus/client_golang/prometheus"
)

// Router is a ServeMux with a global middleware chain.
type Router struct {
	*http.ServeMux

	log         *slog.Logger
	cfg         *config.Config
	svc         service.Job
	metrics     *observability.Metrics
	globalChain []func(http.Handler) http.Handler
}

// New builds the router. metrics and gatherer may be nil.
func New(log *slog.Logger,
	cfg *config.Config,
	svc service.Job,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		cfg:      cfg,
		svc:      svc,
		metrics:  metrics,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes(gatherer)

	return r
}

// Use appends middlewares to the global chain. The first one runs outermost.
func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	r.globalChain = append(r.globalChain, middleware...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.Logger,
		middleware.Metrics(r.metrics),
	)
}

func (r *Router) SetRoutes(gatherer prometheus.Gatherer) {
	r.SetRoutesHealthcheck(gatherer)
	r.SetRoutesMedia()
	r.SetRoutesJob()
}

func (r *Router) SetRoutesHealthcheck(gatherer prometheus.Gatherer) {
	r.HandleFunc("GET /v1/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if gatherer != nil {
		r.Handle("GET /metrics", observability.Handler(gatherer))
	}
}

func (r *Router) SetRoutesMedia() {
	r.HandleFunc("POST /v1/media/info", r.Info)
	r.HandleFunc("GET /v1/media/search", r.Search)
	r.HandleFunc("GET /v1/media/playlist", r.Playlist)
}

func (r *Router) SetRoutesJob() {
	r.HandleFunc("POST /v1/jobs/enqueue", r.Enqueue)
	r.HandleFunc("GET /v1/jobs/{$}", r.GetJobs)
	r.HandleFunc("GET /v1/jobs/{id}", r.GetJob)
	r.HandleFunc("GET /v1/jobs/{id}/file", r.GetFile)
	r.HandleFunc("DELETE /v1/jobs/{id}", r.DeleteJob)
}

func (r *Router) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.cfg.HTTP.HandlerTimeout
	if timeout <= 0 {
		timeout = consts.DefaultHandlerTimeout
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *Router) Enqueue(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "Enqueue"))
	ctx := req.Context()

	var in request.Enqueue
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, errs.ErrInvalidRequestBody)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	job, err := r.svc.Enqueue(ctx, in.MediaRequest())
	if errors.Is(err, errs.ErrJobAlreadyExists) {
		log.DebugContext(ctx, consts.RespJobAlreadyExists, slog.String("job_id", job.ID))
		response.OK(w, consts.RespJobAlreadyExists, job.ID, nil)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespJobEnqueueFail, slog.Any("error", err))
		response.Error(w, consts.RespJobEnqueueFail, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespJobEnqueued, slog.String("job_id", job.ID), slog.String("url", job.Request.URL))

	response.Accepted(w, consts.RespJobEnqueued, job.ID, nil)
}

func (r *Router) GetJob(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "GetJob"))

	ctx, cancel := r.handlerContext(req.Context())
	defer cancel()

	id := req.PathValue("id")

	job := r.svc.GetByID(ctx, id)
	if job == nil {
		log.DebugContext(ctx, consts.RespJobNotFound, slog.String("job_id", id))
		response.NotFound(w, consts.RespJobNotFound, errs.ErrJobNotFound)

		return
	}

	response.OK(w, consts.RespJobRetrieved, job, nil)
}

func (r *Router) GetJobs(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "GetJobs"))

	ctx, cancel := r.handlerContext(req.Context())
	defer cancel()

	jobs, err := r.svc.GetAll(ctx)
	if errors.Is(err, errs.ErrNoJobs) {
		log.DebugContext(ctx, consts.RespNoJobs)
		response.NoContent(w)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespGetJobsFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespGetJobsFail, nil, err)

		return
	}

	response.OK(w, consts.RespJobsRetrieved, jobs, nil)
}

func (r *Router) DeleteJob(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "DeleteJob"))

	ctx, cancel := r.handlerContext(req.Context())
	defer cancel()

	id := req.PathValue("id")

	if err := r.svc.Delete(ctx, id); err != nil {
		log.ErrorContext(ctx, "delete job", slog.String("job_id", id), slog.Any("error", err))
		response.Error(w, consts.RespJobNotFound, nil, err)

		return
	}

	response.OK(w, consts.RespJobDeleted, id, nil)
}

// GetFile streams the finished job's file as an attachment.
func (r *Router) GetFile(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "GetFile"))
	ctx := req.Context()
	id := req.PathValue("id")

	outcome, err := r.svc.File(ctx, id)
	if err != nil {
		log.DebugContext(ctx, "file not available", slog.String("job_id", id), slog.Any("error", err))

		message := consts.RespJobNotFinished
		if errors.Is(err, errs.ErrJobNotFound) {
			message = consts.RespJobNotFound
		}

		response.Error(w, message, nil, err)

		return
	}

	file, err := os.Open(outcome.FilePath)
	if err != nil {
		log.ErrorContext(ctx, consts.RespFileNotFound, slog.String("job_id", id), slog.Any("error", err))
		response.NotFound(w, consts.RespFileNotFound, nil)

		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		log.ErrorContext(ctx, "stat file", slog.String("job_id", id), slog.Any("error", err))
		response.InternalServerError(w, consts.RespFileNotFound, nil, nil)

		return
	}

	name := outcome.Filename
	if name == "" {
		name = fsname.Sanitize(filepath.Base(outcome.FilePath))
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(w, req, name, stat.ModTime(), file)
}

func contentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if mimeType, ok := consts.MIMETypes[ext]; ok {
		return mimeType
	}

	return consts.MIMEOctetStream
}

func (r *Router) Info(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "Info"))

	ctx, cancel := context.WithTimeout(req.Context(), consts.DefaultInfoTimeout)
	defer cancel()

	var in request.Info
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, errs.ErrInvalidRequestBody)

		return
	}

	if err := in.Validate(); err != nil {
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	meta, err := r.svc.Info(ctx, in.URL)
	if err != nil {
		message := consts.RespNoMetadata
		if errs.Is(err, errs.KindBotChallenge) {
			message = consts.RespBotChallenge
		}

		log.ErrorContext(ctx, message, slog.String("url", in.URL), slog.Any("error", err))
		response.Error(w, message, nil, err)

		return
	}

	response.OK(w, consts.RespMetadataRetrieved, meta, nil)
}

// Search always answers with a list, empty on failure.
func (r *Router) Search(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "Search"))
	ctx := req.Context()

	query := req.URL.Query().Get("q")

	limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil {
		limit = 0
	}

	results, err := r.svc.Search(ctx, query, limit)
	if results == nil {
		results = []entity.SearchResult{}
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespSearchFail, slog.String("query", query), slog.Any("error", err))
		response.Error(w, consts.RespSearchFail, results, err)

		return
	}

	response.OK(w, consts.RespSearchResults, results, nil)
}

func (r *Router) Playlist(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "Playlist"))

	ctx, cancel := context.WithTimeout(req.Context(), consts.DefaultInfoTimeout)
	defer cancel()

	rawURL := req.URL.Query().Get("url")
	if rawURL == "" {
		response.BadRequest(w, consts.RespQueryParamMissing, errs.ErrInvalidURL)

		return
	}

	entries, err := r.svc.Playlist(ctx, rawURL)
	if err != nil {
		log.ErrorContext(ctx, consts.RespPlaylistFail, slog.String("url", rawURL), slog.Any("error", err))
		response.Error(w, consts.RespPlaylistFail, nil, err)

		return
	}

	response.OK(w, consts.RespPlaylistRetrieved, entries, nil)
}
