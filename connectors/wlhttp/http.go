// Package wlhttp adapts the ledger to HTTP. The transport only delivers
// well-formed commands and serves query results; ordering and atomicity
// live in the store.
package wlhttp

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/query"
	"github.com/weegigs/wee-ledger-go/wl"
)

const defaultWaitTimeout = 5 * time.Second

// Waiter blocks until a read model has applied at least the given position.
// projection.Runner satisfies it.
type Waiter interface {
	Wait(ctx context.Context, position uint64, timeout time.Duration) error
}

type HandlerOption[T any] func(service *httpService[T])

func Logger[T any](logger *zerolog.Logger) HandlerOption[T] {
	return func(service *httpService[T]) {
		service.log = logger
	}
}

// Views serves the query registry under /views. Waiters, keyed by view
// name, enable the optional wait_for query parameter.
func Views[T any](registry *query.Registry, waiters map[string]Waiter) HandlerOption[T] {
	return func(service *httpService[T]) {
		service.views = registry
		service.waiters = waiters
	}
}

func NewHandler[T any](commands wl.CommandService[T], options ...HandlerOption[T]) http.Handler {
	service := &httpService[T]{commands: commands}
	for _, option := range options {
		option(service)
	}
	if service.log == nil {
		service.log = &log.Logger
	}

	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Method("GET", "/streams/{stream}", service.getEntity())
	r.Method("POST", "/streams/{stream}/commands", service.executeCommand())

	if service.views != nil {
		r.Method("GET", "/views/{view}", service.queryView())
	}

	return otelhttp.NewHandler(r, "wl-http")
}

type httpService[T any] struct {
	log      *zerolog.Logger
	commands wl.CommandService[T]
	views    *query.Registry
	waiters  map[string]Waiter
}

type entityResponse[T any] struct {
	Stream  wl.StreamID `json:"stream"`
	Version uint64      `json:"version"`
	State   *T          `json:"state"`
}

type commandResponse[T any] struct {
	Stream   wl.StreamID `json:"stream"`
	Version  uint64      `json:"version"`
	Position uint64      `json:"position,omitempty"`
	State    *T          `json:"state"`
}

type errorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (service *httpService[T]) getEntity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := wl.StreamID(chi.URLParam(r, "stream"))

		entity, err := service.commands.Load(r.Context(), stream)
		if err != nil {
			service.log.Info().Err(err).Str("stream", stream.String()).Msg("failed to load entity")
			service.renderError(w, r, err)
			return
		}

		if !entity.Initialized() {
			http.NotFound(w, r)
			return
		}

		render.JSON(w, r, entityResponse[T]{
			Stream:  entity.Stream,
			Version: entity.Version,
			State:   entity.State,
		})
	}
}

func (service *httpService[T]) executeCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := wl.StreamID(chi.URLParam(r, "stream"))

		contentType := r.Header.Get("Content-type")
		mediaType, _, err := mime.ParseMediaType(contentType)
		if mediaType != "application/json" || err != nil {
			http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		var command wl.RemoteCommand
		if err := json.UnmarshalContext(r.Context(), body, &command); err != nil {
			service.log.Info().Err(err).Msg("failed to unmarshal command")
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := service.commands.Execute(r.Context(), stream, command)
		if err != nil {
			service.log.Info().Err(err).Str("stream", stream.String()).Msg("failed to execute command")
			service.renderError(w, r, err)
			return
		}

		render.JSON(w, r, commandResponse[T]{
			Stream:   result.Entity.Stream,
			Version:  result.CommittedVersion,
			Position: result.CommittedPosition,
			State:    result.Entity.State,
		})
	}
}

func (service *httpService[T]) queryView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "view")

		params := map[string]string{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		if waitFor := params["wait_for"]; waitFor != "" {
			delete(params, "wait_for")
			if err := service.waitForPosition(r, name, waitFor); err != nil {
				service.renderError(w, r, err)
				return
			}
		}

		snapshot, err := service.views.Query(r.Context(), name, params)
		if err != nil {
			service.log.Info().Err(err).Str("view", name).Msg("failed to query view")
			service.renderError(w, r, err)
			return
		}

		render.JSON(w, r, snapshot)
	}
}

func (service *httpService[T]) waitForPosition(r *http.Request, view string, raw string) error {
	position, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}

	waiter := service.waiters[view]
	if waiter == nil {
		return &query.ViewNotFoundError{View: view}
	}

	return waiter.Wait(r.Context(), position, defaultWaitTimeout)
}

func (service *httpService[T]) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *wl.ConflictError
	var domain *wl.DomainError
	var missingCommand *wl.CommandNotFoundError
	var missingView *query.ViewNotFoundError

	switch {
	case errors.As(err, &conflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Kind: "concurrency-conflict", Detail: conflict.Error()})
	case errors.As(err, &domain):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, errorResponse{Kind: "domain-rule-violation", Detail: domain.Error()})
	case errors.As(err, &missingCommand):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Kind: "unknown-command", Detail: missingCommand.Error()})
	case errors.As(err, &missingView):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Kind: "unknown-view", Detail: missingView.Error()})
	case errors.Is(err, projection.ErrLagTimeout):
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, errorResponse{Kind: "projection-lag-timeout", Detail: err.Error()})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Kind: "internal", Detail: "request failed"})
	}
}
