package wlhttp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/query"
	"github.com/weegigs/wee-ledger-go/stores/memory"
	"github.com/weegigs/wee-ledger-go/wl"
)

type gauge struct {
	Value int `json:"value"`
}

type setGauge struct {
	Value int `json:"value"`
}

type gaugeSet struct {
	Value int `json:"value"`
}

func gaugeDescriptor() wl.ServiceDescriptor[gauge] {
	set := func() wl.CommandHandler[gauge] {
		var handler wl.CommandHandlerFunction[gauge, setGauge] = func(ctx context.Context, cmd setGauge, state wl.Entity[gauge]) ([]wl.ProposedEvent, error) {
			if cmd.Value < 0 {
				return nil, wl.Violation("negative-value", "gauge value %d is negative", cmd.Value)
			}

			event, err := wl.Propose(gaugeSet{Value: cmd.Value})
			if err != nil {
				return nil, err
			}

			return []wl.ProposedEvent{event}, nil
		}

		return handler
	}

	was := func() wl.Reducer[gauge] {
		var reducer wl.ReducerFunction[gauge, gaugeSet] = func(state *gauge, evt *gaugeSet) error {
			state.Value = evt.Value
			return nil
		}

		return reducer
	}

	return wl.ServiceDescriptor[gauge]{
		Handlers: map[wl.CommandName]func() wl.CommandHandler[gauge]{
			wl.CommandNameOf(setGauge{}): set,
		},
		Reducers: map[wl.EventType]func() wl.Reducer[gauge]{
			wl.EventTypeOf(gaugeSet{}): was,
		},
	}
}

func postCommand(t *testing.T, handler http.Handler, stream string, name wl.CommandName, payload any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := wl.MarshalToData(payload)
	require.NoError(t, err)

	body, err := json.Marshal(wl.RemoteCommand{CommandName: name, Payload: data})
	require.NoError(t, err)

	request := httptest.NewRequest("POST", "/streams/"+stream+"/commands", bytes.NewReader(body))
	request.Header.Set("Content-type", "application/json")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	return recorder
}

func TestExecutesRemoteCommand(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	recorder := postCommand(t, handler, "gauge-1", wl.CommandNameOf(setGauge{}), setGauge{Value: 42})
	require.Equal(t, http.StatusOK, recorder.Code)

	var response commandResponse[gauge]
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))

	assert.Equal(t, wl.StreamID("gauge-1"), response.Stream)
	assert.Equal(t, uint64(1), response.Version)
	assert.Equal(t, uint64(1), response.Position)
	assert.Equal(t, 42, response.State.Value)
}

func TestGetsEntityState(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	recorder := postCommand(t, handler, "gauge-1", wl.CommandNameOf(setGauge{}), setGauge{Value: 7})
	require.Equal(t, http.StatusOK, recorder.Code)

	request := httptest.NewRequest("GET", "/streams/gauge-1", nil)
	get := httptest.NewRecorder()
	handler.ServeHTTP(get, request)

	require.Equal(t, http.StatusOK, get.Code)

	var response entityResponse[gauge]
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &response))
	assert.Equal(t, 7, response.State.Value)
}

func TestGetOfUnknownStreamIsNotFound(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	request := httptest.NewRequest("GET", "/streams/gauge-missing", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRejectsDomainRuleViolation(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	recorder := postCommand(t, handler, "gauge-1", wl.CommandNameOf(setGauge{}), setGauge{Value: -1})
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	var response errorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "domain-rule-violation", response.Kind)
}

func TestRejectsUnknownCommandName(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	recorder := postCommand(t, handler, "gauge-1", "gauge:reset", struct{}{})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var response errorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "unknown-command", response.Kind)
}

func TestRejectsUnsupportedContentType(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()))

	request := httptest.NewRequest("POST", "/streams/gauge-1/commands", bytes.NewReader([]byte("value=1")))
	request.Header.Set("Content-type", "application/x-www-form-urlencoded")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnsupportedMediaType, recorder.Code)
}

func TestServesViewWithWaitFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	service := wl.NewCommandService(store, gaugeDescriptor())

	var onSet projection.HandlerFunction[gauge, gaugeSet] = func(model *gauge, evt *gaugeSet, record *wl.RecordedEvent) error {
		model.Value = evt.Value
		return nil
	}

	runner := projection.NewRunner("gauge-view", store, projection.NewMemoryCheckpoints(), &gauge{},
		projection.Handlers[gauge]{wl.EventTypeOf(gaugeSet{}): onSet})
	go func() { _ = runner.Run(ctx) }()

	registry := query.NewRegistry()
	var view query.ViewFunction = func(ctx context.Context, params map[string]string) (any, error) {
		var snapshot gauge
		err := runner.Read(func(model *gauge) error {
			snapshot = *model
			return nil
		})
		return snapshot, err
	}
	registry.Register("gauge-view", view)

	handler := NewHandler(service,
		Views[gauge](registry, map[string]Waiter{"gauge-view": runner}))

	recorder := postCommand(t, handler, "gauge-1", wl.CommandNameOf(setGauge{}), setGauge{Value: 9})
	require.Equal(t, http.StatusOK, recorder.Code)

	var committed commandResponse[gauge]
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &committed))

	require.NoError(t, runner.Wait(ctx, committed.Position, 5*time.Second))

	request := httptest.NewRequest("GET", "/views/gauge-view?wait_for=1", nil)
	get := httptest.NewRecorder()
	handler.ServeHTTP(get, request)

	require.Equal(t, http.StatusOK, get.Code)

	var snapshot gauge
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &snapshot))
	assert.Equal(t, 9, snapshot.Value)
}

func TestUnknownViewIsNotFound(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(wl.NewCommandService(store, gaugeDescriptor()),
		Views[gauge](query.NewRegistry(), nil))

	request := httptest.NewRequest("GET", "/views/missing", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
