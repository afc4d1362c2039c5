package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/memory"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelegate struct {
	kind project.ArtifactKind
	err  error
}

func (d fakeDelegate) ID() string   { return string(core.KindFor(d.kind)) }
func (d fakeDelegate) Name() string { return d.kind.DisplayName() }

func (d fakeDelegate) Stage() project.Stage {
	s, _ := project.StageOf(d.kind)
	return s
}

func (d fakeDelegate) Run(_ context.Context, in core.Input) (core.Output, error) {
	if d.err != nil {
		return core.Output{}, d.err
	}
	return core.Output{
		DelegateID: d.ID(),
		Artifacts: []project.Artifact{{
			ID:      "art-" + in.TaskID,
			TaskID:  in.TaskID,
			Name:    d.kind.DisplayName(),
			Content: "generated",
			Kind:    d.kind,
			Stage:   in.Stage,
		}},
	}, nil
}

type fakeSource map[project.Stage][]core.Delegate

func (s fakeSource) GetByStage(stage project.Stage) []core.Delegate { return s[stage] }

func (s fakeSource) Descriptors() []core.Descriptor {
	var out []core.Descriptor
	for _, stage := range project.AllStages() {
		for _, d := range s[stage] {
			out = append(out, core.Descriptor{ID: d.ID(), Name: d.Name(), Stage: stage, Active: true})
		}
	}
	return out
}

func allStages() fakeSource {
	src := fakeSource{}
	for _, k := range []project.ArtifactKind{
		project.KindProjectDescription,
		project.KindMarketResearch,
		project.KindProductRequirements,
		project.KindImplementationPlan,
		project.KindBusinessModel,
		project.KindFinalReport,
	} {
		d := fakeDelegate{kind: k}
		src[d.Stage()] = append(src[d.Stage()], d)
	}
	return src
}

type fixedHealth []resilience.Health

func (h fixedHealth) Health() []resilience.Health { return h }

type fixture struct {
	srv         *Server
	orch        *orchestrator.Orchestrator
	broadcaster *events.Broadcaster
}

func newFixture(t *testing.T, src fakeSource, health HealthReporter) *fixture {
	t.Helper()
	store, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	b := events.NewBroadcaster(64)
	orch := orchestrator.New(store, src, executor.New(), nil, orchestrator.WithPublisher(b))
	t.Cleanup(func() {
		orch.StopRuns()
		b.Close()
		_ = store.Close()
	})

	srv := New(Config{Version: "test", AllowedOrigins: []string{"http://localhost:5173"}}, Deps{
		Orchestrator: orch,
		Delegates:    src,
		Broadcaster:  b,
		Health:       health,
	})
	return &fixture{srv: srv, orch: orch, broadcaster: b}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func (f *fixture) create(t *testing.T, idea string) project.Project {
	t.Helper()
	body, _ := json.Marshal(CreateProjectRequest{Idea: idea})
	w := f.do(t, http.MethodPost, "/api/projects", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[project.Project](t, w)
}

func TestCreateAndGetProject(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	p := f.create(t, "  a marketplace for used lab equipment ")
	assert.Equal(t, "a marketplace for used lab equipment", p.Idea)
	assert.Equal(t, project.StatusCreated, p.Status)
	assert.Equal(t, project.StageIdeation, p.CurrentStage)

	w := f.do(t, http.MethodGet, "/api/projects/"+p.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[orchestrator.ProjectStatus](t, w)
	assert.Equal(t, p.ID, st.Project.ID)
	assert.Empty(t, st.Tasks)

	w = f.do(t, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ProjectListResponse](t, w)
	require.Len(t, list.Projects, 1)
	assert.Equal(t, p.ID, list.Projects[0].ID)
}

func TestCreateProject_Validation(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"idea":`},
		{"missing idea", `{}`},
		{"blank idea", `{"idea":"   "}`},
		{"too long", `{"idea":"` + strings.Repeat("x", 20001) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/projects", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestListProjects_EmptyIsArray(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	w := f.do(t, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"projects":[]}`, w.Body.String())
}

func TestAdvance(t *testing.T) {
	f := newFixture(t, allStages(), nil)
	p := f.create(t, "X")

	w := f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/advance", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[orchestrator.StageResult](t, w)
	assert.Equal(t, project.StageIdeation, res.Stage)
	assert.Equal(t, project.StageResearch, res.Project.CurrentStage)
	assert.Equal(t, project.StatusInProgress, res.Project.Status)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, project.KindProjectDescription, res.Artifacts[0].Kind)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, allStages(), nil)
	p := f.create(t, "X")

	w := f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code, "resume of a project that is not paused")

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, project.StatusPaused, decode[project.Project](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/advance", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "paused")

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, project.StatusInProgress, decode[project.Project](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/advance", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRun_CompletesInBackground(t *testing.T) {
	f := newFixture(t, allStages(), nil)
	p := f.create(t, "X")

	w := f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, RunResponse{ProjectID: p.ID, Running: true}, decode[RunResponse](t, w))

	require.Eventually(t, func() bool {
		st, err := f.orch.Status(context.Background(), p.ID)
		return err == nil && st.Project.Status == project.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/advance", "")
	assert.Equal(t, http.StatusConflict, w.Code, "finished project")
}

func TestCreateProject_WithRun(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	w := f.do(t, http.MethodPost, "/api/projects", `{"idea":"X","run":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	p := decode[project.Project](t, w)

	require.Eventually(t, func() bool {
		st, err := f.orch.Status(context.Background(), p.ID)
		return err == nil && st.Project.Status == project.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnknownProject(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	for _, path := range []string{
		"/api/projects/missing",
	} {
		w := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	for _, action := range []string{"advance", "run", "pause", "resume"} {
		w := f.do(t, http.MethodPost, "/api/projects/missing/"+action, "")
		assert.Equal(t, http.StatusNotFound, w.Code, action)
	}
}

func TestAdvance_NoDelegatesIsServerError(t *testing.T) {
	f := newFixture(t, fakeSource{}, nil)
	p := f.create(t, "X")

	w := f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/advance", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", orchestrator.ErrProjectNotFound, http.StatusNotFound},
		{"wrapped paused", errors.Join(errors.New("ctx"), orchestrator.ErrProjectPaused), http.StatusConflict},
		{"terminal", orchestrator.ErrProjectTerminal, http.StatusConflict},
		{"run in progress", orchestrator.ErrRunInProgress, http.StatusConflict},
		{"classified with status", &resilience.Error{Kind: resilience.KindValidation, StatusCode: http.StatusUnprocessableEntity}, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestDelegates(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	w := f.do(t, http.MethodGet, "/api/delegates", "")
	require.Equal(t, http.StatusOK, w.Code)
	descs := decode[[]core.Descriptor](t, w)
	require.Len(t, descs, 6)
	assert.Equal(t, project.StageIdeation, descs[0].Stage)
}

func TestHealth(t *testing.T) {
	t.Run("ok without breakers", func(t *testing.T) {
		f := newFixture(t, allStages(), nil)
		w := f.do(t, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[HealthResponse](t, w)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "test", resp.Version)
		assert.Empty(t, resp.Services)
	})

	t.Run("degraded with an open breaker", func(t *testing.T) {
		f := newFixture(t, allStages(), fixedHealth{
			{Service: "openai", State: resilience.StateClosed},
			{Service: "ollama", State: resilience.StateOpen, ConsecutiveFailures: 5},
		})
		w := f.do(t, http.MethodGet, "/api/health", "")
		resp := decode[HealthResponse](t, w)
		assert.Equal(t, "degraded", resp.Status)
		assert.Len(t, resp.Services, 2)
	})
}

func TestCORS(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	r := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCheckWSOrigin(t *testing.T) {
	f := newFixture(t, allStages(), nil)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://example.com", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, f.srv.checkWSOrigin(r), tt.origin)
	}
}

type wireEnvelope struct {
	Type    events.Type     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readEnvelope(t *testing.T, c *websocket.Conn) wireEnvelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env wireEnvelope
	require.NoError(t, c.ReadJSON(&env))
	return env
}

func TestWebSocket_SubscribeReceivesStageEvents(t *testing.T) {
	f := newFixture(t, allStages(), nil)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	p := f.create(t, "X")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	env := readEnvelope(t, c)
	require.Equal(t, events.TypeConnectionEstablished, env.Type)

	require.NoError(t, c.WriteJSON(map[string]any{
		"type":    events.ClientSubscribe,
		"payload": events.SubscribePayload{ProjectID: p.ID},
	}))
	env = readEnvelope(t, c)
	require.Equal(t, events.TypeSubscriptionConfirmed, env.Type)
	require.Equal(t, 1, f.broadcaster.Subscribers(p.ID))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/projects/"+p.ID+"/advance", bytes.NewReader(nil))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []events.Type
	for {
		env := readEnvelope(t, c)
		got = append(got, env.Type)
		if env.Type == events.TypeStageComplete {
			var payload events.StageCompletePayload
			require.NoError(t, json.Unmarshal(env.Payload, &payload))
			assert.Equal(t, p.ID, payload.ProjectID)
			assert.Equal(t, 1, payload.CompletedTasks)
			break
		}
	}
	assert.Equal(t, events.TypeProjectStart, got[0])
	assert.Contains(t, got, events.TypeArtifactCreate)
	assert.Contains(t, got, events.TypeTaskUpdate)
}

func TestWebSocket_PingAndBadMessage(t *testing.T) {
	f := newFixture(t, allStages(), nil)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Equal(t, events.TypeConnectionEstablished, readEnvelope(t, c).Type)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, events.TypePong, readEnvelope(t, c).Type)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, events.TypeError, readEnvelope(t, c).Type)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe:project","payload":{}}`)))
	assert.Equal(t, events.TypeError, readEnvelope(t, c).Type)

	_ = c.Close()
	assert.Eventually(t, func() bool { return f.broadcaster.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
