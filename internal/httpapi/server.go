// Package httpapi exposes ralph's HTTP/WebSocket surface: a plain
// net/http + http.ServeMux router with App/NewApp/writeJSON conventions.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/forgecrew/ralph/internal/broadcast"
	"github.com/forgecrew/ralph/internal/chatbridge"
	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/pipeline"
	"github.com/forgecrew/ralph/internal/plan"
	"github.com/forgecrew/ralph/internal/registry"
	"github.com/forgecrew/ralph/internal/store"
	"github.com/forgecrew/ralph/internal/vcs"
	"github.com/forgecrew/ralph/internal/workspace"
)

// Options configures the HTTP server.
type Options struct {
	Addr string // host:port to listen on, default ":3000"
}

// App holds the HTTP server and the collaborators its handlers call into.
type App struct {
	Server   *http.Server
	Hub      *broadcast.Hub
	Store    *store.Store
	Registry *registry.Registry
	LLM      *llm.Client
}

// NewApp builds the App and registers every route.
func NewApp(opts Options, st *store.Store, hub *broadcast.Hub, reg *registry.Registry, llmClient *llm.Client) *App {
	addr := opts.Addr
	if addr == "" {
		addr = ":3000"
	}

	mux := http.NewServeMux()
	app := &App{Hub: hub, Store: st, Registry: reg, LLM: llmClient}

	mux.HandleFunc("/api/projects", app.handleProjects)
	mux.HandleFunc("/api/projects/", app.handleProjectScoped)
	mux.HandleFunc("/api/lessons", app.handleLessons)
	mux.HandleFunc("/api/lessons/", app.handleLessonScoped)
	mux.HandleFunc("/api/settings", app.handleSettings)
	mux.Handle("/", websocket.Handler(app.handleWebsocket))

	handler := requestLogMiddleware(mux)

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	app.Server.RegisterOnShutdown(func() {
		st.Close()
	})
	return app
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handleWebsocket emits {type:"info",...} once on open, then forwards every
// broadcast envelope until the client disconnects.
func (a *App) handleWebsocket(ws *websocket.Conn) {
	ch := a.Hub.Subscribe()
	defer a.Hub.Unsubscribe(ch)

	if err := websocket.JSON.Send(ws, map[string]any{
		"type":    "info",
		"payload": map[string]any{"message": "connected"},
	}); err != nil {
		return
	}

	for msg := range ch {
		if err := websocket.JSON.Send(ws, msg); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// handleProjects serves GET/POST /api/projects.
func (a *App) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := a.Store.GetProjects(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, projects)
	case http.MethodPost:
		a.createProject(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) createProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string    `json:"name"`
		Path string    `json:"path"`
		PRD  plan.Plan `json:"prd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name required")
		return
	}

	path := body.Path
	if path == "" {
		cwd, err := filepath.Abs(".")
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		path = filepath.Join(cwd, "Projects", body.Name)
	}

	proj := store.Project{
		ID:       body.Name,
		RootPath: path,
		Plan:     body.PRD,
		Status:   store.StatusCreated,
	}
	if err := a.Store.SaveProject(r.Context(), proj); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.Hub.Publish(pipeline.Envelope{Type: "project_created", ProjectID: proj.ID, Payload: map[string]any{}})
	writeJSON(w, proj)
}

// handleProjectScoped dispatches every /api/projects/{id}[/action] route.
func (a *App) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		a.handleProjectByID(w, r, id)
		return
	}

	action := parts[1]
	switch action {
	case "start":
		a.handleProjectStart(w, r, id)
	case "stop":
		a.handleProjectStop(w, r, id)
	case "init":
		a.handleProjectInit(w, r, id)
	case "generate-prd":
		a.handleGeneratePRD(w, r, id)
	case "update-prd":
		a.handleUpdatePRD(w, r, id)
	case "update-settings":
		a.handleUpdateProjectSettings(w, r, id)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (a *App) handleProjectByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	proj, err := a.Store.GetProject(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, proj)
}

func (a *App) handleProjectStart(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, err := a.Registry.GetOrCreate(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	// The Pipeline's goroutine must outlive this request, so it gets a
	// detached context rather than r.Context().
	if err := p.Start(context.Background()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (a *App) handleProjectStop(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, ok := a.Registry.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "project not running")
		return
	}
	if err := p.Stop(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// handleProjectInit materialises the workspace and performs the initial
// commit.
func (a *App) handleProjectInit(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	proj, err := a.Store.GetProject(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	ws := workspace.New(proj.RootPath)
	planData, err := json.MarshalIndent(proj.Plan, "", "  ")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := ws.WriteFile(pipeline.PRDFile, string(planData)); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	vcsClient, err := vcs.New(r.Context(), proj.RootPath)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := vcsClient.Init(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	proj.Status = store.StatusInitialized
	if err := a.Store.SaveProject(r.Context(), proj); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.Hub.Publish(pipeline.Envelope{Type: "project_initialized", ProjectID: id, Payload: map[string]any{}})
	writeJSON(w, map[string]any{"ok": true})
}

// handleGeneratePRD synchronously asks the LLM for a Plan and returns it.
func (a *App) handleGeneratePRD(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	prompt := fmt.Sprintf(
		"Produce a build plan as a JSON object with a single field \"stages\", "+
			"an array of {name, mission, stories:[{title, description, priority}]}.\n\nREQUEST:\n%s",
		body.Prompt,
	)
	resp, err := a.LLM.Complete(r.Context(), llm.RolePRD, prompt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	p, err := llm.ParseJSON[plan.Plan](resp.Text)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("parsing generated plan: %v", err))
		return
	}
	writeJSON(w, p)
}

func (a *App) handleUpdatePRD(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		PRD plan.Plan `json:"prd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := a.Store.UpdatePlan(r.Context(), id, body.PRD); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	proj, err := a.Store.GetProject(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	a.Hub.Publish(pipeline.Envelope{Type: "prd_updated", ProjectID: id, Payload: map[string]any{}})
	writeJSON(w, proj)
}

// handleUpdateProjectSettings patches the per-project settings, which today
// is the single UseHumanReview flag.
func (a *App) handleUpdateProjectSettings(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Updates struct {
			UseHumanReview *bool `json:"useHumanReview"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	proj, err := a.Store.GetProject(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if body.Updates.UseHumanReview != nil {
		proj.UseHumanReview = *body.Updates.UseHumanReview
	}
	if err := a.Store.SaveProject(r.Context(), proj); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, proj)
}

func (a *App) handleLessons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lessons, err := a.Store.GetLessons(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, lessons)
}

// handleLessonScoped serves DELETE /api/lessons/:timestamp. The path
// segment is the lesson's store-assigned ID (Lesson.ID), not its timestamp.
func (a *App) handleLessonScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/api/lessons/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid lesson id")
		return
	}
	if err := a.Store.DeleteLesson(r.Context(), id); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.Store.GetSettings(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, settings)
	case http.MethodPost:
		var settings store.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := a.Store.UpdateSettings(r.Context(), settings); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.reinitChatBridge(settings)
		a.Hub.Publish(pipeline.Envelope{Type: "settings_updated", Payload: map[string]any{}})
		writeJSON(w, settings)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// reinitChatBridge rebuilds the Registry's bridge from the freshly-saved
// settings. Pipelines already running keep whatever bridge they were
// constructed with; only Pipelines created after this call see the new one.
func (a *App) reinitChatBridge(settings store.Settings) {
	if !settings.Chat.Enabled {
		// nil, not chatbridge.NullBridge{}: approval.Oracle treats a nil
		// Bridge as "auto-approve", whereas a non-nil Bridge is expected to
		// eventually call Resolve, which NullBridge never does.
		a.Registry.SetBridge(nil)
		return
	}
	a.Registry.SetBridge(chatbridge.NewPollBridge("", settings.Chat.ChatID))
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Server.Shutdown(ctx)
}
