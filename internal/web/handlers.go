package web

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/divotmaker/flighthook/internal/schema"
)

//go:embed dashboard
var dashboardFS embed.FS

func (a *Actor) routes() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(dashboardFS, "dashboard")
	if err == nil {
		mux.Handle("GET /", http.FileServer(http.FS(static)))
	}

	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/shots", a.handleShots)
	mux.HandleFunc("POST /api/shots/convert", a.handleConvertShot)
	mux.HandleFunc("POST /api/mode", a.rateLimited(a.handleSetMode))
	mux.HandleFunc("GET /api/settings", a.handleGetSettings)
	mux.HandleFunc("POST /api/settings", a.rateLimited(a.handleReplaceSettings))
	mux.HandleFunc("GET /api/ws", a.handleWebSocket)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	Actors map[schema.ActorID]actorProjection `json:"actors"`
	Mode   schema.Mode                        `json:"mode,omitempty"`
}

func (a *Actor) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.projMu.RLock()
	actors := make(map[schema.ActorID]actorProjection, len(a.projection))
	for id, p := range a.projection {
		actors[id] = p
	}
	mode := a.mode
	a.projMu.RUnlock()

	writeJSON(w, http.StatusOK, statusResponse{Actors: actors, Mode: mode})
}

func (a *Actor) handleShots(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	shots := a.ring.last(limit)
	if units := r.URL.Query().Get("units"); units == "imperial" {
		for i := range shots {
			shots[i] = convertShot(shots[i], schema.UnitsImperial)
		}
	}
	writeJSON(w, http.StatusOK, shots)
}

func (a *Actor) handleConvertShot(w http.ResponseWriter, r *http.Request) {
	var shot schema.Shot
	if err := json.NewDecoder(r.Body).Decode(&shot); err != nil {
		http.Error(w, "invalid shot payload", http.StatusBadRequest)
		return
	}
	units := schema.UnitsMetric
	if r.URL.Query().Get("units") == "imperial" {
		units = schema.UnitsImperial
	}
	writeJSON(w, http.StatusOK, convertShot(shot, units))
}

func convertShot(s schema.Shot, units schema.DefaultUnits) schema.Shot {
	if units == schema.UnitsImperial {
		s.Ball.LaunchSpeed = s.Ball.LaunchSpeed.ToMPH()
		if s.Ball.CarryDistance != nil {
			v := s.Ball.CarryDistance.ToYards()
			s.Ball.CarryDistance = &v
		}
		if s.Ball.TotalDistance != nil {
			v := s.Ball.TotalDistance.ToYards()
			s.Ball.TotalDistance = &v
		}
		if s.Ball.Height != nil {
			v := s.Ball.Height.ToYards()
			s.Ball.Height = &v
		}
		if s.Ball.Roll != nil {
			v := s.Ball.Roll.ToYards()
			s.Ball.Roll = &v
		}
	} else {
		s.Ball.LaunchSpeed = s.Ball.LaunchSpeed.ToMetersPerSecond()
		if s.Ball.CarryDistance != nil {
			v := s.Ball.CarryDistance.ToMeters()
			s.Ball.CarryDistance = &v
		}
		if s.Ball.TotalDistance != nil {
			v := s.Ball.TotalDistance.ToMeters()
			s.Ball.TotalDistance = &v
		}
		if s.Ball.Height != nil {
			v := s.Ball.Height.ToMeters()
			s.Ball.Height = &v
		}
		if s.Ball.Roll != nil {
			v := s.Ball.Roll.ToMeters()
			s.Ball.Roll = &v
		}
	}
	return s
}

type setModeRequest struct {
	Mode schema.Mode `json:"mode"`
}

func (a *Actor) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid mode payload", http.StatusBadRequest)
		return
	}
	mode := req.Mode
	a.sender.Send(schema.Event{Kind: schema.KindSetMode, SetMode: &mode})
	w.WriteHeader(http.StatusAccepted)
}

func (a *Actor) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.shared.Config.Snapshot())
}

type replaceSettingsResponse struct {
	Restarted []schema.ActorID `json:"restarted"`
	Stopped   []schema.ActorID `json:"stopped"`
}

// handleReplaceSettings implements the only request-reply path over the
// bus: it issues a ConfigCommand{ReplaceAll, request_id} and awaits a
// matching ConfigOutcome within configReplyTimeout.
func (a *Actor) handleReplaceSettings(w http.ResponseWriter, r *http.Request) {
	var cfg schema.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid configuration payload", http.StatusBadRequest)
		return
	}

	requestID := newRequestID()
	a.sender.Send(schema.Event{Kind: schema.KindConfigCommand, ConfigCommand: &schema.ConfigCommand{
		RequestID: requestID, Action: schema.ActionReplaceAll, Replacement: &cfg,
	}})

	outcome, ok := a.awaitOutcome(requestID)
	if !ok {
		// Timeout: the caller cannot distinguish this from a no-op
		// reconciliation; the next GET /api/settings reveals ground truth.
		writeJSON(w, http.StatusOK, replaceSettingsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, replaceSettingsResponse{Restarted: outcome.Restarted, Stopped: outcome.Stopped})
}

func (a *Actor) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !a.limiterFor(ip).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// limiterFor returns the per-IP token-bucket limiter, creating one on
// first use (reference: 2 requests/sec, burst 5 — mutation endpoints are
// operator-driven, not high-frequency).
func (a *Actor) limiterFor(ip string) *rate.Limiter {
	a.limiterMu.Lock()
	defer a.limiterMu.Unlock()
	l, ok := a.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(2), 5)
		a.limiters[ip] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
