package health

import (
	"net/http"

	"matchmaker-client/metrics"
	"matchmaker-client/session"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

// StatusFunc returns the session view served on /status.
type StatusFunc func() session.Snapshot

type statusResponse struct {
	State      string   `json:"state"`
	TicketID   string   `json:"ticketId,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CreateTime string   `json:"createTime,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Target     string   `json:"target,omitempty"`
	Refreshing bool     `json:"refreshing"`
	Online     bool     `json:"online"`
	CanCreate  bool     `json:"canCreate"`
	CanDelete  bool     `json:"canDelete"`
	LastError  string   `json:"lastError,omitempty"`
}

// NewRouter serves liveness, readiness, the session status and Prometheus metrics.
// Readiness is reported once status is non-nil.
func NewRouter(status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			http.Error(w, "no session", http.StatusServiceUnavailable)
			return
		}
		snap := status()
		resp := statusResponse{
			State:      snap.State.String(),
			Mode:       snap.Mode,
			Target:     snap.Target,
			Refreshing: snap.Refreshing,
			Online:     snap.Online(),
			CanCreate:  snap.CanCreate(),
			CanDelete:  snap.CanDelete(),
			LastError:  snap.LastError,
		}
		if snap.Ticket != nil {
			resp.TicketID = snap.Ticket.ID
			resp.Tags = snap.Ticket.SearchFields.Tags
			resp.CreateTime = snap.Ticket.CreateTime
		}
		w.Header().Set("Content-Type", "application/json")
		_ = jsoniter.NewEncoder(w).Encode(resp)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
