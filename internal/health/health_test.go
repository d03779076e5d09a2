package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"audio-relay/internal/models"
)

type fixedState models.LinkState

func (s fixedState) State() models.LinkState { return models.LinkState(s) }

func serve(t *testing.T, h *Handler, path string) (int, response) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New(Probe{Name: "link", Source: fixedState(models.Disconnected)})

	code, body := serve(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("got %d %+v", code, body)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		link     models.LinkState
		broker   models.LinkState
		wantCode int
	}{
		{"both connected", models.Connected, models.Connected, http.StatusOK},
		{"link recovering", models.Connecting, models.Connected, http.StatusServiceUnavailable},
		{"broker down", models.Connected, models.Disconnected, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(
				Probe{Name: "link", Source: fixedState(tt.link)},
				Probe{Name: "broker", Source: fixedState(tt.broker)},
			)

			code, body := serve(t, h, "/readyz")
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if len(body.Checks) != 2 {
				t.Errorf("checks = %v", body.Checks)
			}
			if tt.wantCode == http.StatusOK && body.Status != "ok" {
				t.Errorf("status = %q", body.Status)
			}
			if tt.broker == models.Disconnected && body.Checks["broker"] != "fail: state disconnected" {
				t.Errorf("broker check = %q", body.Checks["broker"])
			}
		})
	}
}
