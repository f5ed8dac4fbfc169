package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"loggerctl/command"
	"loggerctl/control"
	"loggerctl/redis"
	"loggerctl/services"
)

type fakeService struct {
	resp *command.Response
	err  error
	got  services.CommandRequest
}

func (f *fakeService) Execute(ctx context.Context, req services.CommandRequest) (*command.Response, error) {
	f.got = req
	return f.resp, f.err
}

func newTestRouter(svc CommandService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewAPIHandler(svc, logger), logger)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, StandardResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp StandardResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestHealthAndCatalog(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Errorf("Unexpected health response %d %+v", rec.Code, resp)
	}

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/commands", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["count"] != float64(len(command.Kinds())) {
		t.Errorf("Expected every catalog kind, got %v", data["count"])
	}

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || resp.Type != TypeUnknownRoute {
		t.Errorf("Expected unknown route 404, got %d %+v", rec.Code, resp)
	}

	rec, _ = doRequest(t, router, http.MethodOptions, "/api/v1/health", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS preflight, got %d", rec.Code)
	}
}

func TestSendCommand(t *testing.T) {
	t.Run("Passes the request through", func(t *testing.T) {
		svc := &fakeService{resp: &command.Response{Success: true, Payload: map[string]any{"success": true}}}
		router := newTestRouter(svc)

		body := `{"model":"cr6","args":["PakBusAddress","2"],"named":{"apply":true},"timeoutSeconds":5}`
		rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/loggers/1234/commands/set-setting", body)
		if rec.Code != http.StatusOK || resp.Status != "success" {
			t.Fatalf("Unexpected response %d %+v", rec.Code, resp)
		}

		want := services.CommandRequest{
			Kind:    "set-setting",
			Serial:  "1234",
			Model:   "cr6",
			Args:    command.Args{Positional: []any{"PakBusAddress", "2"}, Named: map[string]any{"apply": true}},
			Timeout: 5 * time.Second,
		}
		if !reflect.DeepEqual(svc.got, want) {
			t.Errorf("Expected %+v, got %+v", want, svc.got)
		}
	})

	t.Run("Device failure is still 200", func(t *testing.T) {
		svc := &fakeService{resp: &command.Response{Payload: map[string]any{"error": "nope"}, Error: "nope"}}
		rec, resp := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/v1/loggers/1/commands/reboot", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		data, _ := resp.Data.(map[string]any)
		if data["success"] != false || data["error"] != "nope" {
			t.Errorf("Unexpected data %v", data)
		}
	})

	t.Run("Invalid timeout", func(t *testing.T) {
		rec, resp := doRequest(t, newTestRouter(&fakeService{}), http.MethodPost, "/api/v1/loggers/1/commands/reboot", `{"timeoutSeconds":1000}`)
		if rec.Code != http.StatusBadRequest || resp.Type != TypeValidation {
			t.Errorf("Expected 400 validation, got %d %+v", rec.Code, resp)
		}
	})

	t.Run("Malformed body", func(t *testing.T) {
		rec, resp := doRequest(t, newTestRouter(&fakeService{}), http.MethodPost, "/api/v1/loggers/1/commands/reboot", `{"args":`)
		if rec.Code != http.StatusBadRequest || resp.Type != TypeBadRequest {
			t.Errorf("Expected 400 bad request, got %d %+v", rec.Code, resp)
		}
	})

	errorCases := []struct {
		name string
		err  error
		code int
		typ  string
	}{
		{"validation", &command.ValidationError{Command: "os", Field: "url", Message: "required argument missing"}, http.StatusBadRequest, TypeValidation},
		{"unknown kind", fmt.Errorf("%w: x", services.ErrUnknownCommand), http.StatusNotFound, TypeNotFound},
		{"busy", control.ErrBusy, http.StatusConflict, TypeBusy},
		{"lease held", redis.ErrLeaseHeld, http.StatusConflict, TypeBusy},
		{"connectivity", &control.ConnectionError{Op: "connect", Err: errors.New("refused")}, http.StatusBadGateway, TypeConnectivity},
		{"protocol", &command.ProtocolError{Command: "talkThru", Reason: "unknown response from TalkThru"}, http.StatusBadGateway, TypeProtocol},
		{"timeout", fmt.Errorf("reboot: %w", control.ErrNoResponse), http.StatusGatewayTimeout, TypeTimeout},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, TypeInternal},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, newTestRouter(&fakeService{err: tt.err}), http.MethodPost, "/api/v1/loggers/1/commands/reboot", "")
			if rec.Code != tt.code || resp.Type != tt.typ || resp.Status != "error" {
				t.Errorf("Expected %d %s, got %d %+v", tt.code, tt.typ, rec.Code, resp)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", rec.Code)
	}
}
