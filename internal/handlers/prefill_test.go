package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Yonad91/vital-events-sub002/internal/services"
)

type stubPrefillService struct {
	prefillFunc func(ctx context.Context, cmd services.PrefillCommand) (services.AutofillResult, error)
}

func (s *stubPrefillService) Prefill(ctx context.Context, cmd services.PrefillCommand) (services.AutofillResult, error) {
	return s.prefillFunc(ctx, cmd)
}

func TestPrefillHandlersSuccess(t *testing.T) {
	var captured services.PrefillCommand
	service := &stubPrefillService{
		prefillFunc: func(_ context.Context, cmd services.PrefillCommand) (services.AutofillResult, error) {
			captured = cmd
			return services.AutofillResult{
				ShouldAutofill: true,
				Role:           services.PersonWife,
				Patch:          map[string]any{"deceasedNameAm": "አልማዝ"},
				Merged:         map[string]any{"deceasedNameAm": "አልማዝ", "deathPlace": "Adama"},
			}, nil
		},
	}
	router := NewRouter(WithPrefillRoutes(NewPrefillHandlers(nil, service).Routes))

	body := `{"sourceEventId":" mar-1 ","idNumber":"a1","form":{"deathPlace":"Adama"}}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/prefill/death", strings.NewReader(body)), "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Target != services.PrefillTargetDeath || captured.SourceEventID != "mar-1" || captured.IDNumber != "a1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Form["deathPlace"] != "Adama" {
		t.Fatalf("expected form forwarded, got %v", captured.Form)
	}

	var payload prefillResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.ShouldAutofill || payload.Role != services.PersonWife || payload.Merged["deathPlace"] != "Adama" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPrefillHandlersConflictIsOK(t *testing.T) {
	service := &stubPrefillService{
		prefillFunc: func(context.Context, services.PrefillCommand) (services.AutofillResult, error) {
			return services.AutofillResult{Error: "both spouses cannot come from the wife of the same marriage"}, nil
		},
	}
	router := NewRouter(WithPrefillRoutes(NewPrefillHandlers(nil, service).Routes))

	req := withUser(httptest.NewRequest(http.MethodPost, "/prefill/divorce", strings.NewReader(`{"sourceEventId":"mar-1","idNumber":"A1","spouseSlot":"spouse2"}`)), "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["shouldAutofill"] != false || payload["error"] == "" || payload["error"] == nil {
		t.Fatalf("expected structured conflict, got %v", payload)
	}
	if _, ok := payload["patch"].(map[string]any); !ok {
		t.Fatalf("expected empty patch object, got %v", payload["patch"])
	}
}

func TestPrefillHandlersErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid", err: fmt.Errorf("%w: unknown target", services.ErrPrefillInvalidInput), status: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: nope", services.ErrPrefillSourceNotFound), status: http.StatusNotFound},
		{name: "unexpected", err: fmt.Errorf("firestore down"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubPrefillService{
				prefillFunc: func(context.Context, services.PrefillCommand) (services.AutofillResult, error) {
					return services.AutofillResult{}, tc.err
				},
			}
			router := NewRouter(WithPrefillRoutes(NewPrefillHandlers(nil, service).Routes))
			req := withUser(httptest.NewRequest(http.MethodPost, "/prefill/adoption", strings.NewReader(`{"sourceEventId":"x"}`)), "user-1")
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestPrefillHandlersInvalidJSON(t *testing.T) {
	router := NewRouter(WithPrefillRoutes(NewPrefillHandlers(nil, &stubPrefillService{}).Routes))
	req := withUser(httptest.NewRequest(http.MethodPost, "/prefill/death", strings.NewReader(`{"form":`)), "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
