package filter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(t *testing.T, f *HTTPFilter, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.Handler().ServeHTTP(w, req)
	return w
}

func TestHTTPFilter_Analyze(t *testing.T) {
	f := NewHTTPFilter(newTestService(t), zaptest.NewLogger(t), "", 1<<20)

	payload, _ := json.Marshal(map[string]string{"raw": phishMessage})
	w := doRequest(t, f, http.MethodPost, "/api/analyze", string(payload))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		Score      int    `json:"score"`
		RiskLevel  string `json:"riskLevel"`
		Indicators []struct {
			Code string `json:"code"`
		} `json:"indicators"`
		Links []struct {
			Classification string `json:"classification"`
		} `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if got.Score < 80 || got.RiskLevel != "Critical" {
		t.Errorf("expected a critical score, got %d %s", got.Score, got.RiskLevel)
	}
	if len(got.Links) != 1 || got.Links[0].Classification != "mismatch" {
		t.Errorf("expected one mismatch link, got %+v", got.Links)
	}
	if w.Header().Get("X-Processing-ID") == "" {
		t.Error("expected a processing ID header")
	}
}

func TestHTTPFilter_Errors(t *testing.T) {
	f := NewHTTPFilter(newTestService(t), zaptest.NewLogger(t), "", 256)

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"malformed json", "{", http.StatusBadRequest, msgInvalidRequest},
		{"missing raw", "{}", http.StatusBadRequest, msgProvideRaw},
		{"raw not a string", `{"raw": 42}`, http.StatusBadRequest, msgProvideRaw},
		{"too short", `{"raw": "  hi  "}`, http.StatusBadRequest, msgProvideRaw},
		{"too large", `{"raw": "` + strings.Repeat("a", 512) + `"}`, http.StatusRequestEntityTooLarge, msgTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, f, http.MethodPost, "/api/analyze", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON response: %v", err)
			}
			if body["error"] != tt.msg {
				t.Errorf("expected error %q, got %q", tt.msg, body["error"])
			}
		})
	}
}

func TestHTTPFilter_Health(t *testing.T) {
	f := NewHTTPFilter(newTestService(t), zaptest.NewLogger(t), "", 0)

	w := doRequest(t, f, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("expected healthy response, got %d %s", w.Code, w.Body.String())
	}
}
