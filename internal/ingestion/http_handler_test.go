package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/accessmap/internal/domain"
)

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/validate", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestReadUploadReportsCappedBody(t *testing.T) {
	req := uploadRequest(t, "big.csv", strings.Repeat("a,b\n", 4096))
	req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 1024)

	_, _, err := ReadUpload(req)

	var tooLarge *UploadTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected UploadTooLargeError, got %v", err)
	}
	if tooLarge.Limit != 1024 || tooLarge.Size <= tooLarge.Limit {
		t.Fatalf("unexpected size report %+v", tooLarge)
	}
}

func TestServiceRejectOversized(t *testing.T) {
	logRepo := &stubLogRepo{}
	service := NewService(logRepo, nil, Options{MaxSizeBytes: 4096})

	result := service.RejectOversized(context.Background(), &UploadTooLargeError{Size: 9000, Limit: 2048})

	if result.Valid || result.Loaded {
		t.Fatalf("expected oversized upload to fail, got %+v", result)
	}
	issue, ok := findIssue(result.Issues, domain.IssueFileTooLarge)
	if !ok || len(result.Issues) != 1 {
		t.Fatalf("expected a single file too large issue, got %+v", result.Issues)
	}
	if !strings.Contains(issue.Message, "maximum is 2048 bytes") {
		t.Fatalf("expected the smaller cap in the message, got %q", issue.Message)
	}
	if len(logRepo.entries) != 1 {
		t.Fatalf("expected issue to be recorded, got %+v", logRepo.entries)
	}
}

func TestHandlerErrorsAreJSON(t *testing.T) {
	handler := NewHTTPHandler(newTestService(nil))

	tests := map[string]struct {
		req  *http.Request
		want int
	}{
		"wrong method":  {req: httptest.NewRequest(http.MethodGet, "/validate", nil), want: http.StatusMethodNotAllowed},
		"not multipart": {req: httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader("x")), want: http.StatusBadRequest},
		"bad limit":     {req: uploadRequest(t, "a.csv", "a,b\n"), want: http.StatusBadRequest},
	}
	tests["bad limit"].req.URL.RawQuery = "limit=abc"

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tt.req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected JSON error body, got %q", rec.Body.String())
			}
		})
	}
}
