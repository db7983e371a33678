package jobs

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestAPI(t *testing.T, runner Runner) (*Manager, *httptest.Server) {
	t.Helper()
	manager := NewManager(runner)
	mux := http.NewServeMux()
	NewAPI(manager, nil, t.TempDir()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return manager, server
}

func multipartBody(t *testing.T, filename, contents, lastModified string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if lastModified != "" {
		mw.WriteField("last_modified", lastModified)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(part, contents)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestAPIAddAndList(t *testing.T) {
	_, server := newTestAPI(t, &scriptedRunner{})

	body, contentType := multipartBody(t, "lesson.mp4", "bytes", "")
	resp, err := http.Post(server.URL+"/jobs", contentType, body)
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.FileName != "lesson.mp4" || job.Status != StatusAwaitingMetadata {
		t.Fatalf("job = %+v", job)
	}

	listResp, err := http.Get(server.URL + "/jobs")
	if err != nil {
		t.Fatalf("GET /jobs: %v", err)
	}
	defer listResp.Body.Close()
	var listed struct {
		Jobs           []Job `json:"jobs"`
		IsTranscribing bool  `json:"is_transcribing"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 1 || listed.Jobs[0].ID != job.ID {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestAPIAddRequiresMultipart(t *testing.T) {
	_, server := newTestAPI(t, &scriptedRunner{})

	resp, err := http.Post(server.URL+"/jobs", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAPIAddRejectsResubmittedFile(t *testing.T) {
	_, server := newTestAPI(t, &scriptedRunner{})

	body, contentType := multipartBody(t, "lesson.mp4", "bytes", "1756600000000")
	resp, err := http.Post(server.URL+"/jobs", contentType, body)
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	if job.ID != "lesson.mp4-1756600000000-5" {
		t.Fatalf("job id = %q, mtime field not used for identity", job.ID)
	}

	body, contentType = multipartBody(t, "lesson.mp4", "bytes", "1756600000000")
	again, err := http.Post(server.URL+"/jobs", contentType, body)
	if err != nil {
		t.Fatalf("second POST /jobs: %v", err)
	}
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", again.StatusCode)
	}
}

func TestAPIMetadataStartAndExport(t *testing.T) {
	manager, server := newTestAPI(t, &scriptedRunner{fragments: []string{"ذهبت ", "<u>لأصلي</u>"}})

	body, contentType := multipartBody(t, "lesson.mp4", "bytes", "")
	resp, err := http.Post(server.URL+"/jobs", contentType, body)
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/jobs/"+job.ID+"/metadata",
		strings.NewReader(`{"grade":"1","subject":"عربي","unit":"2"}`))
	metaResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT metadata: %v", err)
	}
	metaResp.Body.Close()
	if metaResp.StatusCode != http.StatusOK {
		t.Fatalf("metadata status = %d", metaResp.StatusCode)
	}

	startResp, err := http.Post(server.URL+"/jobs/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer startResp.Body.Close()
	if startResp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d", startResp.StatusCode)
	}
	var started struct {
		Started int `json:"started"`
	}
	json.NewDecoder(startResp.Body).Decode(&started)
	if started.Started != 1 {
		t.Fatalf("started = %d", started.Started)
	}
	manager.Wait()

	exportResp, err := http.Get(server.URL + "/jobs/" + job.ID + "/export")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	defer exportResp.Body.Close()
	text, _ := io.ReadAll(exportResp.Body)
	if string(text) != "ذهبت لأصلي" {
		t.Fatalf("export = %q", text)
	}
	if ct := exportResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestAPIMetadataUnknownJob(t *testing.T) {
	_, server := newTestAPI(t, &scriptedRunner{})

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/jobs/missing/metadata", strings.NewReader(`{}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT metadata: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAPIClearAll(t *testing.T) {
	manager, server := newTestAPI(t, &scriptedRunner{})

	body, contentType := multipartBody(t, "lesson.mp4", "bytes", "")
	resp, _ := http.Post(server.URL+"/jobs", contentType, body)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/jobs", nil)
	clearResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /jobs: %v", err)
	}
	clearResp.Body.Close()
	if clearResp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", clearResp.StatusCode)
	}
	if got := len(manager.List()); got != 0 {
		t.Fatalf("jobs after clear = %d", got)
	}
}
