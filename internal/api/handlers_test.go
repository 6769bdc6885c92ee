package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/filesmile/backend/internal/barcode"
	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pdf"
	"github.com/filesmile/backend/internal/session"
	"github.com/filesmile/backend/internal/testutil"
	"github.com/filesmile/backend/internal/upload"
)

type fakeFinder struct {
	forms []string
	docs  []models.MatchedDocument
	err   error
}

func (f *fakeFinder) Search(ctx context.Context, form, term string) ([]models.MatchedDocument, error) {
	f.forms = append(f.forms, form+"|"+term)
	return f.docs, f.err
}

type testServer struct {
	e        *echo.Echo
	erp      *testutil.FakeERP
	sessions *session.Manager
	finder   *fakeFinder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	erp := testutil.NewFakeERP()
	erp.Prefixes = []models.FormPrefixInfo{
		{EntityName: "DOCUMENTS_D", Title: "Shipments", Prefix: "SH"},
	}
	erp.AddDocument("DOCUMENTS_D", "SH25001367", models.MatchedDocument{FormKey: "'SH25001367'", DocNo: "SH25001367"})

	detector := barcode.NewDetector(nil, nil, zerolog.Nop())
	extractor := pdf.NewExtractor(detector)
	sessions := session.NewManager(session.Services{
		Catalog:   erp,
		Detector:  testutil.NewTextDetector(),
		Extractor: extractor,
		Searcher:  erp,
		Uploader:  erp,
	}, session.Config{SpoolDir: t.TempDir()}, zerolog.Nop())

	ts := &testServer{e: echo.New(), erp: erp, sessions: sessions, finder: &fakeFinder{}}
	SetupMiddleware(ts.e)
	RegisterRoutes(ts.e, NewHandlers(&Dependencies{
		Sessions: sessions,
		Jobs:     upload.NewManager(zerolog.Nop()),
		Detector: detector,
		Splitter: extractor,
		Finder:   ts.finder,
		Version:  "test",
		Log:      zerolog.Nop(),
	}))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, path, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

// newSession creates a session and waits for its prefix cache.
func (ts *testServer) newSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"user": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sum models.BatchSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.NotEmpty(t, sum.ID)

	s, err := ts.sessions.Get(sum.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Cache.Status() == models.CacheStatusReady
	}, 2*time.Second, 5*time.Millisecond)
	return sum.ID
}

func (ts *testServer) addFile(t *testing.T, sid, name, content string) models.BarcodeFile {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files", addFileRequest{
		Name: name,
		Data: base64.StdEncoding.EncodeToString([]byte(content)),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f models.BarcodeFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	return f
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func batch(t *testing.T, ts *testServer, sid string) batchResponse {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
	assert.Contains(t, rec.Body.String(), `"sessions":0`)
}

func TestAddFile(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)

	tests := []struct {
		name       string
		request    addFileRequest
		wantStatus int
		errCode    string
	}{
		{
			name:       "base64 image",
			request:    addFileRequest{Name: "scan.png", Data: base64.StdEncoding.EncodeToString([]byte("SH25001367"))},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "data URL",
			request:    addFileRequest{Name: "scan.jpg", Data: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("x"))},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty name",
			request:    addFileRequest{Data: "eA=="},
			wantStatus: http.StatusBadRequest,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "empty data",
			request:    addFileRequest{Name: "a.png"},
			wantStatus: http.StatusBadRequest,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "invalid base64",
			request:    addFileRequest{Name: "a.png", Data: "not-valid-base64!!!"},
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
		{
			name:       "damaged PDF",
			request:    addFileRequest{Name: "a.pdf", Data: base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 garbage"))},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files", tt.request)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
				return
			}
			var f models.BarcodeFile
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
			assert.Equal(t, tt.request.Name, f.FileName)
			assert.Equal(t, models.FileStatusPending, f.Status)
		})
	}

	assert.Len(t, batch(t, ts, sid).Files, 3)
}

func TestAddFile_UnreadablePDFIsDetectedAsNotFound(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	f := ts.addFile(t, sid, "damaged.pdf", "%PDF-1.4 garbage")
	assert.Equal(t, models.FileTypePDF, f.FileType)
	assert.Equal(t, models.FileStatusPending, f.Status)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.BarcodeFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.FileStatusNotFound, got.Status)
	assert.Empty(t, got.Error)
}

func TestAddFile_UnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/sessions/nope/files", addFileRequest{Name: "a", Data: "eA=="})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestAddFileBinary_PDF(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)

	rec := ts.upload(t, "/api/sessions/"+sid+"/files/binary", "letter.pdf", testutil.BuildPDF("Ref SH25001367"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f models.BarcodeFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, models.FileTypePDF, f.FileType)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, models.FileStatusMatched, f.Status)
	assert.Equal(t, "text", f.Method)
	assert.Equal(t, 1, f.PageNumber)
}

func TestDetectFile(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	f := ts.addFile(t, sid, "scan.png", "SH-25001367")

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.BarcodeFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.FileStatusMatched, got.Status)
	assert.Equal(t, "SH", got.Prefix)
	require.NotNil(t, got.MatchedDocument)
	assert.Equal(t, "DOCUMENTS_D", got.MatchedDocument.Form)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/missing/detect", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetectAll(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	ok := ts.addFile(t, sid, "a.png", "SH25001367")
	missing := ts.addFile(t, sid, "b.png", "no barcode")
	unknown := ts.addFile(t, sid, "c.png", "ZZ1")

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/detect", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		b := batch(t, ts, sid)
		return !b.Session.Processing && b.Counts[models.FileStatusPending] == 0
	}, 5*time.Second, 10*time.Millisecond)

	b := batch(t, ts, sid)
	status := map[string]models.FileStatus{}
	errs := map[string]string{}
	for _, f := range b.Files {
		status[f.ID] = f.Status
		errs[f.ID] = f.Error
	}
	assert.Equal(t, models.FileStatusMatched, status[ok.ID])
	assert.Equal(t, models.FileStatusNotFound, status[missing.ID])
	assert.Equal(t, models.FileStatusError, status[unknown.ID])
	assert.Contains(t, errs[unknown.ID], "ZZ")
	assert.Equal(t, 1, b.Session.MatchedCount)
}

func TestDetectAll_CacheNotReady(t *testing.T) {
	ts := newTestServer(t)
	ts.erp.ListErr = errors.New("erp down")

	rec := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sum models.BatchSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	s, err := ts.sessions.Get(sum.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Cache.Status() == models.CacheStatusError
	}, 2*time.Second, 5*time.Millisecond)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sum.ID+"/detect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sum.ID+"/prefixes/reload", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "erp down")

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sum.ID+"/prefixes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pr prefixesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pr))
	assert.Equal(t, models.CacheStatusError, pr.Status)
	assert.Contains(t, pr.Error, "erp down")
}

func TestPrefixes(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)

	ts.erp.Prefixes = append(ts.erp.Prefixes, models.FormPrefixInfo{EntityName: "ORDERS", Title: "Orders", Prefix: "PO"})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/prefixes/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pr prefixesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pr))
	assert.Equal(t, models.CacheStatusReady, pr.Status)
	assert.Equal(t, 2, pr.Size)
	require.Len(t, pr.Entries, 2)
	assert.Equal(t, "PO", pr.Entries[0].Prefix)
	assert.NotNil(t, pr.LoadedAt)
}

func TestSelectAndNavigate(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	ts.addFile(t, sid, "a.png", "x")
	ts.addFile(t, sid, "b.png", "y")
	last := ts.addFile(t, sid, "c.png", "z")

	var sel selectionResponse
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/select", map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, 2, sel.Selected)
	require.NotNil(t, sel.File)
	assert.Equal(t, last.ID, sel.File.ID)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/navigate/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, 2, sel.Selected, "no wrap past the end")

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/navigate/first", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, 0, sel.Selected)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/navigate/sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/select", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestRemoveRequeueAndClear(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	a := ts.addFile(t, sid, "a.png", "nothing")
	b := ts.addFile(t, sid, "b.png", "x")

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+a.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+a.ID+"/requeue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var f models.BarcodeFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, models.FileStatusPending, f.Status)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sid+"/files/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sid+"/files/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sid+"/files", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, batch(t, ts, sid).Files)
}

func TestSearchAndManualMatch(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	f := ts.addFile(t, sid, "a.png", "SH999")

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, models.FileStatusError, f.Status)

	doc := models.MatchedDocument{Form: "DOCUMENTS_D", FormKey: "'SH999'", DocNo: "SH999"}
	ts.finder.docs = []models.MatchedDocument{doc}
	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sid+"/search?prefix=sh&q=999", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var docs []models.MatchedDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Equal(t, []models.MatchedDocument{doc}, docs)
	assert.Equal(t, []string{"DOCUMENTS_D|999"}, ts.finder.forms)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sid+"/search?prefix=QQ&q=1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sid+"/search?prefix=SH", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/match", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, models.FileStatusMatched, f.Status)
	assert.Empty(t, f.Error)
	require.NotNil(t, f.MatchedDocument)
	assert.Equal(t, models.DefaultExtFilesForm, f.MatchedDocument.ExtFilesForm)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/match", models.MatchedDocument{Form: "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadJob(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	f := ts.addFile(t, sid, "a.png", "SH25001367")
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/files/"+f.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/upload", map[string]string{"mode": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+sid+"/upload", map[string]string{"mode": "attach"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job upload.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/uploads/"+job.ID, nil)
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &job) != nil {
			return false
		}
		return job.Status != upload.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, upload.StatusComplete, job.Status)
	assert.Equal(t, 1, job.Uploaded)
	attachments, _ := ts.erp.Uploads()
	assert.Equal(t, 1, attachments)

	b := batch(t, ts, sid)
	assert.Equal(t, models.FileStatusUploaded, b.Files[0].Status)
	assert.Equal(t, float64(100), b.UploadProgress)

	rec = ts.do(t, http.MethodGet, "/api/uploads/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionSnapshots(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)
	ts.addFile(t, sid, "a.png", "SH1")

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+sid+"/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var decoded map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	files, ok := decoded["files"].([]interface{})
	require.True(t, ok, "files key: %v", decoded)
	assert.Len(t, files, 1)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sid+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "data: {"))

	rec = ts.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sid)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.newSession(t)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseBarcode(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name      string
		text      string
		wantFound bool
		wantValue string
		wantCode  int
	}{
		{name: "embedded in text", text: "Invoice for SH-25001367 attached", wantFound: true, wantValue: "SH-25001367", wantCode: http.StatusOK},
		{name: "no barcode", text: "hello world", wantCode: http.StatusOK},
		{name: "empty", text: "", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/barcode/parse", map[string]string{"text": tt.text})
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp parseBarcodeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantFound, resp.Found)
			if tt.wantFound {
				require.NotNil(t, resp.Barcode)
				assert.Equal(t, tt.wantValue, resp.Barcode.Value)
				assert.Equal(t, models.FormatText, resp.Barcode.Format)
			}
		})
	}
}

func TestPDFTools(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, "/api/pdf/page-count", "a.pdf", testutil.BuildPDF("a", "b", "c"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pageCount":3}`, rec.Body.String())

	rec = ts.upload(t, "/api/pdf/page-count", "a.pdf", []byte("garbage"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pageCount":0}`, rec.Body.String())

	rec = ts.upload(t, "/api/pdf/split", "a.pdf", testutil.BuildPDF("one", "two"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		PageCount int         `json:"pageCount"`
		Pages     []splitPage `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.PageCount)
	for i, p := range resp.Pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.True(t, strings.HasPrefix(p.DataURL, "data:image/png;base64,"))
	}

	rec = ts.upload(t, "/api/pdf/split", "a.pdf", []byte("garbage"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/split", nil)
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "api error", err: NewConflictError("busy"), wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "echo error", err: echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), wantStatus: http.StatusMethodNotAllowed, wantCode: "HTTP_ERROR"},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			ErrorHandler(tt.err, c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}
