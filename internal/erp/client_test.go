package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filesmile/backend/internal/models"
)

const root = "/odata/tabula.ini/demo/"

type fakeServer struct {
	mu       sync.Mutex
	posts    map[string]map[string]string
	metaHits int
	queries  []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if user, pass, ok := r.BasicAuth(); !ok || user != "api" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, root)
	q := r.URL.Query()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, path+"?"+q.Get("$filter"))

	write := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"value": v})
	}

	switch {
	case r.Method == http.MethodGet && path == "SOF_FSFORMS" && q.Get("$filter") == "":
		write([]map[string]any{
			{"ENAME": "AINVOICES", "TITLE": "Invoices", "SUBENAME": "", "PREFIX": "IN"},
			{"ENAME": "DOCUMENTS_D", "TITLE": "Shipments", "SUBENAME": "EXTFILES", "PREFIX": "SH"},
			{"ENAME": "NOTES", "TITLE": "Notes", "PREFIX": nil},
		})
	case r.Method == http.MethodGet && path == "SOF_FSFORMS":
		f.metaHits++
		if q.Get("$filter") != "ENAME eq 'AINVOICES'" {
			write([]any{})
			return
		}
		write([]map[string]any{{
			"ENAME": "AINVOICES", "TITLE": "Invoices", "SUBENAME": "",
			"SOF_FSCLMNS_SUBFORM": []map[string]any{
				{"SOF_NAME": "KLINE", "TYPE": "INT", "KNUM": 3},
				{"SOF_NAME": "IVNUM", "TYPE": "CHAR", "KNUM": 1, "DOC_FLAG": "Y", "SEARCH_FLAG": "Y"},
				{"SOF_NAME": "IVTYPE", "TYPE": "CHAR", "KNUM": 2},
				{"SOF_NAME": "IVDATE", "TYPE": "DATE", "DATE_FLAG": "Y"},
				{"SOF_NAME": "CDES", "TYPE": "CHAR", "CS_FLAG": "Y", "SEARCH_FLAG_B": "Y"},
				{"SOF_NAME": "TOTPRICE", "TYPE": "REAL", "SEARCH_FLAG": "Y"},
			},
		}})
	case r.Method == http.MethodGet && path == "AINVOICES":
		if q.Get("$filter") == "IVNUM eq 'IN194000012'" {
			if q.Get("$top") != "1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			write([]map[string]any{{"IVNUM": "IN194000012", "IVTYPE": "A", "KLINE": 3, "IVDATE": "2024-05-01", "CDES": "Acme Ltd"}})
			return
		}
		if strings.Contains(q.Get("$filter"), "*acme*") {
			write([]map[string]any{{"IVNUM": "IN1", "IVTYPE": "A", "KLINE": 1}, {"IVNUM": "IN2", "IVTYPE": "A", "KLINE": 2}})
			return
		}
		write([]any{})
	case r.Method == http.MethodGet && path == "LOGPART":
		write([]any{})
	case r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.posts == nil {
			f.posts = map[string]map[string]string{}
		}
		f.posts[path] = body
		if body["EXTFILEDES"] == "reject" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"","message":"File type not allowed"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"EXTFILENUM": 12}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, password string) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:  srv.URL + "/odata/",
		Company:  "demo",
		Username: "api",
		Password: password,
		AppID:    "APP044",
		AppKey:   "KEY",
	}, zerolog.Nop())
	require.NoError(t, err)
	return c, fs
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Company: "demo"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "http://erp"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestListFormPrefixes(t *testing.T) {
	c, _ := newTestClient(t, "secret")

	got, err := c.ListFormPrefixes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.FormPrefixInfo{
		{EntityName: "AINVOICES", Title: "Invoices", Prefix: "IN"},
		{EntityName: "DOCUMENTS_D", Title: "Shipments", SubEntityName: "EXTFILES", Prefix: "SH"},
	}, got)
}

func TestSearchDocuments(t *testing.T) {
	c, fs := newTestClient(t, "secret")
	form := models.FormPrefixInfo{EntityName: "AINVOICES", Prefix: "IN"}

	docs, err := c.SearchDocuments(context.Background(), form, "IN194000012")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.MatchedDocument{
		Form:         "AINVOICES",
		FormDesc:     "Invoices",
		FormKey:      "(IVNUM='IN194000012',IVTYPE='A',KLINE=3)",
		DocNo:        "IN194000012",
		DocDate:      "2024-05-01",
		CustName:     "Acme Ltd",
		ExtFilesForm: "EXTFILES",
	}, docs[0])

	docs, err = c.SearchDocuments(context.Background(), form, "IN0")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = c.FindDocument(context.Background(), form, "IN0")
	assert.ErrorIs(t, err, ErrNotFound)

	fs.mu.Lock()
	assert.Equal(t, 1, fs.metaHits, "metadata is cached")
	fs.mu.Unlock()
}

func TestSearchDocuments_UnknownForm(t *testing.T) {
	c, _ := newTestClient(t, "secret")
	_, err := c.SearchDocuments(context.Background(), models.FormPrefixInfo{EntityName: "ORDERS"}, "PO1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch_FreeText(t *testing.T) {
	c, fs := newTestClient(t, "secret")

	docs, err := c.Search(context.Background(), "AINVOICES", "acme")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "(IVNUM='IN2',IVTYPE='A',KLINE=2)", docs[1].FormKey)

	fs.mu.Lock()
	last := fs.queries[len(fs.queries)-1]
	fs.mu.Unlock()
	assert.Equal(t, "AINVOICES?IVNUM eq '*acme*' or CDES eq '*acme*'", last)
}

func TestSearchFilter(t *testing.T) {
	cols := []Column{
		{Name: "IVNUM", Type: "CHAR", SearchFlag: "Y"},
		{Name: "TOTPRICE", Type: "REAL", SearchFlag: "Y"},
		{Name: "QUIET", Type: "CHAR"},
	}
	assert.Equal(t, "IVNUM eq '*42*' or TOTPRICE eq 42", searchFilter(cols, "42"))
	assert.Equal(t, "IVNUM eq '*O''Brien*'", searchFilter(cols, "O'Brien"))
	assert.Equal(t, "", searchFilter(cols, ""))
}

func TestUploadAttachment(t *testing.T) {
	c, fs := newTestClient(t, "secret")

	err := c.UploadAttachment(context.Background(), "AINVOICES", "(IVNUM='IN1',KLINE=3)", "", models.Attachment{
		FileName: "scan.PDF", Description: "IN1", Data: []byte("%PDF-1.4"),
	})
	require.NoError(t, err)

	fs.mu.Lock()
	body := fs.posts["AINVOICES(IVNUM='IN1',KLINE=3)/EXTFILES_SUBFORM"]
	fs.mu.Unlock()
	require.NotNil(t, body)
	assert.Equal(t, "IN1", body["EXTFILEDES"])
	assert.Equal(t, ".pdf", body["SUFFIX"])
	data, mimeType, err := DecodeDataURL(body["EXTFILENAME"])
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mimeType)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}

func TestUploadAttachment_Rejected(t *testing.T) {
	c, _ := newTestClient(t, "secret")

	err := c.UploadAttachment(context.Background(), "AINVOICES", "(IVNUM=IN1)", "EXTFILES", models.Attachment{
		FileName: "x.exe", Description: "reject",
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, err.Error(), "File type not allowed")
}

func TestUploadExport(t *testing.T) {
	c, fs := newTestClient(t, "secret")

	require.NoError(t, c.UploadExport(context.Background(), "jdoe", models.Attachment{
		FileName: "page.png", Description: "page.png", Data: []byte{1, 2, 3},
	}))

	fs.mu.Lock()
	body := fs.posts["EXTFILESFILESMILE"]
	fs.mu.Unlock()
	assert.Equal(t, "jdoe", body["USERLOGIN"])
	assert.Equal(t, "FileSmile", body["MAILFROM"])
	assert.Equal(t, "png", body["SUFFIX"])
	assert.True(t, strings.HasPrefix(body["EXTFILENAME"], "data:image/png;base64,"))
}

func TestUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, "wrong")
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnauthorized)

	_, err := c.ListFormPrefixes(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t, "secret")
	assert.NoError(t, c.Ping(context.Background()))
}
