package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/explorer"
	"github.com/phenoquery/phenoquery/internal/query"
	"github.com/phenoquery/phenoquery/internal/query/duckdb"
	"github.com/phenoquery/phenoquery/internal/schema"
)

type fakeExplorer struct {
	files      []string
	discovery  explorer.Discovery
	result     query.Result
	err        error
	selected   []string
	projection query.Projection
	discovered bool
	fetched    bool
}

func (f *fakeExplorer) ListCatalog(context.Context) []string {
	return f.files
}

func (f *fakeExplorer) DiscoverColumns(_ context.Context, selected []string) (explorer.Discovery, error) {
	f.discovered = true
	f.selected = selected
	return f.discovery, f.err
}

func (f *fakeExplorer) FetchData(_ context.Context, selected []string, projection query.Projection) (query.Result, error) {
	f.fetched = true
	f.selected = selected
	f.projection = projection
	return f.result, f.err
}

func TestListFilesReturnsArray(t *testing.T) {
	fake := &fakeExplorer{files: []string{}}
	rr := serve(t, fake, http.MethodGet, "/api/files", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestGetDataDiscoveryMode(t *testing.T) {
	fake := &fakeExplorer{discovery: explorer.Discovery{
		Columns: []string{"age", "subject_id"},
		Sample: query.Result{
			Columns:  []string{"subject_id", "age"},
			Rows:     []map[string]any{{"subject_id": "s1", "age": int64(40)}},
			RowCount: 1,
		},
	}}
	rr := serve(t, fake, http.MethodPost, "/api/get_data",
		`{"selected_files":["temp_pheno_batch_1"],"target_columns":"GET_COLUMN_NAMES_ONLY"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if !fake.discovered || fake.fetched {
		t.Fatalf("discovered=%v fetched=%v", fake.discovered, fake.fetched)
	}

	var body discoveryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(body.AllColumns, []string{"age", "subject_id"}) || body.SampleDataRowCount != 1 {
		t.Fatalf("body = %+v", body)
	}
	if !slices.Equal(body.SampleDataColumns, []string{"subject_id", "age"}) || body.SampleData[0]["subject_id"] != "s1" {
		t.Fatalf("sample = %+v", body)
	}
}

func TestGetDataTargetColumnForms(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		all     bool
		columns []string
	}{
		{name: "missing", target: ``, all: true},
		{name: "null", target: `,"target_columns":null`, all: true},
		{name: "star", target: `,"target_columns":"*"`, all: true},
		{name: "empty string", target: `,"target_columns":""`, all: true},
		{name: "comma list", target: `,"target_columns":" x , y ,"`, columns: []string{"x", "y"}},
		{name: "array", target: `,"target_columns":["z","x"]`, columns: []string{"z", "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeExplorer{result: query.EmptyResult()}
			rr := serve(t, fake, http.MethodPost, "/api/get_data", `{"selected_files":["temp_pheno_batch_1"]`+tc.target+`}`)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
			}
			if fake.projection.All() != tc.all {
				t.Fatalf("All() = %v", fake.projection.All())
			}
			if !tc.all && !slices.Equal(fake.projection.Columns(), tc.columns) {
				t.Fatalf("Columns() = %v, want %v", fake.projection.Columns(), tc.columns)
			}
		})
	}
}

func TestGetDataRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed", body: `{`, status: http.StatusBadRequest, code: "INVALID_JSON"},
		{name: "unknown field", body: `{"selected_files":["temp_pheno_batch_1"],"limit":3}`, status: http.StatusBadRequest, code: "INVALID_JSON"},
		{name: "missing files", body: `{"target_columns":"*"}`, status: http.StatusBadRequest, code: "FILES_REQUIRED"},
		{name: "empty files", body: `{"selected_files":[]}`, status: http.StatusBadRequest, code: "FILES_REQUIRED"},
		{name: "numeric target", body: `{"selected_files":["temp_pheno_batch_1"],"target_columns":5}`, status: http.StatusBadRequest, code: "INVALID_TARGET_COLUMNS"},
		{name: "blank names", body: `{"selected_files":["temp_pheno_batch_1"],"target_columns":" , ,"}`, status: http.StatusBadRequest, code: "EMPTY_PROJECTION"},
		{name: "blank array", body: `{"selected_files":["temp_pheno_batch_1"],"target_columns":["  "]}`, status: http.StatusBadRequest, code: "EMPTY_PROJECTION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeExplorer{}
			rr := serve(t, fake, http.MethodPost, "/api/get_data", tc.body)
			assertError(t, rr, tc.status, tc.code)
			if fake.fetched || fake.discovered {
				t.Fatal("explorer should not be called")
			}
		})
	}
}

func TestGetDataMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid name", err: &dataset.InvalidFileNameError{Name: "../x"}, status: http.StatusBadRequest, code: "INVALID_FILE_NAME"},
		{name: "not found", err: &dataset.FileNotFoundError{Name: "temp_pheno_batch_9"}, status: http.StatusNotFound, code: "FILE_NOT_FOUND"},
		{name: "no valid files", err: dataset.ErrNoValidFiles, status: http.StatusNotFound, code: "NO_VALID_FILES"},
		{name: "no columns", err: query.ErrNoColumnsDiscovered, status: http.StatusInternalServerError, code: "NO_COLUMNS_DISCOVERED"},
		{name: "execution", err: &query.ExecutionError{Message: "Binder Error"}, status: http.StatusInternalServerError, code: "EXECUTION_FAILED"},
		{name: "unexpected", err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: "EXECUTION_FAILED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(t, &fakeExplorer{err: tc.err}, http.MethodPost, "/api/get_data",
				`{"selected_files":["temp_pheno_batch_1"],"target_columns":"*"}`)
			body := assertError(t, rr, tc.status, tc.code)
			if body["error"] == "" || body["error"] != body["message"] {
				t.Fatalf("body = %#v", body)
			}
		})
	}
}

type phenotypeRow struct {
	SubjectID string `parquet:"subject_id"`
	Height    int64  `parquet:"height"`
}

type diagnosisRow struct {
	SubjectID string `parquet:"subject_id"`
	Code      string `parquet:"icd10"`
}

func TestGetDataEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "temp_pheno_batch_2.parquet"), []phenotypeRow{{SubjectID: "s1", Height: 180}})
	writeParquet(t, filepath.Join(dir, "temp_pheno_batch_10.parquet"), []diagnosisRow{{SubjectID: "s2", Code: "E11"}})
	service := explorer.NewService(explorer.Options{
		Catalog:    dataset.NewCatalog(dir, "temp_pheno_batch_", ".parquet", nil),
		Reconciler: schema.NewReconciler(nil, 2, nil),
		Engine:     duckdb.NewEngine(nil),
	})
	h := NewHandler(loadConfig(t, map[string]string{"PHENOQUERY_DATASET_DIR": dir}), Dependencies{Explorer: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	var files []string
	if err := json.Unmarshal(rr.Body.Bytes(), &files); err != nil {
		t.Fatalf("decode files: %v", err)
	}
	if !slices.Equal(files, []string{"temp_pheno_batch_2", "temp_pheno_batch_10"}) {
		t.Fatalf("files = %v", files)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/get_data", strings.NewReader(
		`{"selected_files":["temp_pheno_batch_2","temp_pheno_batch_10"],"target_columns":"subject_id,icd10"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body dataResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if body.RowCount != 2 || !slices.Equal(body.Columns, []string{"subject_id", "icd10"}) {
		t.Fatalf("body = %+v", body)
	}
	if body.Data[0]["icd10"] != nil || body.Data[1]["icd10"] != "E11" {
		t.Fatalf("data = %#v", body.Data)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/get_data", strings.NewReader(
		`{"selected_files":["temp_pheno_batch_2"],"target_columns":"no_such_column"}`)))
	assertError(t, rr, http.StatusInternalServerError, "EXECUTION_FAILED")
}

func serve(t *testing.T, fake *fakeExplorer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: fake})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d, body=%s", rr.Code, status, rr.Body.String())
	}
	body := decodeObject(t, rr)
	if body["error_code"] != code {
		t.Fatalf("error_code = %v, want %s", body["error_code"], code)
	}
	if body["retryable"] != false {
		t.Fatalf("retryable = %v", body["retryable"])
	}
	return body
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
}
