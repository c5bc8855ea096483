package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/query"
)

// ColumnNamesOnly is the target_columns value that selects column discovery
// instead of a data fetch.
const ColumnNamesOnly = "GET_COLUMN_NAMES_ONLY"

type getDataRequest struct {
	SelectedFiles []string        `json:"selected_files"`
	TargetColumns json.RawMessage `json:"target_columns"`
}

type discoveryResponse struct {
	AllColumns         []string         `json:"all_columns"`
	SampleDataRowCount int              `json:"sample_data_row_count"`
	SampleDataColumns  []string         `json:"sample_data_columns"`
	SampleData         []map[string]any `json:"sample_data"`
}

type dataResponse struct {
	Columns  []string         `json:"columns"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"row_count"`
}

func handleListFiles(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Explorer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPLORER_NOT_CONFIGURED", "explorer is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Explorer.ListCatalog(r.Context()))
}

func handleGetData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Explorer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPLORER_NOT_CONFIGURED", "explorer is not configured", false, nil)
		return
	}

	var request getDataRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid get_data request body", false, map[string]any{"details": err.Error()})
		return
	}
	if len(request.SelectedFiles) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "FILES_REQUIRED", "selected_files must name at least one file", false, nil)
		return
	}

	discover, projection, err := parseTargetColumns(request.TargetColumns)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if discover {
		discovery, err := deps.Explorer.DiscoverColumns(r.Context(), request.SelectedFiles)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, discoveryResponse{
			AllColumns:         discovery.Columns,
			SampleDataRowCount: discovery.Sample.RowCount,
			SampleDataColumns:  nonNil(discovery.Sample.Columns),
			SampleData:         nonNilRows(discovery.Sample.Rows),
		})
		return
	}

	result, err := deps.Explorer.FetchData(r.Context(), request.SelectedFiles, projection)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Columns:  nonNil(result.Columns),
		Data:     nonNilRows(result.Rows),
		RowCount: result.RowCount,
	})
}

// parseTargetColumns accepts null, a string (discovery sentinel, "*" or a
// comma-separated list) or an array of names.
func parseTargetColumns(raw json.RawMessage) (bool, query.Projection, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, query.AllColumns(), nil
	}

	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return false, query.Projection{}, &requestError{message: "target_columns is not a valid string"}
		}
		if value == ColumnNamesOnly {
			return true, query.Projection{}, nil
		}
		projection, err := query.ParseProjectionList(value)
		return false, projection, err
	case '[':
		var values []string
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return false, query.Projection{}, &requestError{message: "target_columns must be an array of strings"}
		}
		projection, err := query.ParseProjection(values)
		return false, projection, err
	default:
		return false, query.Projection{}, &requestError{message: "target_columns must be a string, an array of strings or null"}
	}
}

type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var (
		requestErr  *requestError
		invalidName *dataset.InvalidFileNameError
		notFound    *dataset.FileNotFoundError
		execErr     *query.ExecutionError
	)
	switch {
	case errors.As(err, &requestErr):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_TARGET_COLUMNS", requestErr.message, false, nil)
	case errors.As(err, &invalidName):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_FILE_NAME", err.Error(), false, map[string]any{"file": invalidName.Name})
	case errors.As(err, &notFound):
		writeError(ctx, w, http.StatusNotFound, "FILE_NOT_FOUND", err.Error(), false, map[string]any{"file": notFound.Name})
	case errors.Is(err, dataset.ErrNoValidFiles):
		writeError(ctx, w, http.StatusNotFound, "NO_VALID_FILES", err.Error(), false, nil)
	case errors.Is(err, query.ErrEmptyProjection):
		writeError(ctx, w, http.StatusBadRequest, "EMPTY_PROJECTION", err.Error(), false, nil)
	case errors.Is(err, query.ErrNoColumnsDiscovered):
		writeError(ctx, w, http.StatusInternalServerError, "NO_COLUMNS_DISCOVERED", err.Error(), false, nil)
	case errors.As(err, &execErr):
		writeError(ctx, w, http.StatusInternalServerError, "EXECUTION_FAILED", err.Error(), false, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "EXECUTION_FAILED", fmt.Sprintf("query execution failed: %v", err), false, nil)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
