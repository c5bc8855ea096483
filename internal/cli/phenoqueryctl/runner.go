package phenoqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const columnNamesOnly = "GET_COLUMN_NAMES_ONLY"

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type getDataBody struct {
	SelectedFiles []string `json:"selected_files"`
	TargetColumns string   `json:"target_columns"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("phenoqueryctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:5050"), "phenoquery API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	var (
		method = http.MethodGet
		path   string
		body   any
		format = FormatJSON
	)
	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "health":
		path = "/v1/health"
	case "ready":
		path = "/v1/ready"
	case "files":
		path = "/api/files"
	case "columns":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "columns requires at least one file name")
			return 2
		}
		method, path = http.MethodPost, "/api/get_data"
		body = getDataBody{SelectedFiles: rest, TargetColumns: columnNamesOnly}
	case "data":
		dataFlags := flag.NewFlagSet("data", flag.ContinueOnError)
		dataFlags.SetOutput(stderr)
		columns := dataFlags.String("columns", "*", "comma-separated column names, * for all")
		dataFlags.StringVar(&format, "format", FormatJSON, "output format: json, csv, table")
		if err := dataFlags.Parse(rest); err != nil {
			return 2
		}
		if !validFormat(format) {
			_, _ = fmt.Fprintf(stderr, "unsupported format %q\n", format)
			return 2
		}
		if dataFlags.NArg() == 0 {
			_, _ = fmt.Fprintln(stderr, "data requires at least one file name")
			return 2
		}
		method, path = http.MethodPost, "/api/get_data"
		body = getDataBody{SelectedFiles: dataFlags.Args(), TargetColumns: *columns}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if format != FormatJSON {
		if err := writeRows(stdout, format, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "render %s: %v\n", format, err)
			return 1
		}
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: phenoqueryctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  files                               GET /api/files")
	_, _ = fmt.Fprintln(w, "  columns <file>...                   column union and a sample row")
	_, _ = fmt.Fprintln(w, "  data [-columns a,b] [-format json|csv|table] <file>...")
	_, _ = fmt.Fprintln(w, "                                      rows over the union of files")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
