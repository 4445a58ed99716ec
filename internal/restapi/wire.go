package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	docerrors "github.com/gezibash/docio/pkg/errors"
)

// Wire contract shared by the server and internal/remote/rest.
const (
	DocumentsPath    = "/v1/documents"
	TransactionsPath = "/v1/transactions"

	HeaderFormat = "X-Document-Format"

	ParamURI         = "uri"
	ParamTransaction = "txid"
	ParamFormat      = "format"
	ParamResult      = "result"

	ResultCommit   = "commit"
	ResultRollback = "rollback"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransactionResponse is returned when a transaction is opened.
type TransactionResponse struct {
	ID string `json:"id"`
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, docerrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, docerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docerrors.ErrConflict), errors.Is(err, docerrors.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, docerrors.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, docerrors.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFor rebuilds an error from a non-2xx response. The body is read
// but not closed.
func ErrorFor(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var body ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = docerrors.ErrInvalidArgument
	case http.StatusNotFound:
		sentinel = docerrors.ErrNotFound
	case http.StatusConflict:
		sentinel = docerrors.ErrConflict
	case http.StatusNotImplemented:
		sentinel = docerrors.ErrUnsupported
	case http.StatusServiceUnavailable:
		sentinel = docerrors.ErrClosed
	default:
		return fmt.Errorf("remote status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
