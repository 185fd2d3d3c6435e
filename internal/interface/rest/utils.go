package restservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/application"
	"github.com/zyfty/zyftyd/pkg/errors"
)

const accountHeader = "X-Account"

// parseCaller returns the account acting on the request. Service owned accounts can't be
// impersonated.
func parseCaller(r *http.Request) (string, error) {
	caller := r.Header.Get(accountHeader)
	if caller == "" {
		return "", errors.INVALID_ARGUMENT.New("missing %s header", accountHeader)
	}
	if application.IsReservedAccount(caller) {
		return "", errors.UNAUTHORIZED.New("account %s is reserved", caller).
			WithMetadata(errors.AccountMetadata{Account: caller})
	}
	return caller, nil
}

func parseAssetId(params map[string]string) (uint64, error) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil {
		return 0, errors.INVALID_ARGUMENT.New("invalid asset id %q", params["id"])
	}
	return id, nil
}

func parseSlot(params map[string]string) (int, error) {
	slot, err := strconv.Atoi(params["slot"])
	if err != nil {
		return 0, errors.INVALID_ARGUMENT.New("invalid slot %q", params["slot"])
	}
	return slot, nil
}

func parseQuery(r *http.Request, keys ...string) ([]string, error) {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value := r.URL.Query().Get(key)
		if value == "" {
			return nil, errors.INVALID_ARGUMENT.New("missing %s query param", key)
		}
		values = append(values, value)
	}
	return values, nil
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.INVALID_ARGUMENT.New("invalid request body: %s", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := err.(errors.Error)
	if !ok {
		e = errors.INTERNAL_ERROR.Wrap(err)
	}

	status := runtime.HTTPStatusFromCode(e.GrpcCode())
	message := e.Error()
	if e.Code() == errors.INTERNAL_ERROR.Code {
		e.Log().WithField("path", r.URL.Path).Error(err)
		message = fmt.Sprintf("%s: something went wrong", errors.INTERNAL_ERROR)
	}

	writeJSON(w, status, errorResponse{
		Code:     e.Code(),
		Name:     e.CodeName(),
		Message:  message,
		Metadata: e.Metadata(),
	})
}
