package connector

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/glorpus-work/pkgconnect/pkg/errutils"
)

// errorBody is the error payload of non-2xx responses. Kind is the closed tag sent by
// current servers; ErrorClass is the class name older servers send instead.
type errorBody struct {
	Message    string `json:"message"`
	ErrorClass string `json:"errorClass"`
	Kind       string `json:"kind"`
}

var errorClasses = map[string]errutils.ErrorKind{
	"ConnectServerError":       errutils.KindServer,
	"CanNotReachConnectServer": errutils.KindUnreachable,
	"ConnectTimeout":           errutils.KindTimeout,
	"ClientVersionMismatch":    errutils.KindClientVersion,
	"NotFound":                 errutils.KindNotFound,
	"ConnectSecurityError":     errutils.KindSecurity,
}

var kinds = map[string]errutils.ErrorKind{
	string(errutils.KindServer):        errutils.KindServer,
	string(errutils.KindUnreachable):   errutils.KindUnreachable,
	string(errutils.KindTimeout):       errutils.KindTimeout,
	string(errutils.KindClientVersion): errutils.KindClientVersion,
	string(errutils.KindNotFound):      errutils.KindNotFound,
	string(errutils.KindSecurity):      errutils.KindSecurity,
}

// classify maps a response status to a success envelope or a typed error.
func classify(status int, body []byte, serializer Serializer) (noData bool, err error) {
	switch status {
	case http.StatusOK:
		return false, nil
	case http.StatusNoContent, http.StatusNotFound:
		return true, nil
	case http.StatusUnauthorized:
		return false, errutils.NewSecurityError(errutils.ReasonAuth, status, "authentication refused by connect server")
	case http.StatusProxyAuthRequired:
		return false, errutils.NewSecurityError(errutils.ReasonProxyAuth, status, "proxy authentication required")
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return false, errutils.NewServerError(errutils.KindTimeout, status, "connect server timed out")
	}
	return false, decodeError(status, body, serializer)
}

func decodeError(status int, body []byte, serializer Serializer) error {
	generic := errutils.NewServerError(errutils.KindServer, status, fmt.Sprintf("unexpected response status %d", status))
	if len(body) == 0 {
		return generic
	}
	var eb errorBody
	if err := serializer.Unmarshal(body, &eb); err != nil {
		return generic
	}

	kind, ok := kinds[strings.ToLower(eb.Kind)]
	if !ok {
		kind, ok = errorClasses[eb.ErrorClass]
	}
	if !ok {
		if eb.Message == "" {
			return generic
		}
		kind = errutils.KindServer
	}

	if kind == errutils.KindSecurity {
		return errutils.NewSecurityError(errutils.ReasonAuth, status, eb.Message)
	}
	return errutils.NewServerError(kind, status, eb.Message)
}
