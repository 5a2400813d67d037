package util

import (
	"net/http"
)

// Handles a request given its route parameters, returning the status code and
// the payload to respond with.
type EndpointResponseFunc func(*http.Request, map[string]string) (int, interface{}, error)

type Endpoint struct {
	Method  string
	Path    string
	Params  []string
	Handler EndpointResponseFunc
}
