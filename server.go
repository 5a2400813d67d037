package opendata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fandreuz/opendata/backends"
	"github.com/fandreuz/opendata/dal"
	"github.com/fandreuz/opendata/util"
	"github.com/ghetzel/go-stockutil/httputil"
	"github.com/ghetzel/go-stockutil/log"
	"github.com/husobee/vestigo"
	"github.com/urfave/negroni"
)

type CreateDatasetRequest struct {
	CollectionID string `json:"collectionId"`
	FileName     string `json:"fileName"`
}

type Server struct {
	Address   string
	service   *DatasetService
	backend   backends.Backend
	endpoints []util.Endpoint
}

func NewServer(service *DatasetService, backend backends.Backend) *Server {
	server := &Server{
		Address: fmt.Sprintf("%s:%d", DefaultAddress, DefaultPort),
		service: service,
		backend: backend,
	}

	server.endpoints = server.routes()
	return server
}

func (self *Server) ListenAndServe() error {
	log.Infof("Listening on %s", self.Address)
	return http.ListenAndServe(self.Address, self.Handler())
}

func (self *Server) Handler() http.Handler {
	server := negroni.New()
	router := vestigo.NewRouter()

	router.SetGlobalCors(&vestigo.CorsAccessControl{
		AllowOrigin:  []string{"*"},
		AllowMethods: []string{`GET`, `POST`},
		MaxAge:       3600 * time.Second,
		AllowHeaders: []string{"*"},
	})

	for _, endpoint := range self.endpoints {
		router.Add(endpoint.Method, endpoint.Path, self.handle(endpoint))
	}

	server.Use(negroni.NewRecovery())
	server.UseHandler(router)

	return server
}

func (self *Server) handle(endpoint util.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		params := make(map[string]string)

		for _, name := range endpoint.Params {
			params[name] = vestigo.Param(req, name)
		}

		status, payload, err := endpoint.Handler(req, params)

		if err != nil {
			status = StatusForError(err)

			if status >= 500 {
				log.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
			} else {
				log.Debugf("%s %s: %v", req.Method, req.URL.Path, err)
			}

			httputil.RespondJSON(w, err, status)
			return
		}

		httputil.RespondJSON(w, payload, status)
	}
}

// Maps an error category onto the HTTP status reported for it.
func StatusForError(err error) int {
	switch {
	case dal.IsNotFoundErr(err):
		return http.StatusNotFound
	case dal.IsBadQueryErr(err):
		return http.StatusBadRequest
	case dal.IsFetchErr(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Returns a query string value as decoded by the URL parser, so characters
// such as "+" and "%" in a query document arrive unchanged.
func queryParam(req *http.Request, key string, fallback string) string {
	if value := req.URL.Query().Get(key); value != `` {
		return value
	}

	return fallback
}

func (self *Server) routes() []util.Endpoint {
	return []util.Endpoint{
		{
			Method: `GET`,
			Path:   `/api/status`,
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				status := util.Status{
					OK:          true,
					Application: util.ApplicationName,
					Version:     util.ApplicationVersion,
				}

				if self.backend != nil {
					status.Backend = self.backend.GetConnectionString().String()
				}

				if self.service.Fetcher != nil {
					status.Source = self.service.Fetcher.Source()
				}

				return http.StatusOK, status, nil
			},
		}, {
			Method: `POST`,
			Path:   `/api/datasets`,
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				var body CreateDatasetRequest

				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					return 0, nil, &dal.BadQueryError{Query: `request body`, Cause: err}
				} else if body.CollectionID == `` || body.FileName == `` {
					return 0, nil, &dal.BadQueryError{Query: `request body`, Cause: fmt.Errorf("collectionId and fileName are required")}
				}

				if metadata, err := self.service.CreateDataset(req.Context(), body.CollectionID, body.FileName); err == nil {
					return http.StatusCreated, metadata, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets`,
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if all, err := self.service.GetAllMetadata(); err == nil {
					return http.StatusOK, all, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets/:id`,
			Params: []string{`id`},
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if metadata, err := self.service.GetMetadata(params[`id`]); err == nil {
					return http.StatusOK, metadata, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets/:id/columns`,
			Params: []string{`id`},
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if names, err := self.service.GetColumnNames(params[`id`]); err == nil {
					return http.StatusOK, names, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets/:id/columns/:column`,
			Params: []string{`id`, `column`},
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if column, err := self.service.GetColumn(params[`id`], params[`column`]); err == nil {
					return http.StatusOK, column, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets/:id/where`,
			Params: []string{`id`},
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if ids, err := self.service.GetIdsWhere(params[`id`], queryParam(req, `q`, `{}`)); err == nil {
					return http.StatusOK, ids, nil
				} else {
					return 0, nil, err
				}
			},
		}, {
			Method: `GET`,
			Path:   `/api/datasets/:id/entries`,
			Params: []string{`id`},
			Handler: func(req *http.Request, params map[string]string) (int, interface{}, error) {
				if entries, err := self.service.GetEntriesMatching(params[`id`], queryParam(req, `q`, `{}`)); err == nil {
					return http.StatusOK, entries, nil
				} else {
					return 0, nil, err
				}
			},
		},
	}
}
