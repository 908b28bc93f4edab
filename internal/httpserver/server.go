// Package httpserver is the webhook edge: one gorilla router hosting the
// provider webhook endpoints, the voice note media endpoint and the
// health probes.
package httpserver

import "github.com/gorilla/mux"

type Server struct {
	Mux *mux.Router
}

func New() *Server {
	return &Server{Mux: mux.NewRouter()}
}
