// Package inspect serves stored programs and run reports over HTTP as JSON.
//
//	GET /programs/{hash}  disassembly of a stored program
//	GET /runs             every run report, oldest first
//	GET /runs/{id}        one run report
package inspect

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eigerco/warpsim/internal/asm"
	"github.com/eigerco/warpsim/internal/store"
	"github.com/eigerco/warpsim/pkg/log"
)

// Program is the JSON form of a stored program.
type Program struct {
	Hash    store.ProgramHash `json:"hash"`
	Words   []uint32          `json:"words"`
	Listing []string          `json:"listing"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Server struct {
	programs *store.Programs
	runs     *store.Runs
	router   *mux.Router
}

func NewServer(programs *store.Programs, runs *store.Runs) *Server {
	s := &Server{
		programs: programs,
		runs:     runs,
		router:   mux.NewRouter(),
	}
	s.router.HandleFunc("/programs/{hash}", s.program).Methods(http.MethodGet)
	s.router.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}", s.run).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) program(w http.ResponseWriter, r *http.Request) {
	hash, err := store.ParseProgramHash(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	words, err := s.programs.Get(hash)
	switch {
	case errors.Is(err, store.ErrProgramNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Program{
		Hash:    hash,
		Words:   words,
		Listing: asm.Disassemble(words),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	reports, err := s.runs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if reports == nil {
		reports = []store.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	report, err := s.runs.Get(store.RunID(mux.Vars(r)["id"]))
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Store.Error().Err(err).Msg("inspect request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Store.Debug().Err(err).Msg("write inspect response")
	}
}
