package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"carelink/internal/httpapi"
	"carelink/internal/servicetoken"
	"carelink/internal/util"
	"carelink/pkg/domain"
	"carelink/services/patient/internal/app"
	"carelink/services/patient/internal/triage"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Classifier triage.Classifier
	Verifier   httpapi.TokenVerifier
	Services   *servicetoken.Verifier
	Trusted    *util.TrustedProxies
	Base       httpapi.BaseConfig
}

// Server exposes patient records, triage and the peer lookup routes.
type Server struct {
	app        *app.App
	classifier triage.Classifier
	auth       *httpapi.Authenticator
	services   *servicetoken.Verifier
	trusted    *util.TrustedProxies
	router     *chi.Mux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:        cfg.App,
		classifier: cfg.Classifier,
		services:   cfg.Services,
		trusted:    cfg.Trusted,
		auth: &httpapi.Authenticator{
			Verifier: cfg.Verifier,
			Resolver: cfg.App,
			Trusted:  cfg.Trusted,
		},
	}
	if s.classifier == nil {
		s.classifier = triage.NewRuleClassifier()
	}
	s.router = httpapi.NewRouter(cfg.Base)
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Route("/api/patients", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/me", s.handleMe)
		r.Get("/by-user/{userId}", s.handleByUser)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Patch("/", s.handleUpdate)
			r.Put("/nurse", s.handleAssignNurse)

			r.Get("/vitals", s.handleListVitals)
			r.Post("/vitals", s.handleRecordVitals)

			r.Get("/conditions", s.handleListConditions)
			r.Post("/conditions", s.handleAddCondition)
			r.Patch("/conditions/{cid}", s.handleUpdateCondition)
			r.Post("/conditions/{cid}/review", s.handleReviewCondition)

			r.Get("/medications", s.handleListMedications)
			r.Post("/medications", s.handleAddMedication)
			r.Patch("/medications/{mid}", s.handleUpdateMedication)

			r.Get("/appointments", s.handleListAppointments)
			r.Post("/appointments", s.handleBookAppointment)
			r.Patch("/appointments/{aid}", s.handleUpdateAppointment)

			r.Get("/symptoms", s.handleListChecklists)
			r.Post("/symptoms", s.handleRecordChecklist)
		})
	})
	s.router.With(s.auth.Middleware).Post("/api/triage/analyze", s.handleAnalyze)

	if s.services != nil {
		s.router.Route("/internal/patients", func(r chi.Router) {
			r.Use(httpapi.RequireService(s.services, s.trusted))
			r.Get("/{id}", s.handleLookup)
			r.Get("/by-user/{userId}", s.handleLookupByUser)
		})
	}
}

func reply[T any](w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, status, v)
}

func principal(r *http.Request) domain.Principal {
	p, _ := httpapi.PrincipalFrom(r.Context())
	return p
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in app.CreatePatientInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	pt, err := s.app.CreatePatient(r.Context(), principal(r), in)
	reply(w, r, http.StatusCreated, pt, err)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	patients, err := s.app.ListPatients(r.Context(), principal(r), r.URL.Query().Get("nurseId"))
	reply(w, r, http.StatusOK, map[string]any{"patients": patients, "count": len(patients)}, err)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	pt, err := s.app.MyPatient(r.Context(), principal(r))
	reply(w, r, http.StatusOK, pt, err)
}

func (s *Server) handleByUser(w http.ResponseWriter, r *http.Request) {
	pt, err := s.app.PatientByUser(r.Context(), principal(r), chi.URLParam(r, "userId"))
	reply(w, r, http.StatusOK, pt, err)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	pt, err := s.app.GetPatient(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, pt, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in app.PatientUpdate
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	pt, err := s.app.UpdatePatient(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusOK, pt, err)
}

type assignRequest struct {
	NurseID string `json:"nurseId"`
}

func (s *Server) handleAssignNurse(w http.ResponseWriter, r *http.Request) {
	var in assignRequest
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	pt, err := s.app.AssignNurse(r.Context(), principal(r), chi.URLParam(r, "id"), in.NurseID)
	reply(w, r, http.StatusOK, pt, err)
}

func (s *Server) handleListVitals(w http.ResponseWriter, r *http.Request) {
	from, to, err := httpapi.QueryRange(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	vitals, err := s.app.ListVitals(r.Context(), principal(r), chi.URLParam(r, "id"), from, to)
	reply(w, r, http.StatusOK, map[string]any{"vitals": vitals, "count": len(vitals)}, err)
}

func (s *Server) handleRecordVitals(w http.ResponseWriter, r *http.Request) {
	var in app.VitalsInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	v, err := s.app.RecordVitals(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusCreated, v, err)
}

func (s *Server) handleListConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := s.app.ListConditions(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, map[string]any{"conditions": conditions, "count": len(conditions)}, err)
}

func (s *Server) handleAddCondition(w http.ResponseWriter, r *http.Request) {
	var in app.ConditionInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c, err := s.app.AddCondition(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusCreated, c, err)
}

func (s *Server) handleUpdateCondition(w http.ResponseWriter, r *http.Request) {
	var in app.ConditionInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c, err := s.app.UpdateCondition(r.Context(), principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "cid"), in)
	reply(w, r, http.StatusOK, c, err)
}

type reviewRequest struct {
	Review string `json:"review"`
}

func (s *Server) handleReviewCondition(w http.ResponseWriter, r *http.Request) {
	var in reviewRequest
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c, err := s.app.ReviewCondition(r.Context(), principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "cid"), in.Review)
	reply(w, r, http.StatusOK, c, err)
}

func (s *Server) handleListMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := s.app.ListMedications(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, map[string]any{"medications": meds, "count": len(meds)}, err)
}

func (s *Server) handleAddMedication(w http.ResponseWriter, r *http.Request) {
	var in app.MedicationInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	m, err := s.app.AddMedication(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusCreated, m, err)
}

func (s *Server) handleUpdateMedication(w http.ResponseWriter, r *http.Request) {
	var in app.MedicationInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	m, err := s.app.UpdateMedication(r.Context(), principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "mid"), in)
	reply(w, r, http.StatusOK, m, err)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	aps, err := s.app.ListAppointments(r.Context(), principal(r), chi.URLParam(r, "id"), r.URL.Query().Get("status"))
	reply(w, r, http.StatusOK, map[string]any{"appointments": aps, "count": len(aps)}, err)
}

func (s *Server) handleBookAppointment(w http.ResponseWriter, r *http.Request) {
	var in app.AppointmentInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	ap, err := s.app.BookAppointment(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusCreated, ap, err)
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var in app.AppointmentInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	ap, err := s.app.UpdateAppointment(r.Context(), principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "aid"), in)
	reply(w, r, http.StatusOK, ap, err)
}

func (s *Server) handleListChecklists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.app.ListChecklists(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, map[string]any{"checklists": lists, "count": len(lists)}, err)
}

func (s *Server) handleRecordChecklist(w http.ResponseWriter, r *http.Request) {
	var in app.ChecklistInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	cl, err := s.app.RecordChecklist(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusCreated, cl, err)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var in triage.Request
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	findings, err := s.classifier.Classify(r.Context(), in)
	reply(w, r, http.StatusOK, map[string]any{"conditions": findings}, err)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	pt, err := s.app.Lookup(r.Context(), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, pt, err)
}

func (s *Server) handleLookupByUser(w http.ResponseWriter, r *http.Request) {
	pt, err := s.app.LookupByUser(r.Context(), chi.URLParam(r, "userId"))
	reply(w, r, http.StatusOK, pt, err)
}
