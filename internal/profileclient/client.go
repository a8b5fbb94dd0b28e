// Package profileclient looks up patient and nurse profiles in their owning
// services over the /internal routes.
package profileclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"carelink/internal/servicetoken"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

const (
	defaultTimeout   = 3 * time.Second
	defaultRetries   = 2
	defaultRetryWait = time.Second
)

type Config struct {
	PatientURL string
	NurseURL   string
	Signer     *servicetoken.Signer
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
}

// Client calls the patient and nurse services.
type Client struct {
	patients *resty.Client
	nurses   *resty.Client
	signer   *servicetoken.Signer
}

func New(cfg Config) (*Client, error) {
	if cfg.Signer == nil {
		return nil, errors.New("profileclient: service token signer required")
	}
	if strings.TrimSpace(cfg.PatientURL) == "" && strings.TrimSpace(cfg.NurseURL) == "" {
		return nil, errors.New("profileclient: at least one service url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &Client{
		patients: newResty(cfg, cfg.PatientURL),
		nurses:   newResty(cfg, cfg.NurseURL),
		signer:   cfg.Signer,
	}, nil
}

func newResty(cfg Config, baseURL string) *resty.Client {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json").
		SetLogger(util.RestyLogger{Logger: log.Logger, Component: "profileclient"})
}

// Patient fetches a patient by id.
func (c *Client) Patient(ctx context.Context, id string) (domain.Patient, error) {
	var out domain.Patient
	err := c.get(ctx, c.patients, "patient", "/internal/patients/"+url.PathEscape(id), &out)
	return out, err
}

// PatientByUser fetches the patient profile owned by a user account.
func (c *Client) PatientByUser(ctx context.Context, userID string) (domain.Patient, error) {
	var out domain.Patient
	err := c.get(ctx, c.patients, "patient", "/internal/patients/by-user/"+url.PathEscape(userID), &out)
	return out, err
}

// Nurse fetches a nurse by id.
func (c *Client) Nurse(ctx context.Context, id string) (domain.Nurse, error) {
	var out domain.Nurse
	err := c.get(ctx, c.nurses, "nurse", "/internal/nurses/"+url.PathEscape(id), &out)
	return out, err
}

// NurseByUser fetches the nurse profile owned by a user account.
func (c *Client) NurseByUser(ctx context.Context, userID string) (domain.Nurse, error) {
	var out domain.Nurse
	err := c.get(ctx, c.nurses, "nurse", "/internal/nurses/by-user/"+url.PathEscape(userID), &out)
	return out, err
}

// ResolveProfile maps a principal to its patient or nurse record id. A user
// without a profile yields "".
func (c *Client) ResolveProfile(ctx context.Context, p domain.Principal) (string, error) {
	var (
		id  string
		err error
	)
	switch p.Role {
	case domain.RolePatient:
		var pt domain.Patient
		pt, err = c.PatientByUser(ctx, p.SubjectID)
		id = pt.ID
	case domain.RoleNurse:
		var n domain.Nurse
		n, err = c.NurseByUser(ctx, p.SubjectID)
		id = n.ID
	default:
		return "", nil
	}
	if apperr.Is(err, apperr.NotFound) {
		return "", nil
	}
	return id, err
}

func (c *Client) get(ctx context.Context, rc *resty.Client, service, path string, out any) error {
	if rc == nil {
		return apperr.New(apperr.DependencyUnavailable, service+" service not configured")
	}
	token, err := c.signer.Sign(service)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "sign service token", err)
	}
	req := rc.R().SetContext(ctx).SetAuthToken(token).SetResult(out)
	if id := util.RequestIDFromContext(ctx); id != "" {
		req.SetHeader("X-Request-Id", id)
	}
	resp, err := req.Get(path)
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, service+" service unavailable", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return apperr.New(apperr.NotFound, service+" not found")
	case resp.IsError():
		return apperr.Wrap(apperr.DependencyUnavailable, service+" service unavailable",
			fmt.Errorf("GET %s: status %d", path, resp.StatusCode()))
	}
	return nil
}
