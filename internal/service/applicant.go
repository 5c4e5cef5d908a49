package service

import (
	"context"

	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/port/database"
)

// ApplicantService manages loan application records.
type ApplicantService struct {
	store database.Store
}

// NewApplicantService creates an ApplicantService.
func NewApplicantService(store database.Store) *ApplicantService {
	return &ApplicantService{store: store}
}

// Create validates and registers a new applicant.
func (s *ApplicantService) Create(ctx context.Context, req applicant.CreateRequest) (*applicant.Applicant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateApplicant(ctx, req)
}

// Get returns an applicant by ID.
func (s *ApplicantService) Get(ctx context.Context, id string) (*applicant.Applicant, error) {
	return s.store.GetApplicant(ctx, id)
}

// List returns the most recent applicants.
func (s *ApplicantService) List(ctx context.Context, limit int) ([]applicant.Applicant, error) {
	return s.store.ListApplicants(ctx, limit)
}
