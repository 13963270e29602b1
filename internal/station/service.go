package station

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Validation constants.
const (
	MaxAddressLength  = 200
	MaxPlugTypeLength = 60
	MaxTextLength     = 500
)

// Input is the writable shape of a first-party station.
type Input struct {
	Address  string
	PlugType string
	PowerKW  float64
	Operator *string
	Pricing  *string
	MapURL   *string
	Lat      *float64
	Lon      *float64
}

// FieldError describes a validation failure on one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field error(s)", ErrInvalidStation, len(e.Errors))
}

// Unwrap lets callers match ErrInvalidStation with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidStation
}

// ServiceConfig holds configuration for the station service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service manages first-party stations and serves them to the map.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new station service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}
}

// FetchAll returns every first-party station. The map merges these with
// third-party geodata regardless of the viewport.
func (s *Service) FetchAll(ctx context.Context) ([]*Record, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom stations: %w", err)
	}
	return records, nil
}

// List returns one page of stations.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Get returns a station by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new station.
func (s *Service) Create(ctx context.Context, input *Input) (*Record, error) {
	if errs := validateInput(input); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        "cst_" + uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyInput(rec, input)

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("station_id", rec.ID).
		Bool("placeable", rec.HasCoordinates()).
		Msg("custom station created")
	return rec, nil
}

// Update replaces the writable fields of an existing station.
func (s *Service) Update(ctx context.Context, id string, input *Input) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if errs := validateInput(input); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	applyInput(rec, input)
	rec.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a station.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("station_id", id).Msg("custom station deleted")
	return nil
}

func applyInput(rec *Record, input *Input) {
	rec.Address = strings.TrimSpace(input.Address)
	rec.PlugType = strings.TrimSpace(input.PlugType)
	rec.PowerKW = input.PowerKW
	rec.Operator = input.Operator
	rec.Pricing = input.Pricing
	rec.MapURL = input.MapURL
	rec.Lat = input.Lat
	rec.Lon = input.Lon
}

// validateInput validates a station input.
func validateInput(input *Input) []FieldError {
	var errs []FieldError

	address := strings.TrimSpace(input.Address)
	if address == "" {
		errs = append(errs, FieldError{Field: "address", Message: "is required"})
	} else if len(address) > MaxAddressLength {
		errs = append(errs, FieldError{Field: "address", Message: "must be at most 200 characters"})
	}

	plugType := strings.TrimSpace(input.PlugType)
	if plugType == "" {
		errs = append(errs, FieldError{Field: "plugType", Message: "is required"})
	} else if len(plugType) > MaxPlugTypeLength {
		errs = append(errs, FieldError{Field: "plugType", Message: "must be at most 60 characters"})
	}

	if input.PowerKW < 0 {
		errs = append(errs, FieldError{Field: "powerKw", Message: "must not be negative"})
	}

	optional := []struct {
		field string
		value *string
	}{
		{"operator", input.Operator},
		{"pricing", input.Pricing},
		{"mapUrl", input.MapURL},
	}
	for _, o := range optional {
		if o.value != nil && len(*o.value) > MaxTextLength {
			errs = append(errs, FieldError{Field: o.field, Message: "must be at most 500 characters"})
		}
	}

	if (input.Lat == nil) != (input.Lon == nil) {
		errs = append(errs, FieldError{Field: "lat", Message: "lat and lon must be set together"})
	}
	if input.Lat != nil && (*input.Lat < -90 || *input.Lat > 90) {
		errs = append(errs, FieldError{Field: "lat", Message: "must be between -90 and 90"})
	}
	if input.Lon != nil && (*input.Lon < -180 || *input.Lon > 180) {
		errs = append(errs, FieldError{Field: "lon", Message: "must be between -180 and 180"})
	}

	return errs
}
