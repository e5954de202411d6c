package service

import (
	"context"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/cache"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// PlanService exposes the read-only plan catalog plus the startup seeding
// path that populates it.
type PlanService interface {
	GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	GetPlanByLookupKey(ctx context.Context, lookupKey string) (*dto.PlanResponse, error)
	ListPlans(ctx context.Context, filter types.Filter) (*dto.ListPlansResponse, error)
	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error)

	// SeedFromFile loads the YAML catalog file and creates any plan whose
	// lookup key is not present yet. Existing plans are never mutated, so
	// re-running the seed is safe.
	SeedFromFile(ctx context.Context, path string) error
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

func (s *planService) GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	if id == "" {
		return nil, ierr.NewError("plan id is required").
			WithHint("Plan ID is required").
			Mark(ierr.ErrValidation)
	}

	cacheKey := cache.GenerateKey(cache.PrefixPlan, id)
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if p, ok := cached.(*plan.Plan); ok {
			return &dto.PlanResponse{Plan: p}, nil
		}
	}

	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, p, s.Config.Cache.TTL)
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) GetPlanByLookupKey(ctx context.Context, lookupKey string) (*dto.PlanResponse, error) {
	if lookupKey == "" {
		return nil, ierr.NewError("lookup key is required").
			WithHint("Lookup key is required").
			Mark(ierr.ErrValidation)
	}

	p, err := s.PlanRepo.GetByLookupKey(ctx, lookupKey)
	if err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) ListPlans(ctx context.Context, filter types.Filter) (*dto.ListPlansResponse, error) {
	plans, err := s.PlanRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.PlanRepo.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &dto.ListPlansResponse{
		Items: lo.Map(plans, func(p *plan.Plan, _ int) *dto.PlanResponse {
			return &dto.PlanResponse{Plan: p}
		}),
		Total: total,
	}, nil
}

func (s *planService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPlan(ctx)
	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Cache.DeleteByPrefix(ctx, cache.PrefixPlan)
	return &dto.PlanResponse{Plan: p}, nil
}

// seedFile is the YAML shape of the catalog seed file.
type seedFile struct {
	Plans []dto.CreatePlanRequest `yaml:"plans"`
}

func (s *planService) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Unable to read the plan catalog seed file").
			WithReportableDetails(map[string]any{
				"path": path,
			}).
			Mark(ierr.ErrSystem)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return ierr.WithError(err).
			WithHint("The plan catalog seed file is not valid YAML").
			WithReportableDetails(map[string]any{
				"path": path,
			}).
			Mark(ierr.ErrValidation)
	}

	for i := range seed.Plans {
		req := seed.Plans[i]
		if _, err := s.PlanRepo.GetByLookupKey(ctx, req.LookupKey); err == nil {
			continue
		} else if !ierr.IsNotFound(err) {
			return err
		}

		if _, err := s.CreatePlan(ctx, req); err != nil {
			return err
		}
		s.Logger.Infow("seeded plan", "lookup_key", req.LookupKey)
	}
	return nil
}
