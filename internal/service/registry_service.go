package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	"github.com/noah-isme/sma-presence-api/internal/timeslot"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type scheduleRepository interface {
	ListBySection(ctx context.Context, branch string, year int, section string) ([]models.ClassSchedule, error)
	ListByFaculty(ctx context.Context, facultyID string) ([]models.ClassSchedule, error)
	FindByID(ctx context.Context, id string) (*models.ClassSchedule, error)
	Roster(ctx context.Context, classID string) ([]string, error)
	ReplaceSection(ctx context.Context, key models.SectionKey, classes []models.ClassSchedule) error
	ArchiveSection(ctx context.Context, key models.SectionKey, at time.Time) (int64, error)
}

// RegistryService answers schedule, ownership and roster questions.
type RegistryService struct {
	repo      scheduleRepository
	periods   *timeslot.Resolver
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistryService constructs a registry service. cache may be nil.
func NewRegistryService(repo scheduleRepository, periods *timeslot.Resolver, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RegistryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RegistryService{repo: repo, periods: periods, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// ScheduleFor returns a section's classes grouped by weekday, Monday first,
// each day ordered by first period. Days without classes are omitted.
func (s *RegistryService) ScheduleFor(ctx context.Context, key models.SectionKey) ([]models.DaySchedule, error) {
	if err := s.validator.Struct(key); err != nil {
		return nil, appErrors.ErrValidation.Because(err, "branch, year and section are required")
	}
	cacheKey := fmt.Sprintf("schedule:section:%s:%d:%s", key.Branch, key.Year, key.Section)
	var cached []models.DaySchedule
	if s.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	classes, err := s.repo.ListBySection(ctx, key.Branch, key.Year, key.Section)
	if err != nil {
		return nil, appErrors.ErrInternal.Because(err, "failed to load schedule")
	}
	days := groupByDay(classes)
	s.cache.Set(ctx, cacheKey, days)
	return days, nil
}

func groupByDay(classes []models.ClassSchedule) []models.DaySchedule {
	buckets := make([][]models.ClassSchedule, len(models.Weekdays))
	for _, class := range classes {
		idx := models.WeekdayIndex(class.DayOfWeek)
		if idx < 0 {
			continue
		}
		buckets[idx] = append(buckets[idx], class)
	}
	days := make([]models.DaySchedule, 0, len(models.Weekdays))
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		sort.SliceStable(bucket, func(a, b int) bool {
			return bucket[a].FirstPeriod() < bucket[b].FirstPeriod()
		})
		days = append(days, models.DaySchedule{Day: models.Weekdays[i], Classes: bucket})
	}
	return days
}

// ClassesOwnedBy lists the classes a faculty member teaches.
func (s *RegistryService) ClassesOwnedBy(ctx context.Context, facultyID string) ([]models.ClassSchedule, error) {
	if strings.TrimSpace(facultyID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "faculty id is required")
	}
	cacheKey := "schedule:faculty:" + facultyID
	var cached []models.ClassSchedule
	if s.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}
	classes, err := s.repo.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.ErrInternal.Because(err, "failed to load faculty classes")
	}
	sort.SliceStable(classes, func(i, j int) bool {
		di, dj := models.WeekdayIndex(classes[i].DayOfWeek), models.WeekdayIndex(classes[j].DayOfWeek)
		if di != dj {
			return di < dj
		}
		return classes[i].FirstPeriod() < classes[j].FirstPeriod()
	})
	s.cache.Set(ctx, cacheKey, classes)
	return classes, nil
}

// FindClass resolves a live class with its roster.
func (s *RegistryService) FindClass(ctx context.Context, classID string) (*models.ClassSchedule, error) {
	cacheKey := "class:" + classID
	var cached models.ClassSchedule
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}
	class, err := s.repo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownClass, fmt.Sprintf("class %s does not exist", classID))
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to load class")
	}
	s.cache.Set(ctx, cacheKey, class)
	return class, nil
}

// RosterOf returns the sorted set of students enrolled in a class.
func (s *RegistryService) RosterOf(ctx context.Context, classID string) ([]string, error) {
	class, err := s.FindClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return uniqueSorted(class.Roster), nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ReplaceSection installs a new set of classes for a section. Validation
// happens before anything is written; the write itself is one transaction.
func (s *RegistryService) ReplaceSection(ctx context.Context, req models.ReplaceSectionRequest) ([]models.DaySchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.ErrValidation.Because(err, "invalid schedule payload")
	}
	classes := make([]models.ClassSchedule, 0, len(req.Classes))
	for i, input := range req.Classes {
		day := strings.ToUpper(strings.TrimSpace(input.DayOfWeek))
		if models.WeekdayIndex(day) < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("classes[%d]: unknown day %q", i, input.DayOfWeek))
		}
		seen := make(map[int]struct{}, len(input.Periods))
		for _, p := range input.Periods {
			if s.periods != nil && !s.periods.Contains(p) {
				return nil, appErrors.Clone(appErrors.ErrInvalidPeriods, fmt.Sprintf("classes[%d]: period %d is not in the bell schedule", i, p))
			}
			if _, dup := seen[p]; dup {
				return nil, appErrors.Clone(appErrors.ErrInvalidPeriods, fmt.Sprintf("classes[%d]: period %d listed more than once", i, p))
			}
			seen[p] = struct{}{}
		}
		classes = append(classes, models.ClassSchedule{
			ID:        strings.TrimSpace(input.ID),
			Subject:   strings.TrimSpace(input.Subject),
			FacultyID: strings.TrimSpace(input.FacultyID),
			DayOfWeek: day,
			Periods:   models.PeriodSet(input.Periods).Sorted(),
			Roster:    uniqueSorted(input.Roster),
		})
	}

	if err := s.repo.ReplaceSection(ctx, req.SectionKey, classes); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrConflict.Because(err, "class id is already used by another section or an archived term")
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to replace section schedule")
	}
	s.invalidate(ctx)
	s.logger.Info("section schedule replaced",
		zap.String("branch", req.Branch), zap.Int("year", req.Year), zap.String("section", req.Section),
		zap.Int("classes", len(classes)))
	return groupByDay(classes), nil
}

// ArchiveSection soft-deletes a section's classes at term end.
func (s *RegistryService) ArchiveSection(ctx context.Context, key models.SectionKey) (int64, error) {
	if err := s.validator.Struct(key); err != nil {
		return 0, appErrors.ErrValidation.Because(err, "branch, year and section are required")
	}
	archived, err := s.repo.ArchiveSection(ctx, key, s.now().UTC())
	if err != nil {
		return 0, appErrors.ErrInternal.Because(err, "failed to archive section")
	}
	s.invalidate(ctx)
	s.logger.Info("section archived",
		zap.String("branch", key.Branch), zap.Int("year", key.Year), zap.String("section", key.Section),
		zap.Int64("classes", archived))
	return archived, nil
}

func (s *RegistryService) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, "schedule:*", "class:*")
}
