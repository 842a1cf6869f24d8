package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	"github.com/noah-isme/sma-presence-api/internal/timeslot"
	"github.com/noah-isme/sma-presence-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type scheduleRepoStub struct {
	classes      []models.ClassSchedule
	listCalls    int
	replaced     []models.ClassSchedule
	replaceKey   models.SectionKey
	replaceErr   error
	archivedKey  models.SectionKey
	archiveCount int64
}

func (s *scheduleRepoStub) ListBySection(ctx context.Context, branch string, year int, section string) ([]models.ClassSchedule, error) {
	s.listCalls++
	var out []models.ClassSchedule
	for _, c := range s.classes {
		if c.Branch == branch && c.Year == year && c.Section == section {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *scheduleRepoStub) ListByFaculty(ctx context.Context, facultyID string) ([]models.ClassSchedule, error) {
	var out []models.ClassSchedule
	for _, c := range s.classes {
		if c.FacultyID == facultyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ClassSchedule, error) {
	for _, c := range s.classes {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleRepoStub) Roster(ctx context.Context, classID string) ([]string, error) {
	class, err := s.FindByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	return class.Roster, nil
}

func (s *scheduleRepoStub) ReplaceSection(ctx context.Context, key models.SectionKey, classes []models.ClassSchedule) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaceKey = key
	s.replaced = classes
	return nil
}

func (s *scheduleRepoStub) ArchiveSection(ctx context.Context, key models.SectionKey, at time.Time) (int64, error) {
	s.archivedKey = key
	return s.archiveCount, nil
}

// memoryCache is a CacheRepository backed by a map of JSON payloads.
type memoryCache struct {
	entries map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

func newRegistryFixture(t *testing.T) (*RegistryService, *scheduleRepoStub, *memoryCache) {
	t.Helper()
	resolver, err := timeslot.ParseTable(config.DefaultPeriodTable)
	require.NoError(t, err)
	repo := &scheduleRepoStub{classes: []models.ClassSchedule{
		{ID: "c-3", Subject: "Chemistry", FacultyID: "F2", Branch: "CSE", Year: 2, Section: "A", DayOfWeek: "WEDNESDAY", Periods: models.PeriodSet{5, 6}},
		{ID: "c-2", Subject: "Physics", FacultyID: "F1", Branch: "CSE", Year: 2, Section: "A", DayOfWeek: "MONDAY", Periods: models.PeriodSet{3, 4}},
		{ID: "c-1", Subject: "Maths", FacultyID: "F1", Branch: "CSE", Year: 2, Section: "A", DayOfWeek: "MONDAY", Periods: models.PeriodSet{1, 2}, Roster: []string{"S2", "S1"}},
		{ID: "c-9", Subject: "Maths", FacultyID: "F1", Branch: "ECE", Year: 1, Section: "B", DayOfWeek: "FRIDAY", Periods: models.PeriodSet{1}},
	}}
	cacheRepo := newMemoryCache()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	return NewRegistryService(repo, resolver, cache, nil, nil), repo, cacheRepo
}

func TestRegistryScheduleForGroupsByDayInOrder(t *testing.T) {
	svc, repo, _ := newRegistryFixture(t)
	ctx := context.Background()
	key := models.SectionKey{Branch: "CSE", Year: 2, Section: "A"}

	days, err := svc.ScheduleFor(ctx, key)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "MONDAY", days[0].Day)
	require.Len(t, days[0].Classes, 2)
	assert.Equal(t, "c-1", days[0].Classes[0].ID)
	assert.Equal(t, "c-2", days[0].Classes[1].ID)
	assert.Equal(t, "WEDNESDAY", days[1].Day)

	_, err = svc.ScheduleFor(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls, "second read is served from cache")

	_, err = svc.ScheduleFor(ctx, models.SectionKey{Branch: "CSE"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRegistryClassesOwnedByAndRoster(t *testing.T) {
	svc, _, _ := newRegistryFixture(t)
	ctx := context.Background()

	classes, err := svc.ClassesOwnedBy(ctx, "F1")
	require.NoError(t, err)
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c-1", "c-2", "c-9"}, ids)

	roster, err := svc.RosterOf(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, roster)

	_, err = svc.FindClass(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrUnknownClass)
}

func TestRegistryReplaceSectionValidatesBeforeWriting(t *testing.T) {
	svc, repo, _ := newRegistryFixture(t)
	ctx := context.Background()
	key := models.SectionKey{Branch: "CSE", Year: 2, Section: "A"}

	_, err := svc.ReplaceSection(ctx, models.ReplaceSectionRequest{SectionKey: key, Classes: []models.ClassInput{
		{Subject: "Maths", FacultyID: "F1", DayOfWeek: "Funday", Periods: []int{1}},
	}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ReplaceSection(ctx, models.ReplaceSectionRequest{SectionKey: key, Classes: []models.ClassInput{
		{Subject: "Maths", FacultyID: "F1", DayOfWeek: "monday", Periods: []int{1, 9}},
	}})
	assert.ErrorIs(t, err, appErrors.ErrInvalidPeriods)

	_, err = svc.ReplaceSection(ctx, models.ReplaceSectionRequest{SectionKey: key, Classes: []models.ClassInput{
		{Subject: "", FacultyID: "F1", DayOfWeek: "monday", Periods: []int{1}},
	}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Nil(t, repo.replaced)
}

func TestRegistryReplaceSectionInvalidatesCache(t *testing.T) {
	svc, repo, cacheRepo := newRegistryFixture(t)
	ctx := context.Background()
	key := models.SectionKey{Branch: "CSE", Year: 2, Section: "A"}
	_, err := svc.ScheduleFor(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, cacheRepo.entries)

	days, err := svc.ReplaceSection(ctx, models.ReplaceSectionRequest{SectionKey: key, Classes: []models.ClassInput{
		{Subject: "Biology", FacultyID: "F3", DayOfWeek: "tuesday", Periods: []int{2, 1}, Roster: []string{"S5", "S4", "S5"}},
	}})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "TUESDAY", days[0].Day)
	require.Len(t, repo.replaced, 1)
	assert.Equal(t, models.PeriodSet{1, 2}, repo.replaced[0].Periods)
	assert.Equal(t, []string{"S4", "S5"}, repo.replaced[0].Roster)
	assert.Equal(t, key, repo.replaceKey)
	assert.Empty(t, cacheRepo.entries)
	assert.Equal(t, []string{"schedule:*", "class:*"}, cacheRepo.deleted)
}

func TestRegistryReplaceSectionStoreFailure(t *testing.T) {
	svc, repo, _ := newRegistryFixture(t)
	repo.replaceErr = errors.New("tx aborted")

	_, err := svc.ReplaceSection(context.Background(), models.ReplaceSectionRequest{
		SectionKey: models.SectionKey{Branch: "CSE", Year: 2, Section: "A"},
		Classes:    []models.ClassInput{{Subject: "Maths", FacultyID: "F1", DayOfWeek: "MONDAY", Periods: []int{1}}},
	})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestRegistryReplaceSectionTakenClassIDIsConflict(t *testing.T) {
	svc, repo, _ := newRegistryFixture(t)
	repo.replaceErr = fmt.Errorf("class id math-a is already taken: %w", repository.ErrDuplicate)

	_, err := svc.ReplaceSection(context.Background(), models.ReplaceSectionRequest{
		SectionKey: models.SectionKey{Branch: "CSE", Year: 2, Section: "B"},
		Classes:    []models.ClassInput{{ID: "math-a", Subject: "Maths", FacultyID: "F1", DayOfWeek: "MONDAY", Periods: []int{1}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestRegistryArchiveSection(t *testing.T) {
	svc, repo, _ := newRegistryFixture(t)
	repo.archiveCount = 3
	key := models.SectionKey{Branch: "CSE", Year: 2, Section: "A"}

	archived, err := svc.ArchiveSection(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), archived)
	assert.Equal(t, key, repo.archivedKey)
}
