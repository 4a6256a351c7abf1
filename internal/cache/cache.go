package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the read-through cache the services put role-scoped listings
// behind. Every mutation invalidates the keys it touches with Forget;
// the cache never outlives the data it fronts by more than the TTL.
type Store interface {
	Remember(key string, ttl time.Duration, producer func() (interface{}, error)) (interface{}, error)
	Forget(key string)
}

const DefaultTTL = time.Hour

type memoryStore struct {
	inner *gocache.Cache
}

// NewMemory returns an in-process Store.
func NewMemory() Store {
	return &memoryStore{inner: gocache.New(DefaultTTL, 10*time.Minute)}
}

func (s *memoryStore) Remember(key string, ttl time.Duration, producer func() (interface{}, error)) (interface{}, error) {
	if v, ok := s.inner.Get(key); ok {
		return v, nil
	}
	v, err := producer()
	if err != nil {
		return nil, err
	}
	s.inner.Set(key, v, ttl)
	return v, nil
}

func (s *memoryStore) Forget(key string) {
	s.inner.Delete(key)
}

// Listing keys. Mutations must Forget every key whose underlying data
// they change, keyed by principal id and by role, mirroring how the
// listings themselves are scoped.
func AllTeamsKey() string { return "all_teams" }

func OwnerTeamsKey(userID uint) string { return fmt.Sprintf("owner_teams_%d", userID) }

func AllProjectsKey() string { return "all_projects" }

func OwnerProjectsKey(userID uint) string { return fmt.Sprintf("team_owner_projects_%d", userID) }

func ManagerProjectsKey(userID uint) string {
	return fmt.Sprintf("project_manager_projects_%d", userID)
}

func AllTasksKey() string { return "all_tasks" }

func OwnerTasksKey(userID uint) string { return fmt.Sprintf("team_owner_tasks_%d", userID) }

func ManagerTasksKey(userID uint) string { return fmt.Sprintf("project_manager_tasks_%d", userID) }

func MemberTasksKey(userID uint) string { return fmt.Sprintf("member_tasks_%d", userID) }

func AllCommentsKey() string { return "all_comments" }
