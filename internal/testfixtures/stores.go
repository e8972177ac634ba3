package testfixtures

import (
	"context"
	"sync/atomic"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
)

// ContendedStore wraps a store whose member writes can be made to lose every
// optimistic race.
type ContendedStore struct {
	persistence.Store
	membersContended atomic.Bool
	memberConflicts  atomic.Int64
}

// NewContendedStore wraps store.
func NewContendedStore(store persistence.Store) *ContendedStore {
	return &ContendedStore{Store: store}
}

// ContendMembers switches the member write conflicts on or off.
func (s *ContendedStore) ContendMembers(on bool) {
	s.membersContended.Store(on)
}

// MemberConflicts reports how many member writes were rejected.
func (s *ContendedStore) MemberConflicts() int64 {
	return s.memberConflicts.Load()
}

// SaveMember fails with persistence.ErrConflict while members are contended.
func (s *ContendedStore) SaveMember(ctx context.Context, member domain.Member) (domain.Member, error) {
	if s.membersContended.Load() {
		s.memberConflicts.Add(1)
		return domain.Member{}, persistence.ErrConflict
	}
	return s.Store.SaveMember(ctx, member)
}
