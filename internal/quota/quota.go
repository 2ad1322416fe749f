// Package quota enforces the daily topic and post limits that come with a
// character status.
package quota

import (
	"context"
	"fmt"
	"time"

	"rpg-forum/internal/character"
	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

type Kind string

const (
	Topics Kind = "topics"
	Posts  Kind = "posts"
)

// Window is how far back content counts against the quota.
const Window = 24 * time.Hour

// Usage is the state of one quota for one user.
type Usage struct {
	Kind      Kind  `json:"kind"`
	Used      int64 `json:"used"`
	Limit     int   `json:"limit"`
	Unlimited bool  `json:"unlimited"`
	Allowed   bool  `json:"allowed"`
}

type Checker struct {
	activity store.Activity
	chars    *character.Resolver
	now      func() time.Time
}

func NewChecker(activity store.Activity, chars *character.Resolver) *Checker {
	return &Checker{activity: activity, chars: chars, now: time.Now}
}

// Allow reports whether user may create one more item of kind. Staff have no
// quota.
func (c *Checker) Allow(ctx context.Context, user *model.User, kind Kind) (Usage, error) {
	u := Usage{Kind: kind}
	if user.Role.IsStaff() {
		u.Unlimited, u.Allowed = true, true
		return u, nil
	}
	st, err := c.chars.Resolve(ctx, user.ID)
	if err != nil {
		return u, err
	}
	since := c.now().Add(-Window)
	switch kind {
	case Topics:
		u.Limit = st.Capabilities.MaxTopicsPerDay
		u.Used, err = c.activity.CountTopicsSince(ctx, user.ID, since)
	case Posts:
		u.Limit = st.Capabilities.MaxPostsPerDay
		u.Used, err = c.activity.CountPostsSince(ctx, user.ID, since)
	default:
		return u, fmt.Errorf("unknown quota kind %q", kind)
	}
	if err != nil {
		return u, err
	}
	u.Allowed = u.Used < int64(u.Limit)
	return u, nil
}
