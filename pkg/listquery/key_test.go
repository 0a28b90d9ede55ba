package listquery

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyIsDeterministic(t *testing.T) {
	scope := Scope{Role: "superadmin"}
	a := url.Values{"b": {"2"}, "a": {"1"}}
	b := url.Values{"a": {"1"}, "b": {"2"}}

	assert.Equal(t, CacheKey("surveys", scope, a), CacheKey("surveys", scope, b))
	assert.Equal(t, "surveys:superadmin@-:a=1&b=2", CacheKey("surveys", scope, a))
}

func TestCacheKeyDistinguishesEveryInput(t *testing.T) {
	scope := Scope{Role: "schooladmin", InstitutionID: 5}
	base := func() State {
		st := NewState(20)
		st.SetFilter("status", "active")
		st.SetSort(SortSpec{Field: "title", Direction: Asc})
		return st
	}
	specs := []FilterSpec{{Key: "status"}}
	opts := SerializeOptions{Paginate: true}
	key := func(st State, sc Scope) string {
		return CacheKey("surveys", sc, Serialize(specs, st, opts))
	}
	ref := key(base(), scope)

	variants := map[string]func() (State, Scope){
		"filter":    func() (State, Scope) { st := base(); st.SetFilter("status", "draft"); return st, scope },
		"sort":      func() (State, Scope) { st := base(); st.ToggleSort("title"); return st, scope },
		"page":      func() (State, Scope) { st := base(); st.SetPage(2); return st, scope },
		"per page":  func() (State, Scope) { st := base(); st.SetPerPage(50); return st, scope },
		"role":      func() (State, Scope) { return base(), Scope{Role: "teacher", InstitutionID: 5} },
		"institute": func() (State, Scope) { return base(), Scope{Role: "schooladmin", InstitutionID: 6} },
	}
	for name, variant := range variants {
		st, sc := variant()
		assert.NotEqual(t, ref, key(st, sc), name)
	}
}

func TestPrefixMatchesOnlyItsResource(t *testing.T) {
	key := CacheKey("surveys", Scope{}, url.Values{})
	assert.True(t, strings.HasPrefix(key, Prefix("surveys")))
	assert.False(t, strings.HasPrefix(CacheKey("survey-stats", Scope{}, nil), Prefix("surveys")))
}
