package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/core/user"
)

// DB is an in-memory stand-in for the postgres database, used by tests and DEV runs.
type DB struct {
	mutex sync.RWMutex

	agencies      map[string]*tenant.Agency
	tenants       map[string]*tenant.Tenant
	users         map[string]*user.User
	programs      map[string]*program.Program
	enrollments   map[string]*enrollment.Enrollment
	assessments   map[string]*assessment.Assessment
	raters        map[string]*assessment.Rater
	responses     map[string][]assessment.Response // {raterID: responses}
	engagements   map[string]*coaching.Engagement
	sessions      map[string]*coaching.Session
	notifications map[string]*notification.Notification
	files         map[string]*upload.File
}

func Open() *DB {
	db := &DB{}
	db.Reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.agencies = make(map[string]*tenant.Agency)
	db.tenants = make(map[string]*tenant.Tenant)
	db.users = make(map[string]*user.User)
	db.programs = make(map[string]*program.Program)
	db.enrollments = make(map[string]*enrollment.Enrollment)
	db.assessments = make(map[string]*assessment.Assessment)
	db.raters = make(map[string]*assessment.Rater)
	db.responses = make(map[string][]assessment.Response)
	db.engagements = make(map[string]*coaching.Engagement)
	db.sessions = make(map[string]*coaching.Session)
	db.notifications = make(map[string]*notification.Notification)
	db.files = make(map[string]*upload.File)
}

func newID() string {
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// sortByOrderings sorts n items with less functions keyed by ordering field; unknown fields are ignored.
// With no usable ordering, items are sorted by dflt.
func sortByOrderings(n int, swap func(i, j int), orderings []core.DBOrdering, cmps map[string]func(i, j int) int, dflt func(i, j int) int) {
	less := func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			if c := cmp(i, j); c != 0 {
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return dflt(i, j) < 0
	}
	sort.Stable(sorter{n: n, less: less, swap: swap})
}

type sorter struct {
	n    int
	less func(i, j int) bool
	swap func(i, j int)
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }

func cmpStrings(a, b string) int {
	return strings.Compare(a, b)
}

func cmpTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func cmpBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
