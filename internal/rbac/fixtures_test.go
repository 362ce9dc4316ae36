package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/bloodlink/bloodlink/internal/orgunit"
)

// Unit ids of the test hierarchy:
//
//	N1(1) -> R1(10) -> P1(100) -> M1(1000), M2(1001)
//	                -> P2(101) -> M3(1010)
//	      -> R2(11) -> P3(110) -> M4(1100)
//	N2(2)
const (
	unitN1 int64 = 1
	unitN2 int64 = 2
	unitR1 int64 = 10
	unitR2 int64 = 11
	unitP1 int64 = 100
	unitP2 int64 = 101
	unitP3 int64 = 110
	unitM1 int64 = 1000
	unitM2 int64 = 1001
	unitM3 int64 = 1010
	unitM4 int64 = 1100
)

func parent(id int64) *int64 { return &id }

func testUnits() []orgunit.Unit {
	return []orgunit.Unit{
		{ID: unitN1, Name: "National HQ", Level: orgunit.LevelNational},
		{ID: unitN2, Name: "Second Network", Level: orgunit.LevelNational},
		{ID: unitR1, Name: "Region North", Level: orgunit.LevelRegional, ParentID: parent(unitN1)},
		{ID: unitR2, Name: "Region South", Level: orgunit.LevelRegional, ParentID: parent(unitN1)},
		{ID: unitP1, Name: "Province A", Level: orgunit.LevelProvincial, ParentID: parent(unitR1)},
		{ID: unitP2, Name: "Province B", Level: orgunit.LevelProvincial, ParentID: parent(unitR1)},
		{ID: unitP3, Name: "Province C", Level: orgunit.LevelProvincial, ParentID: parent(unitR2)},
		{ID: unitM1, Name: "Town One", Level: orgunit.LevelMunicipal, ParentID: parent(unitP1)},
		{ID: unitM2, Name: "Town Two", Level: orgunit.LevelMunicipal, ParentID: parent(unitP1)},
		{ID: unitM3, Name: "Town Three", Level: orgunit.LevelMunicipal, ParentID: parent(unitP2)},
		{ID: unitM4, Name: "Town Four", Level: orgunit.LevelMunicipal, ParentID: parent(unitP3)},
	}
}

type countingUnits struct {
	mu    sync.Mutex
	inner orgunit.Repository
	calls []int64
	fail  map[int64]error
}

func newCountingUnits(units ...orgunit.Unit) *countingUnits {
	if len(units) == 0 {
		units = testUnits()
	}
	return &countingUnits{inner: orgunit.NewMemoryRepository(units...)}
}

func (c *countingUnits) Unit(ctx context.Context, id int64) (orgunit.Unit, error) {
	c.mu.Lock()
	c.calls = append(c.calls, id)
	err := c.fail[id]
	c.mu.Unlock()
	if err != nil {
		return orgunit.Unit{}, err
	}
	return c.inner.Unit(ctx, id)
}

func (c *countingUnits) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var errBadToken = errors.New("token rejected")

// stubResolver maps credentials to principals.
type stubResolver struct {
	principals map[string]Principal
	err        error
	calls      int
}

func (s *stubResolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	s.calls++
	if s.err != nil {
		return Principal{}, s.err
	}
	p, ok := s.principals[credential]
	if !ok {
		return Principal{}, errBadToken
	}
	return p, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []DenialEvent
	err    error
	panic  bool
}

func (r *recordingSink) Record(ctx context.Context, event DenialEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if r.panic {
		panic("sink exploded")
	}
	return r.err
}

func (r *recordingSink) Events() []DenialEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DenialEvent(nil), r.events...)
}

type recordingObserver struct {
	allowed int
	denied  map[string]int
}

func (o *recordingObserver) ObserveDecision(allowed bool, reason, check string) {
	if allowed {
		o.allowed++
		return
	}
	if o.denied == nil {
		o.denied = make(map[string]int)
	}
	o.denied[reason+"/"+check]++
}

func principalAt(userID, unit int64, level orgunit.Level) Principal {
	return Principal{UserID: userID, IsActive: true, OrgUnitID: unit, Level: level}
}

func unitID(id int64) *int64 { return &id }
