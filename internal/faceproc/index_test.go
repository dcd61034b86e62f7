package faceproc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/datastore"
)

// tagged builds a record whose template is identified by its Version field
func tagged(id string, tag int) datastore.FaceprintRecord {
	return datastore.FaceprintRecord{EmployeeID: id, Faceprint: biometric.Faceprint{Version: tag}}
}

type scoreTable map[int]biometric.MatchOutcome

func (s scoreTable) Match(_, stored biometric.Faceprint) (biometric.MatchOutcome, error) {
	outcome, ok := s[stored.Version]
	if !ok {
		return biometric.MatchOutcome{}, errors.New("device error")
	}
	return outcome, nil
}

func TestBuildIndexGroupsInFirstAppearanceOrder(t *testing.T) {
	idx := BuildIndex([]datastore.FaceprintRecord{
		tagged("E2", 1),
		tagged("E1", 2),
		tagged("E2", 3),
		tagged("", 4),
		tagged("E3", 5),
	})

	require.Equal(t, 3, idx.Len())
	assert.Equal(t, 4, idx.Templates())
	entries := idx.Entries()
	assert.Equal(t, "E2", entries[0].EmployeeID)
	assert.Len(t, entries[0].Templates, 2)
	assert.Equal(t, 3, entries[0].Templates[1].Version)
	assert.Equal(t, "E1", entries[1].EmployeeID)
	assert.Equal(t, "E3", entries[2].EmployeeID)

	var empty *FaceprintIndex
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Entries())
}

func TestSelectCandidate(t *testing.T) {
	ok := func(score int) biometric.MatchOutcome { return biometric.MatchOutcome{Success: true, Score: score} }

	tests := []struct {
		name    string
		records []datastore.FaceprintRecord
		scores  scoreTable
		want    string
		found   bool
	}{
		{
			name:    "highest wins",
			records: []datastore.FaceprintRecord{tagged("E1", 1), tagged("E2", 2), tagged("E3", 3)},
			scores:  scoreTable{1: ok(1200), 2: ok(3100), 3: ok(2000)},
			want:    "E2",
			found:   true,
		},
		{
			name:    "tie keeps first evaluated",
			records: []datastore.FaceprintRecord{tagged("E1", 1), tagged("E2", 2)},
			scores:  scoreTable{1: ok(2000), 2: ok(2000)},
			want:    "E1",
			found:   true,
		},
		{
			name:    "below threshold never selected",
			records: []datastore.FaceprintRecord{tagged("E1", 1), tagged("E2", 2)},
			scores:  scoreTable{1: ok(999), 2: ok(400)},
			found:   false,
		},
		{
			name:    "threshold is inclusive",
			records: []datastore.FaceprintRecord{tagged("E1", 1)},
			scores:  scoreTable{1: ok(1000)},
			want:    "E1",
			found:   true,
		},
		{
			name:    "unsuccessful match ignored whatever its score",
			records: []datastore.FaceprintRecord{tagged("E1", 1), tagged("E2", 2)},
			scores:  scoreTable{1: {Success: false, Score: 9000}, 2: ok(1500)},
			want:    "E2",
			found:   true,
		},
		{
			name:    "match error skips template",
			records: []datastore.FaceprintRecord{tagged("E1", 1), tagged("E1", 2)},
			scores:  scoreTable{2: ok(1800)},
			want:    "E1",
			found:   true,
		},
		{
			name:  "empty index",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := SelectCandidate(tt.scores, BuildIndex(tt.records), biometric.Faceprint{}, 1000)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got.EmployeeID)
			}
		})
	}
}

func TestDailyTrigger(t *testing.T) {
	at, err := ParseDailyTime("16:10")
	require.NoError(t, err)
	assert.Equal(t, "16:10", at.String())

	day := func(d, h, m int) time.Time { return time.Date(2026, 3, d, h, m, 0, 0, time.Local) }

	trigger := newDailyTrigger(at, day(1, 9, 0))
	assert.False(t, trigger.due(day(1, 16, 9)))
	assert.True(t, trigger.due(day(1, 16, 10)))
	assert.False(t, trigger.due(day(1, 16, 40)), "fires once per date")

	// Missed the exact minute: first check afterwards catches up
	assert.True(t, trigger.due(day(2, 18, 30)))

	previous := trigger.lastFired
	assert.True(t, trigger.due(day(3, 16, 10)))
	trigger.undo(previous)
	assert.True(t, trigger.due(day(3, 16, 11)), "undone firing retries")
}

func TestDailyTriggerStartedAfterTarget(t *testing.T) {
	at := DailyTime{Hour: 16, Minute: 10}
	trigger := newDailyTrigger(at, time.Date(2026, 3, 1, 17, 0, 0, 0, time.Local))

	assert.False(t, trigger.due(time.Date(2026, 3, 1, 17, 30, 0, 0, time.Local)))
	assert.True(t, trigger.due(time.Date(2026, 3, 2, 16, 10, 0, 0, time.Local)))
}

func TestParseDailyTimeInvalid(t *testing.T) {
	_, err := ParseDailyTime("4pm")
	assert.Error(t, err)
}
