package audit

import (
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// Journal records every classID change it observes. It is an
// agent.StateObserver.
type Journal struct {
	logger Logger
}

// NewJournal returns a journal writing to logger.
func NewJournal(logger Logger) *Journal {
	return &Journal{logger: logger}
}

// StateUpdated logs the classID changes of delta. A failed write is logged
// and the remaining events are still attempted.
func (j *Journal) StateUpdated(delta *state.StateDelta) {
	for _, e := range EventsFromDelta(delta) {
		if err := j.logger.Log(e); err != nil {
			util.WithField("key", e.Key).Errorf("audit: %v", err)
		}
	}
}
