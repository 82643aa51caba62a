package session

import (
	"strconv"
	"sync"

	"github.com/webpdtool/testcore/internal/testplan"
)

// inMemoryPriorResults is the Session's own within-run cache of measured
// results, keyed by item_name and by the textual form of item_no (spec
// §4.6: "looked up by item_name first, then by the textual form of
// item_no"). It satisfies resolver.PriorResults directly; the Result Store
// (C8) has its own Store-backed adapter for the same interface, scoped to
// one session.
type inMemoryPriorResults struct {
	mu     sync.Mutex
	byName map[string]testplan.MeasurementResult
	byNo   map[string]testplan.MeasurementResult
}

func newInMemoryPriorResults() *inMemoryPriorResults {
	return &inMemoryPriorResults{
		byName: make(map[string]testplan.MeasurementResult),
		byNo:   make(map[string]testplan.MeasurementResult),
	}
}

func (p *inMemoryPriorResults) record(item testplan.TestItem, result testplan.MeasurementResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.byName[item.ItemName] = result
	p.byNo[strconv.Itoa(item.ItemNo)] = result
}

// Lookup satisfies resolver.PriorResults.
func (p *inMemoryPriorResults) Lookup(key string) (value string, isNull bool, found bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.byName[key]
	if !ok {
		result, ok = p.byNo[key]
	}

	if !ok {
		return "", false, false
	}

	if result.IsNull {
		return "", true, true
	}

	return result.MeasuredText, false, true
}
