package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpdtool/testcore/internal/template"
	"github.com/webpdtool/testcore/internal/testplan"
)

type stubPriorResults struct {
	values map[string]string
	nulls  map[string]bool
}

func (s stubPriorResults) Lookup(key string) (string, bool, bool) {
	if s.nulls[key] {
		return "", true, true
	}

	v, ok := s.values[key]

	return v, false, ok
}

func TestResolve_MergesDirectColumnsAndParameterBag(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{
		TestType:   "powerset",
		SwitchMode: "*",
		Parameters: map[string]interface{}{
			"Instrument": "psu_1", "SetVolt": 5.0, "SetCurr": 1.0, "Channel": 1,
		},
	}

	resolved, err := Resolve(item, catalog, stubPriorResults{})
	require.NoError(t, err)

	assert.Equal(t, "psu_1", resolved["Instrument"])
	assert.Equal(t, 5.0, resolved["SetVolt"])
}

func TestResolve_UseResultSubstitutesPriorValue(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{
		TestType:   "other",
		SwitchMode: "*",
		UseResult:  "item_1",
	}

	prior := stubPriorResults{values: map[string]string{"item_1": "12.0"}}

	resolved, err := Resolve(item, catalog, prior)
	require.NoError(t, err)

	assert.Equal(t, "12", resolved["use_result"], "trailing .0 is stripped from integral-looking decimals")
}

func TestResolve_UseResultNotFound(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{TestType: "other", SwitchMode: "*", UseResult: "missing_item"}

	_, err := Resolve(item, catalog, stubPriorResults{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUseResultNotFound)
}

func TestResolve_UseResultNull(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{TestType: "other", SwitchMode: "*", UseResult: "item_1"}

	prior := stubPriorResults{nulls: map[string]bool{"item_1": true}}

	resolved, err := Resolve(item, catalog, prior)
	require.NoError(t, err)
	assert.Equal(t, "", resolved["use_result"])
}

func TestResolve_MissingRequiredParameter(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{TestType: "wait", SwitchMode: "*"}

	_, err := Resolve(item, catalog, stubPriorResults{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredParameter)
}

func TestResolve_DirectColumnsSatisfyRequiredParameter(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{TestType: "wait", SwitchMode: "*", WaitMsec: 500}

	resolved, err := Resolve(item, catalog, stubPriorResults{})
	require.NoError(t, err)
	assert.Equal(t, 500, resolved["wait_msec"])
}

func TestResolve_ParameterNameCanonicalization(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{
		TestType:   "other",
		SwitchMode: "*",
		Parameters: map[string]interface{}{"WaitMsec": 200},
	}

	resolved, err := Resolve(item, catalog, stubPriorResults{})
	require.NoError(t, err)
	assert.Equal(t, 200, resolved["wait_msec"])
}

func TestResolve_UnknownCombinationSkipsValidation(t *testing.T) {
	catalog := template.New()
	item := testplan.TestItem{TestType: "totally_unknown", SwitchMode: "*"}

	_, err := Resolve(item, catalog, stubPriorResults{})
	assert.NoError(t, err, "unknown test_type/switch_mode is the Dispatcher's concern, not the Resolver's")
}
