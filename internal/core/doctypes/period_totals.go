package doctypes

import "github.com/JonMunkholm/bulkimport/internal/core"

// PeriodTotalsKey identifies the periodic category totals document.
const PeriodTotalsKey = "period_totals"

// PeriodCategories are the category columns every totals document must carry.
// Further category columns are accepted as long as their values are amounts.
var PeriodCategories = []string{"Revenue", "Cost", "Tax"}

func init() {
	specs := []core.FieldSpec{
		{Name: "period", Type: core.FieldPeriod, Required: true},
	}
	for _, c := range PeriodCategories {
		specs = append(specs, core.FieldSpec{Name: c, Type: core.FieldNumeric, Required: true})
	}

	core.Register(core.DocumentType{
		Info: core.DocumentInfo{
			Key:   PeriodTotalsKey,
			Label: "Periodic category totals",
		},
		FieldSpecs:  specs,
		NaturalKey:  []string{"period"},
		OpenColumns: true,
	})
}
