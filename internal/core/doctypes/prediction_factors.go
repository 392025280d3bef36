package doctypes

import "github.com/JonMunkholm/bulkimport/internal/core"

const PredictionFactorsKey = "prediction_factors"

// PredictionFactors are the factor series a prediction document supplies per period.
var PredictionFactors = []string{"seasonality", "trend", "promotion"}

func init() {
	specs := []core.FieldSpec{
		{Name: "period", Type: core.FieldPeriod, Required: true},
	}
	for _, f := range PredictionFactors {
		specs = append(specs, core.FieldSpec{Name: f, Type: core.FieldNumeric, Required: true})
	}

	core.Register(core.DocumentType{
		Info: core.DocumentInfo{
			Key:   PredictionFactorsKey,
			Label: "Prediction factor series",
		},
		FieldSpecs: specs,
		NaturalKey: []string{"period"},
	})
}
