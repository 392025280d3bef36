package doctypes

import "github.com/JonMunkholm/bulkimport/internal/core"

const TransportManifestKey = "transport_manifest"

func init() {
	core.Register(core.DocumentType{
		Info: core.DocumentInfo{
			Key:   TransportManifestKey,
			Label: "Transport manifest",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "identifier", Type: core.FieldText, Required: true},
			{Name: "name", Type: core.FieldText, Required: true},
			{Name: "source", Type: core.FieldText, Required: true},
			{Name: "period", Type: core.FieldPeriod, Required: true},
			{Name: "weight", Type: core.FieldNumeric},
			{Name: "volume", Type: core.FieldNumeric},
		},
		NaturalKey: []string{"identifier"},
	})
}
