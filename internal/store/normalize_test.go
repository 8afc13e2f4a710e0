package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSector(t *testing.T) {
	cases := map[string]string{
		"II.1. Economic Infrastructure":        "Economic Infrastructure",
		"I.2. Basic Health":                    "Basic Health",
		"VIII.1. Emergency Response":           "Emergency Response",
		"IV. General Environment Protection":   "General Environment Protection",
		"iii.2a. Energy Generation, Renewable": "Energy Generation, Renewable",
		"a. Multisector Aid":                   "Multisector Aid",
		"  Education  ":                        "Education",
		"Industry":                             "Industry", // leading roman letters without a dot stay
		"all":                                  "all",
		"ALL":                                  "all",
		"":                                     "all",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeSector(raw), "raw=%q", raw)
	}
}

func TestNormalizeEntity(t *testing.T) {
	assert.Equal(t, "india", NormalizeEntity("  India "))
	assert.Equal(t, "cote d'ivoire", NormalizeEntity("Cote d'Ivoire"))
}
