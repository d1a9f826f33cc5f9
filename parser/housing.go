package parser

import (
	"strconv"
	"strings"

	"rental-finder/models"
)

// unitAliases maps every accepted spelling of an area unit, after lowercasing
// and whitespace removal, to its unit.
var unitAliases = map[string]models.AreaUnit{
	"ft":           models.AreaSqft,
	"ft2":          models.AreaSqft,
	"ft²":          models.AreaSqft,
	"sqft":         models.AreaSqft,
	"sq.ft":        models.AreaSqft,
	"sf":           models.AreaSqft,
	"squarefeet":   models.AreaSqft,
	"m":            models.AreaSqm,
	"m2":           models.AreaSqm,
	"m²":           models.AreaSqm,
	"sqm":          models.AreaSqm,
	"sq.m":         models.AreaSqm,
	"squaremeters": models.AreaSqm,
	"squaremetres": models.AreaSqm,
}

// housing is the decoded form of a "<bedrooms>br - <area><unit>" summary.
type housing struct {
	Bedrooms    int
	HasBedrooms bool
	Area        float64
	Unit        models.AreaUnit
}

// parseHousing decodes a housing summary such as "/ 2br - 850ft2 - " or
// "studio - 40m2". The unit is resolved from the token text before the
// numeric part is parsed, so a page without a recognizable unit fails with
// ErrUnitUnrecognized even if it carries a number.
func parseHousing(text string) (housing, error) {
	var h housing
	s := strings.ToLower(housingNoise.ReplaceAllString(text, ""))

	if m := bedroomSegment.FindStringSubmatchIndex(s); m != nil {
		if m[2] >= 0 {
			if n, err := strconv.Atoi(s[m[2]:m[3]]); err == nil {
				h.Bedrooms, h.HasBedrooms = n, true
			}
		} else {
			h.HasBedrooms = true // studio
		}
		s = s[m[1]:]
	}

	parts := areaToken.FindStringSubmatch(s)
	number, unitText := parts[1], strings.TrimSuffix(parts[2], ".")

	unit, ok := unitAliases[unitText]
	if !ok {
		return h, &ParseError{Kind: ErrUnitUnrecognized, Detail: strconv.Quote(strings.TrimSpace(text))}
	}
	h.Unit = unit

	area, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil || area <= 0 {
		return h, &ParseError{Kind: ErrAreaUnparseable, Detail: strconv.Quote(strings.TrimSpace(text))}
	}
	h.Area = area
	return h, nil
}
