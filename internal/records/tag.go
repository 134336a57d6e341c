package records

// tagRule pairs a flag accessor with the category it assigns. Rules are
// evaluated in order; the first flag equal to "Y" wins, which makes the
// priority contract explicit: residential outranks commercial, and so on
// down the list.
type tagRule struct {
	tag  string
	flag func(b RawBuilding) string
}

var tagRules = []tagRule{
	{"Residential", func(b RawBuilding) string { return b.Residential }},
	{"Commercial", func(b RawBuilding) string { return b.Commercial }},
	{"Market and hawker", func(b RawBuilding) string { return b.MarketHawker }},
	{"Miscellaneous", func(b RawBuilding) string { return b.Miscellaneous }},
	{"Multi-storey carpark", func(b RawBuilding) string { return b.MultistoreyCarpark }},
	{"Miscellaneous", func(b RawBuilding) string { return b.PrecinctPavilion }},
}

// CategoryTag assigns the building's category from its boolean flag
// columns. Returns "" when no flag is set.
func CategoryTag(b RawBuilding) string {
	for _, rule := range tagRules {
		if rule.flag(b) == "Y" {
			return rule.tag
		}
	}
	return ""
}
