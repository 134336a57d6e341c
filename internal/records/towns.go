package records

import (
	"errors"
	"fmt"
)

// ErrUnknownTownCode is returned for a building contract town code missing
// from the legend. Fails closed: mapping to a wrong town would corrupt
// downstream aggregation, so the row is rejected instead.
var ErrUnknownTownCode = errors.New("unknown town code")

// townLegend maps building contract town codes to full town names.
var townLegend = map[string]string{
	"AMK": "ANG MO KIO",
	"BB":  "BUKIT BATOK",
	"BD":  "BEDOK",
	"BH":  "BISHAN",
	"BM":  "BUKIT MERAH",
	"BP":  "BUKIT PANJANG",
	"BT":  "BUKIT TIMAH",
	"CCK": "CHOA CHU KANG",
	"CL":  "CLEMENTI",
	"CT":  "CENTRAL AREA",
	"GL":  "GEYLANG",
	"HG":  "HOUGANG",
	"JE":  "JURONG EAST",
	"JW":  "JURONG WEST",
	"KWN": "KALLANG",
	"MP":  "MARINE PARADE",
	"PG":  "PUNGGOL",
	"PRC": "PASIR RIS",
	"QT":  "QUEENSTOWN",
	"SB":  "SEMBAWANG",
	"SGN": "SERANGOON",
	"SK":  "SENGKANG",
	"TAP": "TAMPINES",
	"TG":  "TENGAH",
	"TP":  "TOA PAYOH",
	"WL":  "WOODLANDS",
	"YS":  "YISHUN",
}

// TownName resolves a building contract town code to its full name.
func TownName(code string) (string, error) {
	name, ok := townLegend[code]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTownCode, code)
	}
	return name, nil
}
