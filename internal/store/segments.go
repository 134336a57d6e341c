package store

// Segment is one physical partition of the resale-price family. Closed
// segments cover a fixed year range and are write-once; the single open
// segment covers 2017 to present and is rewritten on every update.
type Segment struct {
	Name      string
	StartYear int
	EndYear   int // 0 = open-ended
	File      string
}

// Segments lists the fixed partitions, oldest first.
var Segments = []Segment{
	{Name: "1990-1999", StartYear: 1990, EndYear: 1999, File: "prices_1990_1999.csv"},
	{Name: "2000-2012", StartYear: 2000, EndYear: 2012, File: "prices_2000_2012.csv"},
	{Name: "2012-2014", StartYear: 2012, EndYear: 2014, File: "prices_2012_2014.csv"},
	{Name: "2015-2016", StartYear: 2015, EndYear: 2016, File: "prices_2015_2016.csv"},
	{Name: "2017-onwards", StartYear: 2017, EndYear: 0, File: "prices_2017_onwards.csv"},
}

// OpenSegment returns the single mutable segment.
func OpenSegment() Segment {
	return Segments[len(Segments)-1]
}

// IsOpen reports whether the segment is the mutable latest partition.
func (s Segment) IsOpen() bool {
	return s.EndYear == 0
}

// Overlaps reports whether any part of [startYear, endYear] falls inside
// the segment's range.
func (s Segment) Overlaps(startYear, endYear int) bool {
	if s.EndYear == 0 {
		return endYear >= s.StartYear
	}
	return startYear <= s.EndYear && endYear >= s.StartYear
}
