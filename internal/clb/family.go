package clb

// Family groups tests by the language they assess.
type Family string

const (
	English Family = "english"
	French  Family = "french"
)

var families = map[TestType]Family{
	CELPIP: English,
	IELTS:  English,
	PTE:    English,
	TEF:    French,
	TCF:    French,
}

// FamilyOf returns the language family of t.
func FamilyOf(t TestType) (Family, bool) {
	f, ok := families[t]
	return f, ok
}

// SameLanguageFamily reports whether a and b assess the same language. A
// secondary test in the primary test's family is rejected by the profile form.
// Unknown tests belong to no family.
func SameLanguageFamily(a, b TestType) bool {
	fa, okA := families[a]
	fb, okB := families[b]
	return okA && okB && fa == fb
}

// SecondaryTestOptions returns the tests of the other family, in display
// order. An unrecognized primary yields no options.
func SecondaryTestOptions(primary TestType) []TestType {
	pf, ok := families[primary]
	if !ok {
		return []TestType{}
	}
	out := make([]TestType, 0, len(AllTestTypes))
	for _, t := range AllTestTypes {
		if families[t] != pf {
			out = append(out, t)
		}
	}
	return out
}
