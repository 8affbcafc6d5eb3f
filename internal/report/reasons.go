package report

// Subtype is a refinement of a report reason.
type Subtype struct {
	Name string
	// AsksMinor marks subtypes that require asking whether the reporter is
	// a minor.
	AsksMinor bool
}

// Reason is a top-level report category offered to the reporter.
type Reason struct {
	Name     string
	Question string // asked before listing subtypes
	Subtypes []Subtype
}

// Subtypes shared between reasons.
var (
	subtypeExplicit     = Subtype{Name: "Contains explicit content"}
	subtypeExploitation = Subtype{Name: "Seems like sexual exploitation"}
	subtypeThreatShare  = Subtype{Name: "It's a threat to share my nude images", AsksMinor: true}
	subtypeShared       = Subtype{Name: "My nude images have been shared", AsksMinor: true}
	subtypeSexualHarass = Subtype{Name: "Sexual Harassment"}
	subtypeHateSpeech   = Subtype{Name: "Hate Speech"}
	subtypeTargeted     = Subtype{Name: "Targeted Harassment"}
)

// Reasons is the catalog presented to reporters, in display order.
var Reasons = []Reason{
	{
		Name:     "Nudity and Sexual Content",
		Question: "How does this contain Nudity or Sexual Content?",
		Subtypes: []Subtype{subtypeExplicit, subtypeExploitation, subtypeThreatShare, subtypeShared},
	},
	{
		Name:     "Harassment and Abuse",
		Question: "How is this Harassment or abuse?",
		Subtypes: []Subtype{subtypeThreatShare, subtypeShared, subtypeSexualHarass, subtypeHateSpeech, subtypeTargeted},
	},
	{Name: "Graphic Content"},
	{Name: "Offensive Content"},
	{Name: "Spam"},
}

// Candidate is one selectable (reason, subtype) pair. Subtype is -1 for
// reasons without subtypes.
type Candidate struct {
	Label   string
	Reason  int
	Subtype int
}

// Candidates enumerates every reason/subtype combination as a flat label
// list, for callers that pick a classification without walking the menu.
func Candidates() []Candidate {
	var out []Candidate
	for ri, r := range Reasons {
		if len(r.Subtypes) == 0 {
			out = append(out, Candidate{Label: r.Name, Reason: ri, Subtype: -1})
			continue
		}
		for si, st := range r.Subtypes {
			out = append(out, Candidate{Label: r.Name + ": " + st.Name, Reason: ri, Subtype: si})
		}
	}
	return out
}

// CandidateByLabel finds a candidate by its exact label.
func CandidateByLabel(label string) (Candidate, bool) {
	for _, c := range Candidates() {
		if c.Label == label {
			return c, true
		}
	}
	return Candidate{}, false
}
