package domain

import (
	"fmt"
	"slices"
)

// Labels is the ordered class list of the classifier's output layer.
// Index i of every score vector refers to Labels[i].
var Labels = []string{
	"Cassava Bacterial Blight",
	"Cassava Brown Streak Disease",
	"Cassava Green Mottle",
	"Cassava Mosaic Disease",
	"Healthy",
}

const HealthyLabel = "Healthy"

type DiseaseRecord struct {
	Label      string   `json:"label"`
	Agent      string   `json:"agent"`
	About      string   `json:"about"`
	Symptoms   []string `json:"symptoms"`
	Prevention []string `json:"prevention"`
}

// catalog is index-aligned with Labels.
var catalog = []DiseaseRecord{
	{
		Label: "Cassava Bacterial Blight",
		Agent: "Xanthomonas spp.",
		About: "Angular water-soaked lesions, stem cankers, wilting and dieback after rains.",
		Symptoms: []string{
			"Angular water-soaked leaf spots",
			"Stem cankers and gum exudate",
			"Wilting and shoot dieback after rains",
		},
		Prevention: []string{
			"Use clean planting cuttings",
			"Remove and destroy infected plants",
			"Disinfect tools",
			"Plant tolerant varieties",
		},
	},
	{
		Label: "Cassava Brown Streak Disease",
		Agent: "Viruses (transmitted by Bemisia tabaci)",
		About: "Causes root necrosis and economic loss. Streaks on stems and chlorotic patches on leaves.",
		Symptoms: []string{
			"Chlorotic patches along leaf veins",
			"Brown streaks on green stems",
			"Dry brown necrosis in storage roots",
		},
		Prevention: []string{
			"Use certified clean planting material",
			"Destroy infected plants",
			"Control whitefly populations",
			"Grow resistant varieties",
		},
	},
	{
		Label: "Cassava Green Mottle",
		Agent: "Cassava Green Mottle Virus",
		About: "Mottled yellow-green patches and leaf distortion. Plants become stunted with poor roots.",
		Symptoms: []string{
			"Yellow-green mottling on young leaves",
			"Twisted or distorted leaf margins",
			"Stunted growth",
		},
		Prevention: []string{
			"Plant virus-free cuttings",
			"Rogue and burn infected plants",
			"Practice crop rotation and sanitation",
		},
	},
	{
		Label: "Cassava Mosaic Disease",
		Agent: "Cassava Mosaic Geminiviruses (CMGs)",
		About: "Distinct yellow mosaics and leaf distortion caused by CMGs. " +
			"Major yield reducer in cassava, transmitted by whiteflies.",
		Symptoms: []string{
			"Yellow or pale green mosaic patterns",
			"Leaf curling and size reduction",
			"Reduced plant vigour",
		},
		Prevention: []string{
			"Use virus-free planting material",
			"Plant resistant varieties",
			"Remove infected plants quickly",
			"Manage whitefly vectors via IPM",
		},
	},
	{
		Label: HealthyLabel,
		Agent: "None",
		About: "Uniform green, symmetrical leaves without necrosis, streaks or distortion.",
		Symptoms: []string{},
		Prevention: []string{
			"Use disease-free cuttings",
			"Maintain good field sanitation",
			"Ensure balanced soil fertility",
			"Scout fields regularly",
		},
	},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, r := range catalog {
		idx[r.Label] = i
	}
	return idx
}()

// ValidateCatalog checks that the disease catalog is keyed by exactly Labels, in order.
func ValidateCatalog() error {
	return validateAgainst(Labels, catalog)
}

func validateAgainst(labels []string, records []DiseaseRecord) error {
	if len(labels) != len(records) {
		return fmt.Errorf("%w: %d labels, %d records", ErrLabelSetMismatch, len(labels), len(records))
	}
	for i, label := range labels {
		if records[i].Label != label {
			return fmt.Errorf("%w: index %d is %q in labels, %q in catalog",
				ErrLabelSetMismatch, i, label, records[i].Label)
		}
	}
	return nil
}

// Diseases returns a copy of the catalog in label order.
// Diseases returns a deep copy of the catalog in label order.
func Diseases() []DiseaseRecord {
	out := make([]DiseaseRecord, len(catalog))
	for i, r := range catalog {
		out[i] = r.clone()
	}
	return out
}

func LookupDisease(label string) (DiseaseRecord, error) {
	i, ok := catalogIndex[label]
	if !ok {
		return DiseaseRecord{}, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return catalog[i].clone(), nil
}

func (r DiseaseRecord) clone() DiseaseRecord {
	r.Symptoms = slices.Clone(r.Symptoms)
	r.Prevention = slices.Clone(r.Prevention)
	return r
}

func LabelIndex(label string) int {
	if i, ok := catalogIndex[label]; ok {
		return i
	}
	return -1
}
