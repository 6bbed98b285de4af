package risk

import "fmt"

// RiskLabel is the binary outcome shown to the user.
type RiskLabel struct {
	value string
}

var (
	RiskLow  = RiskLabel{value: "low risk"}
	RiskHigh = RiskLabel{value: "high risk"}
)

// PositiveClass is the model class reported as high risk.
const PositiveClass = 1

// RiskLabelFromClass maps a model class to a label. Only the positive class
// is high risk; there is no threshold on the probability.
func RiskLabelFromClass(class int) RiskLabel {
	if class == PositiveClass {
		return RiskHigh
	}
	return RiskLow
}

// RiskLabelFromString reconstructs a RiskLabel from its string form.
func RiskLabelFromString(s string) (RiskLabel, error) {
	switch s {
	case RiskHigh.value:
		return RiskHigh, nil
	case RiskLow.value:
		return RiskLow, nil
	default:
		return RiskLabel{}, fmt.Errorf("invalid risk label: %q", s)
	}
}

func (r RiskLabel) String() string {
	return r.value
}

// Headline is the sentence displayed with the result.
func (r RiskLabel) Headline() string {
	switch r {
	case RiskHigh:
		return "High Risk of Early Breast Cancer"
	case RiskLow:
		return "Low Risk of Early Breast Cancer"
	default:
		return ""
	}
}

// IsHigh reports whether the label is RiskHigh.
func (r RiskLabel) IsHigh() bool {
	return r == RiskHigh
}

// IsZero reports whether the label is unset.
func (r RiskLabel) IsZero() bool {
	return r.value == ""
}

func (r RiskLabel) Equal(other RiskLabel) bool {
	return r.value == other.value
}

// MarshalText encodes the label as its string form.
func (r RiskLabel) MarshalText() ([]byte, error) {
	return []byte(r.value), nil
}

// UnmarshalText decodes a label written by MarshalText.
func (r *RiskLabel) UnmarshalText(text []byte) error {
	label, err := RiskLabelFromString(string(text))
	if err != nil {
		return err
	}
	*r = label
	return nil
}
