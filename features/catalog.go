package features

// FieldKind distinguishes numeric inputs from fixed-option selectors.
type FieldKind int

const (
	Numeric FieldKind = iota
	Categorical
)

// Field describes one form input and the training column it feeds.
type Field struct {
	Name    string   // human-facing key used in raw records and form posts
	Label   string   // form label
	Section string   // form section heading
	Kind    FieldKind
	Default float64  // numeric default
	Options []string // categorical options, first is the default selection
	Choices []Choice // numeric selectors (e.g. initial diagnosis 0/1)
	Column  string   // training column (numeric) or one-hot prefix (categorical)
}

// Choice is a labelled numeric option.
type Choice struct {
	Value float64
	Label string
}

// Catalog is the ordered list of fields collected by the form.
type Catalog struct {
	fields []Field
	byName map[string]int
}

// NewCatalog indexes fields by name. Later duplicates replace earlier ones.
func NewCatalog(fields []Field) *Catalog {
	c := &Catalog{
		fields: make([]Field, 0, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Column == "" {
			f.Column = f.Name
		}
		if idx, ok := c.byName[f.Name]; ok {
			c.fields[idx] = f
			continue
		}
		c.byName[f.Name] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	return c
}

// Fields returns the catalog fields in form order.
func (c *Catalog) Fields() []Field {
	return append([]Field(nil), c.fields...)
}

// Field looks up a field by name.
func (c *Catalog) Field(name string) (Field, bool) {
	if c == nil {
		return Field{}, false
	}
	idx, ok := c.byName[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[idx], true
}

// Sections returns the distinct section names in form order.
func (c *Catalog) Sections() []string {
	seen := make(map[string]bool)
	var sections []string
	for _, f := range c.fields {
		if !seen[f.Section] {
			seen[f.Section] = true
			sections = append(sections, f.Section)
		}
	}
	return sections
}

// MeasurementFields returns the numeric fields that are plain cell
// measurements, i.e. numeric fields without discrete choices.
func (c *Catalog) MeasurementFields() []Field {
	var out []Field
	for _, f := range c.fields {
		if f.Kind == Numeric && len(f.Choices) == 0 {
			out = append(out, f)
		}
	}
	return out
}

// Columns returns the encoded column list a trainer would produce from a CSV
// holding exactly the catalog's columns with every option observed: numeric
// columns first, then the categorical expansion in sorted category order.
func (c *Catalog) Columns(conv Convention) []string {
	if conv == CategoryCodes {
		// code columns keep their CSV position
		out := make([]string, 0, len(c.fields))
		for _, f := range c.fields {
			out = append(out, f.Column)
		}
		return out
	}
	var numeric, dummies []string
	for _, f := range c.fields {
		if f.Kind == Numeric {
			numeric = append(numeric, f.Column)
			continue
		}
		for _, opt := range sortedCopy(f.Options) {
			dummies = append(dummies, OneHotColumn(f.Column, opt))
		}
	}
	return append(numeric, dummies...)
}

// DefaultCatalog is the breast cancer early-risk form.
func DefaultCatalog() *Catalog {
	const (
		mean    = "Mean Cell Measurements"
		errs    = "Error Metrics"
		worst   = "Worst Cell Measurements"
		history = "Patient History & Lifestyle"
	)
	num := func(name, label, section string, def float64) Field {
		return Field{Name: name, Label: label, Section: section, Kind: Numeric, Default: def}
	}
	cat := func(name, label, column string, options ...string) Field {
		return Field{Name: name, Label: label, Section: history, Kind: Categorical, Options: options, Column: column}
	}
	yesNo := []string{"No", "Yes"}

	return NewCatalog([]Field{
		num("mean radius", "Mean Radius (mm)", mean, 14.0),
		num("mean texture", "Mean Texture", mean, 20.0),
		num("mean perimeter", "Mean Perimeter (mm)", mean, 90.0),
		num("mean area", "Mean Area (mm²)", mean, 600.0),
		num("mean smoothness", "Mean Smoothness", mean, 0.1),
		num("mean compactness", "Mean Compactness", mean, 0.1),
		num("mean concavity", "Mean Concavity", mean, 0.1),
		num("mean concave points", "Mean Concave Points", mean, 0.1),
		num("mean symmetry", "Mean Symmetry", mean, 0.2),
		num("mean fractal dimension", "Mean Fractal Dimension", mean, 0.06),

		num("radius error", "Radius Error", errs, 0.5),
		num("texture error", "Texture Error", errs, 1.0),
		num("perimeter error", "Perimeter Error", errs, 3.0),
		num("area error", "Area Error", errs, 40.0),
		num("smoothness error", "Smoothness Error", errs, 0.005),
		num("compactness error", "Compactness Error", errs, 0.02),
		num("concavity error", "Concavity Error", errs, 0.03),
		num("concave points error", "Concave Points Error", errs, 0.02),
		num("symmetry error", "Symmetry Error", errs, 0.02),
		num("fractal dimension error", "Fractal Dimension Error", errs, 0.003),

		num("worst radius", "Worst Radius (mm)", worst, 17.0),
		num("worst texture", "Worst Texture", worst, 25.0),
		num("worst perimeter", "Worst Perimeter (mm)", worst, 110.0),
		num("worst area", "Worst Area (mm²)", worst, 800.0),
		num("worst smoothness", "Worst Smoothness", worst, 0.15),
		num("worst compactness", "Worst Compactness", worst, 0.3),
		num("worst concavity", "Worst Concavity", worst, 0.4),
		num("worst concave points", "Worst Concave Points", worst, 0.2),
		num("worst symmetry", "Worst Symmetry", worst, 0.3),
		num("worst fractal dimension", "Worst Fractal Dimension", worst, 0.09),

		{
			Name:    "likely_malignant",
			Label:   "Initial Diagnosis",
			Section: history,
			Kind:    Numeric,
			Choices: []Choice{{Value: 0, Label: "Benign (0)"}, {Value: 1, Label: "Malignant (1)"}},
		},
		cat("family_history", "Family History", "family_history_breast_cancer", yesNo...),
		cat("menopause_status", "Menopause Status", "menopause_status", "Pre", "Post"),
		cat("alcohol", "Alcohol Intake Per Week", "alcohol_intake_per_week", "Light", "Moderate", "Heavy"),
		cat("physical_activity", "Physical Activity", "physical_activity_level", "Active", "Moderate", "Sedentary"),
		cat("nipple_discharge", "Nipple Discharge", "nipple_discharge", yesNo...),
		cat("palpable_lump", "Palpable Lump", "palpable_lump", yesNo...),
		cat("localized_pain", "Localized Breast Pain", "localized_breast_pain", yesNo...),
	})
}
