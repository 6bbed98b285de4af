package http

import (
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"

	"cancerrisk/explain"
	"cancerrisk/features"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"signed": func(v float64) string { return fmt.Sprintf("%+.4f", v) },
}).ParseFS(templateFS, "templates/index.html"))

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type fieldView struct {
	Name    string
	Label   string
	Value   string
	Select  bool
	Options []optionView
}

type sectionView struct {
	Title  string
	Fields []fieldView
}

type resultView struct {
	Headline string
	High     bool
}

type explanationView struct {
	Chart         template.URL
	ExpectedValue float64
	Output        float64
	Rows          []explain.Contribution
}

type pageData struct {
	Sections    []sectionView
	Result      *resultView
	Explanation *explanationView
	Error       string
	CanExplain  bool
}

// newPage lays the catalog out by section with rec's values filled in.
func (h *Handlers) newPage(rec features.RawRecord) *pageData {
	catalog := h.svc.Catalog()
	data := &pageData{CanExplain: h.svc.CanExplain()}
	index := make(map[string]int)
	for _, f := range catalog.Fields() {
		idx, ok := index[f.Section]
		if !ok {
			idx = len(data.Sections)
			index[f.Section] = idx
			data.Sections = append(data.Sections, sectionView{Title: f.Section})
		}
		data.Sections[idx].Fields = append(data.Sections[idx].Fields, fieldFor(f, rec))
	}
	return data
}

func fieldFor(f features.Field, rec features.RawRecord) fieldView {
	v := fieldView{Name: f.Name, Label: f.Label}
	switch {
	case f.Kind == features.Categorical:
		v.Select = true
		v.Value = rec.Categorical[f.Name]
		for _, opt := range f.Options {
			v.Options = append(v.Options, optionView{Value: opt, Label: opt, Selected: opt == v.Value})
		}
	case len(f.Choices) > 0:
		v.Select = true
		v.Value = formatNumber(rec.Numeric[f.Name])
		for _, c := range f.Choices {
			value := formatNumber(c.Value)
			v.Options = append(v.Options, optionView{Value: value, Label: c.Label, Selected: value == v.Value})
		}
	default:
		v.Value = formatNumber(rec.Numeric[f.Name])
	}
	return v
}

// overlay echoes submitted values back into the form, even invalid ones.
func (p *pageData) overlay(values url.Values) {
	for s := range p.Sections {
		for i := range p.Sections[s].Fields {
			field := &p.Sections[s].Fields[i]
			if !values.Has(field.Name) {
				continue
			}
			field.Value = values.Get(field.Name)
			for j := range field.Options {
				field.Options[j].Selected = field.Options[j].Value == field.Value
			}
		}
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
