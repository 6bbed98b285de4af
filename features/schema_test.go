package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_columns.json")
	schema, err := NewSchema(DefaultCatalog().Columns(OneHot), OneHot)
	require.NoError(t, err)
	require.NoError(t, schema.Save(path))

	loaded, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, OneHot, loaded.Convention)
	if diff := cmp.Diff(schema.Columns, loaded.Columns); diff != "" {
		t.Fatalf("columns changed on reload (-saved +loaded):\n%s", diff)
	}
}

func TestLoadSchemaBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.json")
	require.NoError(t, os.WriteFile(path, []byte(`["mean radius", "palpable_lump_Yes"]`), 0o644))

	loaded, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Empty(t, loaded.Convention)
	assert.Equal(t, []string{"mean radius", "palpable_lump_Yes"}, loaded.Columns)
}

func TestLoadSchemaErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"empty array", `[]`},
		{"duplicates", `["a", "a"]`},
		{"not json", `mean radius,mean area`},
		{"unknown convention", `{"convention": "hashing", "columns": ["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadSchema(path)
			require.ErrorIs(t, err, ErrInvalidSchema)
		})
	}

	_, err := LoadSchema(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		input   string
		want    Convention
		wantErr bool
	}{
		{"", OneHot, false},
		{"one_hot", OneHot, false},
		{"OneHot", OneHot, false},
		{"category_codes", CategoryCodes, false},
		{"codes", CategoryCodes, false},
		{"ordinal", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConvention(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSchema(t *testing.T) {
	catalog := DefaultCatalog()

	full, err := NewSchema(catalog.Columns(OneHot), OneHot)
	require.NoError(t, err)
	require.NoError(t, ValidateSchema(full, catalog, OneHot))

	codes, err := NewSchema(catalog.Columns(CategoryCodes), CategoryCodes)
	require.NoError(t, err)
	require.NoError(t, ValidateSchema(codes, catalog, CategoryCodes))

	// a category-code schema cannot serve a one-hot deployment
	codes.Convention = ""
	err = ValidateSchema(codes, catalog, OneHot)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "family_history_breast_cancer_*")

	// missing numeric column and an unknown column are both reported
	columns := append([]string{"tumour_grade"}, full.Columns[1:]...)
	partial, err := NewSchema(columns, OneHot)
	require.NoError(t, err)
	err = ValidateSchema(partial, catalog, OneHot)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), `"mean radius"`)
	assert.Contains(t, err.Error(), "tumour_grade")

	// declared convention disagrees with deployment
	err = ValidateSchema(full, catalog, CategoryCodes)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestCatalogColumns(t *testing.T) {
	catalog := DefaultCatalog()
	oneHot := catalog.Columns(OneHot)
	require.Len(t, oneHot, 31+16)
	assert.Equal(t, "mean radius", oneHot[0])
	assert.Equal(t, "likely_malignant", oneHot[30])
	assert.Equal(t, "family_history_breast_cancer_No", oneHot[31])
	assert.Equal(t, "menopause_status_Post", oneHot[33])

	codes := catalog.Columns(CategoryCodes)
	require.Len(t, codes, 38)
	assert.Equal(t, "localized_breast_pain", codes[37])

	assert.Equal(t, []string{
		"Mean Cell Measurements",
		"Error Metrics",
		"Worst Cell Measurements",
		"Patient History & Lifestyle",
	}, catalog.Sections())
}
