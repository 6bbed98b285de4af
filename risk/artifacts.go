package risk

import (
	"fmt"

	"cancerrisk/features"
	"cancerrisk/ml"
)

// ArtifactPaths locates the files written by the trainer.
type ArtifactPaths struct {
	ModelPath  string
	SchemaPath string
	// ModelType is a hint for ml.LoadModel; empty reads it from the file.
	ModelType string
	// Convention is the encoding this deployment uses. It must agree with
	// the schema file when the file declares one.
	Convention features.Convention
}

// Artifacts are the immutable inputs of the prediction service.
type Artifacts struct {
	Model      ml.MLModel
	Schema     *features.Schema
	Catalog    *features.Catalog
	Convention features.Convention
}

// LoadArtifacts reads the model and schema and checks that they fit each
// other and the catalog. Any failure is fatal for the caller.
func LoadArtifacts(paths ArtifactPaths, catalog *features.Catalog) (*Artifacts, error) {
	if catalog == nil {
		catalog = features.DefaultCatalog()
	}
	conv := paths.Convention
	if conv == "" {
		conv = features.OneHot
	}

	model, err := ml.LoadModel(paths.ModelType, paths.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	schema, err := features.LoadSchema(paths.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", paths.SchemaPath, err)
	}
	if schema.Convention == "" {
		schema.Convention = conv
	}

	if err := features.ValidateSchema(schema, catalog, conv); err != nil {
		return nil, err
	}
	if model.NFeatures() != schema.Len() {
		return nil, fmt.Errorf("%w: model expects %d features, schema has %d columns",
			features.ErrSchemaMismatch, model.NFeatures(), schema.Len())
	}

	return &Artifacts{
		Model:      model,
		Schema:     schema,
		Catalog:    catalog,
		Convention: conv,
	}, nil
}
