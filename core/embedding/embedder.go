package embedding

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/memoria/helper"
)

// DefaultModelName produces 384-dimensional sentence embeddings.
const DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultEmbedder creates an embedder using a real sentence transformer model
func DefaultEmbedder() (EmbedFunc, error) {
	return NewHugotEmbedder(DefaultModelName)
}

// NewHugotEmbedder runs a feature extraction model locally with hugot's pure
// Go backend. The model is downloaded on first use.
func NewHugotEmbedder(modelName string) (EmbedFunc, error) {
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}, nil
}
