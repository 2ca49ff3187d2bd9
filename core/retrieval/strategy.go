package retrieval

import "github.com/siherrmann/memoria/model"

// selectStrategy applies the strategy policy: without a search term only
// filters apply, otherwise every available signal runs.
func selectStrategy(hasTerm, hasVector, lexicalAvailable, semanticAvailable bool) model.Strategy {
	switch {
	case !hasTerm && !hasVector:
		return model.StrategyFilter
	case !hasTerm:
		if semanticAvailable {
			return model.StrategySemantic
		}
		return model.StrategyFilter
	case lexicalAvailable && semanticAvailable:
		return model.StrategyHybrid
	case lexicalAvailable:
		return model.StrategyLexical
	case semanticAvailable:
		return model.StrategySemantic
	}
	return model.StrategyFilter
}

// withoutLexical is the strategy left when the lexical stage fails.
func withoutLexical(strategy model.Strategy) model.Strategy {
	switch strategy {
	case model.StrategyHybrid:
		return model.StrategySemantic
	case model.StrategyLexical:
		return model.StrategyFilter
	}
	return strategy
}

// withoutSemantic is the strategy left when the semantic stage fails.
func withoutSemantic(strategy model.Strategy) model.Strategy {
	switch strategy {
	case model.StrategyHybrid:
		return model.StrategyLexical
	case model.StrategySemantic:
		return model.StrategyFilter
	}
	return strategy
}

func runsLexical(strategy model.Strategy) bool {
	return strategy == model.StrategyLexical || strategy == model.StrategyHybrid
}

func runsSemantic(strategy model.Strategy) bool {
	return strategy == model.StrategySemantic || strategy == model.StrategyHybrid
}
