package tokenizer

import (
	"github.com/google/wire"

	"github.com/chatgroup/backend/internal/domain/history"
)

// ProviderSet tokenizer 包的 provider
var ProviderSet = wire.NewSet(
	NewEstimator,
	wire.Bind(new(history.TokenEstimator), new(*Estimator)),
)
