package provider

import (
	"errors"

	"abbas/model"
)

// classify wraps err as an InferenceError. Failures that reached the
// service and were rejected for the model's sake are ModelErrors; anything
// else is blamed on the provider.
func classify(err error, in model.PromptInput, isModelError bool) *model.InferenceError {
	var ierr *model.InferenceError
	if errors.As(err, &ierr) {
		return ierr
	}
	kind := model.ProviderError
	if isModelError {
		kind = model.ModelError
	}
	return &model.InferenceError{
		Kind:    kind,
		Message: err.Error(),
		Input:   in,
		Err:     err,
	}
}
