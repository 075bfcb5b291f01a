package bio

import "errors"

var (
	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("bio: model returned an empty response")

	// ErrGenerationUnavailable wraps transient model failures that survived
	// the retry budget.
	ErrGenerationUnavailable = errors.New("bio: generation service unavailable")

	// ErrInvalidPolicy indicates a malformed gate policy file.
	ErrInvalidPolicy = errors.New("bio: invalid gate policy")
)
