package service

// RenderOutcome is the result of a best-effort render: either an image
// reference, or a degraded result carrying the render error. A degraded
// outcome is not an operation failure; the version is stored without an image.
type RenderOutcome struct {
	imageURL string
	cause    error
}

func Rendered(imageURL string) RenderOutcome {
	return RenderOutcome{imageURL: imageURL}
}

func Degraded(cause error) RenderOutcome {
	return RenderOutcome{cause: cause}
}

func (r RenderOutcome) Degraded() bool {
	return r.cause != nil
}

// Cause is the render error of a degraded outcome, nil otherwise.
func (r RenderOutcome) Cause() error {
	return r.cause
}

// ImageURL is nil for a degraded outcome.
func (r RenderOutcome) ImageURL() *string {
	if r.cause != nil || r.imageURL == "" {
		return nil
	}
	u := r.imageURL
	return &u
}
