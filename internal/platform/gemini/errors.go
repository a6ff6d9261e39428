package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/scry-notes/internal/generation"
	"google.golang.org/genai"
)

// classify wraps err with generation.ErrTransient or generation.ErrFatal.
// Rate limits, server errors, timeouts and transport failures are transient;
// other API rejections are fatal.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generation.ErrTransient, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", generation.ErrFatal, err)
	}

	code, ok := apiErrorCode(err)
	if !ok {
		return fmt.Errorf("%w: %v", generation.ErrTransient, err)
	}

	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gemini returned %d: %v", generation.ErrTransient, code, err)
	default:
		return fmt.Errorf("%w: gemini returned %d: %v", generation.ErrFatal, code, err)
	}
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
