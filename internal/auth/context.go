package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const reviewerKey contextKey = "reviewer"

// ReviewerHeader names the person making corrections. It is informational only.
const ReviewerHeader = "X-Reviewer"

// maxReviewerLength bounds what is stored alongside a learned mapping.
const maxReviewerLength = 128

// ContextWithReviewer returns a new context that carries the reviewer name.
func ContextWithReviewer(ctx context.Context, reviewer string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, reviewerKey, normalizeReviewer(reviewer))
}

// ReviewerFromContext retrieves the reviewer name from the context, if any.
func ReviewerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	reviewer, ok := ctx.Value(reviewerKey).(string)
	if !ok || reviewer == "" {
		return "", false
	}
	return reviewer, true
}

// ReviewerMiddleware copies the X-Reviewer header into the request context.
func ReviewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reviewer := r.Header.Get(ReviewerHeader); reviewer != "" {
			r = r.WithContext(ContextWithReviewer(r.Context(), reviewer))
		}
		next.ServeHTTP(w, r)
	})
}

func normalizeReviewer(reviewer string) string {
	reviewer = strings.TrimSpace(reviewer)
	if len(reviewer) > maxReviewerLength {
		reviewer = reviewer[:maxReviewerLength]
	}
	return reviewer
}
