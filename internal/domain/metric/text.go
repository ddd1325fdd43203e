package metric

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/assay-dev/assay/internal/domain/trace"
)

// MustContainEvaluator passes when resp.Text contains every listed
// substring.
type MustContainEvaluator struct{}

func (MustContainEvaluator) Variant() string { return "must_contain" }

func (MustContainEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	terms := stringSlice(expected["must_contain"])
	var missing []string
	for _, term := range terms {
		if !strings.Contains(resp.Text, term) {
			missing = append(missing, term)
		}
	}
	if len(missing) == 0 {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("missing %d required substring(s)", len(missing)), map[string]any{"missing": missing}), nil
}

// MustNotContainEvaluator passes when resp.Text contains none of the
// listed substrings.
type MustNotContainEvaluator struct{}

func (MustNotContainEvaluator) Variant() string { return "must_not_contain" }

func (MustNotContainEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	terms := stringSlice(expected["must_not_contain"])
	var found []string
	for _, term := range terms {
		if strings.Contains(resp.Text, term) {
			found = append(found, term)
		}
	}
	if len(found) == 0 {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("contains %d forbidden substring(s)", len(found)), map[string]any{"found": found}), nil
}

// RegexMatchEvaluator passes when resp.Text matches the given pattern.
type RegexMatchEvaluator struct{}

func (RegexMatchEvaluator) Variant() string { return "regex_match" }

func (RegexMatchEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	pattern := stringField(expected["regex_match"])
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{}, fmt.Errorf("config error: invalid regex_match pattern %q: %w", pattern, err)
	}
	if re.MatchString(resp.Text) {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("response does not match pattern %q", pattern), nil), nil
}

// RegexNotMatchEvaluator passes when resp.Text does not match the given
// pattern.
type RegexNotMatchEvaluator struct{}

func (RegexNotMatchEvaluator) Variant() string { return "regex_not_match" }

func (RegexNotMatchEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	pattern := stringField(expected["regex_not_match"])
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{}, fmt.Errorf("config error: invalid regex_not_match pattern %q: %w", pattern, err)
	}
	if !re.MatchString(resp.Text) {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("response unexpectedly matches pattern %q", pattern), nil), nil
}
