package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/ratelimit"
)

// tracer is the global OTel tracer handle for C7's live judge calls; see
// internal/domain/runner's identical no-op-until-configured pattern.
var tracer = otel.Tracer("github.com/assay-dev/assay/internal/domain/judge")

// DefaultRateLimit bounds live judge calls to a sustainable rate per
// (provider, model): judge samples are independent network round trips
// and a misconfigured suite can otherwise fan out thousands of them.
func DefaultRateLimit() ratelimit.RateLimitConfig {
	return ratelimit.RateLimitConfig{Rate: 60, Burst: 10, Period: time.Minute}
}

// Service evaluates rubrics per spec.md §4.7's order of resolution: trace,
// then cache, then a live majority vote.
type Service struct {
	config  Config
	cache   Cache
	client  Completer
	limiter ratelimit.RateLimiter
	rate    ratelimit.RateLimitConfig
}

// NewService builds a judge Service. client may be nil when judging is
// disabled or fully trace-resolved; limiter may be nil to disable rate
// limiting entirely (e.g. in tests).
func NewService(config Config, cache Cache, client Completer, limiter ratelimit.RateLimiter) *Service {
	return &Service{
		config:  config,
		cache:   cache,
		client:  client,
		limiter: limiter,
		rate:    DefaultRateLimit(),
	}
}

// Evaluate scores rubricID against input/responseText for testID, writing
// the result into meta["assay"]["judge"][rubricID] and returning it.
func (s *Service) Evaluate(ctx context.Context, testID, rubricID string, input Input, responseText string, meta map[string]any) (Result, error) {
	if existing, ok := readExisting(meta, rubricID); ok {
		existing.Source = "trace"
		return existing, nil
	}

	if !s.config.Enabled {
		return Result{}, diagnostic.New(diagnostic.ECfgJudgeDisabled, "judge.Evaluate",
			fmt.Sprintf("test %q requires judge results (%s:%s), but judge is disabled", testID, rubricID, s.rubricVersion())).
			WithContext(map[string]any{"test_id": testID, "rubric_id": rubricID}).
			WithFixSteps(
				"Run precompute-judge to embed judge results into the trace file",
				"Enable judging for this run (--judge <provider>)",
			)
	}

	key := s.cacheKey(rubricID, input, responseText)

	if !s.config.Refresh {
		if cached, hit, err := s.cache.Get(key); err != nil {
			return Result{}, fmt.Errorf("query judge cache: %w", err)
		} else if hit {
			cached.Source = "cache"
			injectResult(meta, rubricID, cached)
			return cached, nil
		}
	}

	if s.client == nil {
		return Result{}, diagnostic.New(diagnostic.ECfgJudgeDisabled, "judge.Evaluate",
			"judge enabled but no completion client configured").
			WithContext(map[string]any{"test_id": testID, "rubric_id": rubricID}).
			WithFixSteps("Configure a judge provider/model for this run")
	}

	prompt := buildPrompt(rubricID, input, responseText)

	votes := make([]bool, 0, s.config.Samples)
	var firstRationale string
	for i := 0; i < s.config.Samples; i++ {
		if s.limiter != nil {
			allowed, err := s.limiter.Allow(ctx, "judge:"+s.config.Provider+":"+s.config.Model, s.rate)
			if err != nil {
				return Result{}, fmt.Errorf("judge rate limiter: %w", err)
			}
			if !allowed.Allowed {
				return Result{}, diagnostic.New(diagnostic.EResourceLimit, "judge.Evaluate",
					"judge call rate limit exceeded").
					WithContext(map[string]any{"retry_after_ms": allowed.RetryAfter.Milliseconds()})
			}
		}

		_, sampleSpan := tracer.Start(ctx, "assay.judge.call", oteltrace.WithAttributes(
			attribute.String("assay.test_id", testID),
			attribute.String("assay.rubric_id", rubricID),
			attribute.String("assay.judge.provider", s.config.Provider),
			attribute.String("assay.judge.model", s.config.Model),
			attribute.Int("assay.judge.sample_no", i),
		))
		resp, err := s.client.Complete(prompt)
		if err != nil {
			sampleSpan.RecordError(err)
			sampleSpan.SetStatus(codes.Error, err.Error())
			sampleSpan.End()
			return Result{}, fmt.Errorf("judge sample %d: %w", i, err)
		}
		if i == 0 {
			firstRationale = resp.Text
		}
		vote := parseVote(resp.Text)
		sampleSpan.SetAttributes(attribute.Bool("assay.judge.vote_passed", vote))
		sampleSpan.End()
		votes = append(votes, vote)
	}

	passCount := 0
	for _, v := range votes {
		if v {
			passCount++
		}
	}
	agreement := float64(passCount) / float64(len(votes))
	passed := float64(passCount) > float64(len(votes))/2.0

	result := Result{
		Passed:        passed,
		Score:         agreement,
		Rationale:     firstRationale,
		Samples:       votes,
		Source:        "live",
		RubricVersion: s.rubricVersion(),
	}

	if err := s.cache.Put(key, result); err != nil {
		return Result{}, fmt.Errorf("write judge cache: %w", err)
	}
	injectResult(meta, rubricID, result)
	return result, nil
}

func (s *Service) rubricVersion() string {
	if s.config.RubricVersion != "" {
		return s.config.RubricVersion
	}
	return "v1"
}

// cacheKey hashes the full call shape spec.md §4.6 names: provider, model,
// rubric, rubric version, template version, temperature, max tokens,
// samples, and the input hash. sha256 is used here rather than porting the
// original's md5 call, matching the sha256-everywhere convention this
// module already uses for every other content hash (trace fingerprints,
// VCR cache keys).
func (s *Service) cacheKey(rubricID string, input Input, responseText string) string {
	const templateVersion = "v1-simple"
	inputHash := sha256Hex(fmt.Sprintf("Rubric: %s\nInput: %s\nResponse: %s\nContext: %s",
		rubricID, input.Prompt, responseText, input.Context))

	raw := strings.Join([]string{
		s.config.Provider,
		s.config.Model,
		rubricID,
		s.rubricVersion(),
		templateVersion,
		strconv.FormatFloat(s.config.Temperature, 'f', -1, 64),
		strconv.Itoa(s.config.MaxTokens),
		strconv.Itoa(s.config.Samples),
		inputHash,
	}, ":")
	return sha256Hex(raw)
}

func buildPrompt(rubricID string, input Input, responseText string) string {
	return fmt.Sprintf("Rubric: %s\nInput: %s\nResponse: %s\nContext: %s",
		rubricID, input.Prompt, responseText, input.Context)
}

// parseVote extracts a pass/fail vote from a judge sample's raw text. A
// structured `{"passed": bool, ...}` reply is preferred; any other text
// falls back to a substring heuristic (no "fail" mention reads as a pass),
// matching the original MVP judge's fallback when the provider doesn't
// return well-formed JSON.
func parseVote(text string) bool {
	var structured struct {
		Passed bool `json:"passed"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &structured); err == nil {
		return structured.Passed
	}
	return !strings.Contains(strings.ToLower(text), "fail")
}

func readExisting(meta map[string]any, rubricID string) (Result, bool) {
	if meta == nil {
		return Result{}, false
	}
	assay, ok := meta["assay"].(map[string]any)
	if !ok {
		return Result{}, false
	}
	judgeMap, ok := assay["judge"].(map[string]any)
	if !ok {
		return Result{}, false
	}
	raw, ok := judgeMap[rubricID]
	if !ok {
		return Result{}, false
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(encoded, &result); err != nil {
		return Result{}, false
	}
	return result, true
}

func injectResult(meta map[string]any, rubricID string, result Result) {
	assay, ok := meta["assay"].(map[string]any)
	if !ok {
		assay = map[string]any{}
		meta["assay"] = assay
	}
	judgeMap, ok := assay["judge"].(map[string]any)
	if !ok {
		judgeMap = map[string]any{}
		assay["judge"] = judgeMap
	}
	judgeMap[rubricID] = result
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
