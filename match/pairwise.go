package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/store"
	"github.com/nestmate/nestmate/vecindex"
)

// lowMatchThreshold flags pairs whose mutual score does not clear 0.5.
const lowMatchThreshold = 0.5

// FailReason explains why a pair scored zero.
type FailReason string

const (
	ReasonNone              FailReason = ""
	ReasonIncompleteProfile FailReason = "incomplete_profile"
	ReasonFirstRejects      FailReason = "first_rejects_second"
	ReasonSecondRejects     FailReason = "second_rejects_first"
	ReasonBothReject        FailReason = "mutual_rejection"
)

// PairwiseResult is the full score breakdown for one pair of users. IDs are
// reported in canonical (lexicographic) order, so the result for (a, b) and
// (b, a) is identical bit for bit.
type PairwiseResult struct {
	FirstUserID  string `json:"firstUserId"`
	SecondUserID string `json:"secondUserId"`

	MutualScore    float64 `json:"mutualScore"`
	ForwardScore   float64 `json:"forwardScore"`
	ReverseScore   float64 `json:"reverseScore"`
	AttributeScore float64 `json:"attributeScore"`
	// SimilarityScore is the profile-to-profile cosine similarity.
	SimilarityScore float64 `json:"similarityScore"`

	MeetsRequirements  bool       `json:"meetsRequirements"`
	Reason             FailReason `json:"reason,omitempty"`
	VectorsUnavailable bool       `json:"vectorsUnavailable,omitempty"`
	LowMatch           bool       `json:"lowMatch"`
}

// ScorePair computes the full mutual breakdown for two specific users.
// Incomplete profiles, failed hard requirements and unavailable vectors all
// produce a zero-score result with the reason set, never an error; errors
// are reserved for unknown users and store failures.
func (e *Engine) ScorePair(ctx context.Context, firstID, secondID string) (*PairwiseResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.observe("pairwise", time.Since(start).Seconds())
	}()
	if firstID == secondID {
		return nil, errors.New("pairwise scoring needs two distinct users")
	}
	// Canonical ordering keeps (a, b) and (b, a) byte-identical.
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	first, err := e.users.GetUser(ctx, &store.FindUser{ID: &firstID})
	if err != nil {
		return nil, errors.Wrapf(err, "load user %s", firstID)
	}
	second, err := e.users.GetUser(ctx, &store.FindUser{ID: &secondID})
	if err != nil {
		return nil, errors.Wrapf(err, "load user %s", secondID)
	}

	result := &PairwiseResult{
		FirstUserID:  firstID,
		SecondUserID: secondID,
		LowMatch:     true,
	}

	if !first.IsComplete() || !second.IsComplete() {
		result.Reason = ReasonIncompleteProfile
		return result, nil
	}

	firstAccepts := e.scorer.MeetsHardRequirements(first, second)
	secondAccepts := e.scorer.MeetsHardRequirements(second, first)
	switch {
	case !firstAccepts && !secondAccepts:
		result.Reason = ReasonBothReject
		return result, nil
	case !firstAccepts:
		result.Reason = ReasonFirstRejects
		return result, nil
	case !secondAccepts:
		result.Reason = ReasonSecondRejects
		return result, nil
	}
	result.MeetsRequirements = true

	vectors, err := e.pairVectors(ctx, firstID, secondID)
	if err != nil {
		slog.Warn("pairwise vectors unavailable",
			slog.String("first", firstID),
			slog.String("second", secondID),
			slog.Any("err", err))
		result.VectorsUnavailable = true
		return result, nil
	}

	forwardAttr := e.scorer.CompatibilityScore(first, second)
	reverseAttr := e.scorer.CompatibilityScore(second, first)
	forwardEmb := CosineSimilarity(vectors.firstPref, vectors.secondProfile)
	reverseEmb := CosineSimilarity(vectors.secondPref, vectors.firstProfile)

	result.ForwardScore = hybridScore(forwardAttr, forwardEmb)
	result.ReverseScore = hybridScore(reverseAttr, reverseEmb)
	result.MutualScore = (result.ForwardScore + result.ReverseScore) / 2.0
	result.AttributeScore = (forwardAttr + reverseAttr) / 2.0
	result.SimilarityScore = clamp01(CosineSimilarity(vectors.firstProfile, vectors.secondProfile))
	result.LowMatch = result.MutualScore <= lowMatchThreshold
	return result, nil
}

type pairVectors struct {
	firstProfile  []float32
	firstPref     []float32
	secondProfile []float32
	secondPref    []float32
}

func (e *Engine) pairVectors(ctx context.Context, firstID, secondID string) (*pairVectors, error) {
	load := func(id string) ([]float32, error) {
		vector, err := e.index.GetDatapoint(ctx, id)
		if err != nil {
			e.metrics.fetchError()
			return nil, err
		}
		return vector, nil
	}

	var v pairVectors
	var err error
	if v.firstProfile, err = load(vecindex.ProfileDatapointID(firstID)); err != nil {
		return nil, err
	}
	if v.firstPref, err = load(vecindex.PreferenceDatapointID(firstID)); err != nil {
		return nil, err
	}
	if v.secondProfile, err = load(vecindex.ProfileDatapointID(secondID)); err != nil {
		return nil, err
	}
	if v.secondPref, err = load(vecindex.PreferenceDatapointID(secondID)); err != nil {
		return nil, err
	}
	return &v, nil
}
