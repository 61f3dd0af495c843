// CLAUDE:SUMMARY Relevance classifier contract plus the default keyword rule engine for industrial CRE news.
// Package classify assigns a relevance tier, score, and category to a news
// item. The pipeline consumes the Func contract; the keyword engine below is
// the default implementation and can be swapped for anything that satisfies
// the same signature.
package classify

import "strings"

// Tier is the relevance bucket. C means "not worth keeping" downstream.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// Result is the classification outcome for one item.
type Result struct {
	Tier     Tier
	Score    float64
	Category string
}

// Func is the classifier contract. Implementations must be pure: the same
// inputs always yield the same Result.
type Func func(title, description, link, sourceName, feedType string) Result

// RuleSet is a keyword-weighted classifier configuration.
type RuleSet struct {
	// Strong terms put an item in tier A territory on a single hit.
	Strong map[string]float64
	// Supporting terms accumulate toward tier B.
	Supporting map[string]float64
	// Negative terms subtract; enough of them drops the item to C.
	Negative map[string]float64
	// Categories maps a category name to its trigger terms. First match wins,
	// evaluated in CategoryOrder.
	Categories    map[string][]string
	CategoryOrder []string
	// TierAScore and TierBScore are the inclusive score floors per tier.
	TierAScore float64
	TierBScore float64
}

// Classifier evaluates a RuleSet against item text.
type Classifier struct {
	rules RuleSet
}

// New creates a Classifier from the given rules. Zero-valued score floors
// get defaults of 3.0 (A) and 1.0 (B).
func New(rules RuleSet) *Classifier {
	if rules.TierAScore == 0 {
		rules.TierAScore = 3.0
	}
	if rules.TierBScore == 0 {
		rules.TierBScore = 1.0
	}
	return &Classifier{rules: rules}
}

// Default returns the built-in industrial CRE classifier.
func Default() *Classifier {
	return New(defaultRules())
}

// Classify scores one item. Matching is case-insensitive substring matching
// over title and description; the title counts double.
func (c *Classifier) Classify(title, description, link, sourceName, feedType string) Result {
	titleLower := strings.ToLower(title)
	descLower := strings.ToLower(description)

	var score float64
	for term, w := range c.rules.Strong {
		if strings.Contains(titleLower, term) {
			score += 2 * w
		} else if strings.Contains(descLower, term) {
			score += w
		}
	}
	for term, w := range c.rules.Supporting {
		if strings.Contains(titleLower, term) {
			score += 2 * w
		} else if strings.Contains(descLower, term) {
			score += w
		}
	}
	for term, w := range c.rules.Negative {
		if strings.Contains(titleLower, term) || strings.Contains(descLower, term) {
			score -= w
		}
	}

	tier := TierC
	switch {
	case score >= c.rules.TierAScore:
		tier = TierA
	case score >= c.rules.TierBScore:
		tier = TierB
	}

	return Result{
		Tier:     tier,
		Score:    score,
		Category: c.category(titleLower, descLower),
	}
}

func (c *Classifier) category(titleLower, descLower string) string {
	for _, name := range c.rules.CategoryOrder {
		for _, term := range c.rules.Categories[name] {
			if strings.Contains(titleLower, term) || strings.Contains(descLower, term) {
				return name
			}
		}
	}
	return "general"
}

func defaultRules() RuleSet {
	return RuleSet{
		Strong: map[string]float64{
			"industrial":          2.0,
			"warehouse":           2.0,
			"logistics":           1.8,
			"distribution center": 2.0,
			"fulfillment":         1.6,
			"cold storage":        1.8,
			"data center":         1.5,
			"manufacturing plant": 1.8,
		},
		Supporting: map[string]float64{
			"lease":                  0.8,
			"leasing":                0.8,
			"acquisition":            0.8,
			"development":            0.6,
			"square feet":            1.0,
			"square-foot":            1.0,
			"sq. ft":                 1.0,
			"groundbreaking":         0.8,
			"spec building":          1.0,
			"build-to-suit":          1.2,
			"land sale":              0.8,
			"industrial park":        1.2,
			"commercial real estate": 0.8,
			"cre ":                   0.5,
		},
		Negative: map[string]float64{
			"residential":   1.0,
			"apartment":     1.0,
			"multifamily":   1.0,
			"single-family": 1.2,
			"hotel":         0.8,
			"restaurant":    0.8,
			"sweepstakes":   2.0,
		},
		Categories: map[string][]string{
			"leasing":     {"lease", "leasing", "tenant", "sublease"},
			"sales":       {"acquisition", "acquires", "sale", "sold", "purchase", "buys"},
			"development": {"development", "groundbreaking", "construction", "breaks ground", "build-to-suit", "spec "},
			"logistics":   {"logistics", "distribution", "fulfillment", "supply chain", "3pl"},
			"land":        {"land sale", "land deal", "acreage", "site acquisition"},
			"market":      {"vacancy", "absorption", "rent growth", "market report", "forecast"},
		},
		CategoryOrder: []string{"development", "leasing", "sales", "logistics", "land", "market"},
	}
}

// Ensure the method satisfies the Func contract without an adapter at call sites.
var _ Func = Default().Classify
