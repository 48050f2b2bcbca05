// Package risk scores a unified diff with static heuristics.
package risk

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/google/uuid"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// securityPatterns flag added lines touching a sensitive surface. weight is
// the factor contribution of one matching line.
var securityPatterns = []struct {
	category string
	weight   float64
	patterns []*regexp.Regexp
}{
	{
		category: "authentication",
		weight:   25,
		patterns: compilePatterns(
			`(?i)(auth|login|logout|signin|password|credential|jwt|oauth|session|cookie)`,
		),
	},
	{
		category: "authorization",
		weight:   25,
		patterns: compilePatterns(
			`(?i)(permission|access.?control|rbac|acl|authorize|forbidden|is.?admin)`,
		),
	},
	{
		category: "sql",
		weight:   20,
		patterns: compilePatterns(
			`(?i)(db\.exec|db\.query|\.prepare\(|raw.?sql)`,
			`(?i)(\bSELECT\b|\bINSERT\b|\bUPDATE\b|\bDELETE\b|\bDROP\b|\bALTER\b)\s`,
		),
	},
	{
		category: "cryptography",
		weight:   25,
		patterns: compilePatterns(
			`(?i)(encrypt|decrypt|hmac|cipher|bcrypt|argon|scrypt|pbkdf)`,
			`(?i)(private.?key|secret.?key|signing.?key|crypto\.)`,
		),
	},
	{
		category: "secrets",
		weight:   15,
		patterns: compilePatterns(
			`(?i)(os\.Getenv|os\.environ|process\.env|getenv)`,
			`(?i)(api.?key|secret|token)\s*[:=]`,
		),
	},
	{
		category: "exec",
		weight:   25,
		patterns: compilePatterns(
			`(?i)(exec\.Command|os\.system|subprocess|child_process|shell_exec)`,
			`(?i)(eval\(|InsecureSkipVerify)`,
		),
	},
}

var criticalPathPatterns = compilePatterns(
	`(?i)(^|/)(auth|security|crypto)[^/]*(/|$)`,
	`(?i)(^|/)(config|settings)[^/]*(/|$)`,
	`(?i)(^|/)(migrations?|schema)[^/]*(/|$)`,
	`(?i)(^|/)(database|db)(/|\.)`,
	`(?i)(^|/)(Dockerfile|docker-compose[^/]*|Makefile|go\.mod)$`,
	`(?i)\.(sql|tf|ya?ml)$`,
)

var testPathPattern = regexp.MustCompile(`(?i)(_test\.go$|\.test\.[jt]sx?$|\.spec\.[jt]sx?$|(^|/)tests?/|(^|/)test_[^/]*\.py$)`)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

type Analyzer struct {
	weights domain.RiskWeights
	nowFunc func() time.Time
	newID   func() string
}

func NewAnalyzer(weights domain.RiskWeights, nowFunc func() time.Time) (*Analyzer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("risk weights: %w", err)
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Analyzer{
		weights: weights,
		nowFunc: nowFunc,
		newID:   uuid.NewString,
	}, nil
}

type changedFile struct {
	name      string
	isTest    bool
	additions int
	deletions int
	added     []string
}

func parse(raw string) ([]changedFile, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	out := make([]changedFile, 0, len(files))
	for _, f := range files {
		name := f.NewName
		if f.IsDelete || name == "" {
			name = f.OldName
		}
		cf := changedFile{name: name, isTest: testPathPattern.MatchString(name)}
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					cf.additions++
					cf.added = append(cf.added, line.Line)
				case gitdiff.OpDelete:
					cf.deletions++
				}
			}
		}
		out = append(out, cf)
	}
	return out, nil
}

func (a *Analyzer) DiffStats(diff string) (int, int, int, error) {
	files, err := parse(diff)
	if err != nil {
		return 0, 0, 0, err
	}
	var additions, deletions int
	for _, f := range files {
		additions += f.additions
		deletions += f.deletions
	}
	return len(files), additions, deletions, nil
}

func (a *Analyzer) CalculateRiskScore(ctx context.Context, reviewID, diff string) (domain.RiskScore, error) {
	if err := ctx.Err(); err != nil {
		return domain.RiskScore{}, err
	}
	files, err := parse(diff)
	if err != nil {
		return domain.RiskScore{}, err
	}

	security, categories := securityImpact(files)
	critical, criticalNames := criticalFiles(files)
	factors := domain.RiskFactors{
		CodeComplexity:     codeComplexity(files),
		SecurityImpact:     security,
		CriticalFiles:      critical,
		DataflowConfidence: dataflow(files),
		TestCoverageDelta:  testCoverageDelta(files),
	}

	score, err := domain.NewRiskScore(a.newID(), reviewID, factors, a.weights, a.nowFunc())
	if err != nil {
		return domain.RiskScore{}, err
	}
	return score.WithDetails(map[string]string{
		"files_analyzed":      strconv.Itoa(len(files)),
		"security_categories": strings.Join(categories, ","),
		"critical_files":      strings.Join(criticalNames, ","),
	}), nil
}

func codeComplexity(files []changedFile) float64 {
	changed := 0
	for _, f := range files {
		changed += f.additions + f.deletions
	}
	return math.Min(100, float64(changed)/10+2*float64(len(files)))
}

// securityImpact adds each category's weight once per matching added line.
func securityImpact(files []changedFile) (float64, []string) {
	var (
		score float64
		hit   []string
	)
	for _, f := range files {
		if f.isTest {
			continue
		}
		for _, line := range f.added {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
				continue
			}
			for _, sp := range securityPatterns {
				if slices.ContainsFunc(sp.patterns, func(re *regexp.Regexp) bool { return re.MatchString(line) }) {
					score += sp.weight
					if !slices.Contains(hit, sp.category) {
						hit = append(hit, sp.category)
					}
				}
			}
		}
	}
	slices.Sort(hit)
	return math.Min(100, score), hit
}

func criticalFiles(files []changedFile) (float64, []string) {
	var names []string
	for _, f := range files {
		if f.isTest {
			continue
		}
		if slices.ContainsFunc(criticalPathPatterns, func(re *regexp.Regexp) bool { return re.MatchString(f.name) }) {
			names = append(names, f.name)
		}
	}
	return math.Min(100, 40*float64(len(names))), names
}

// dataflow is the share of deleted lines in the change. Removed code is the
// most likely to break a caller.
func dataflow(files []changedFile) float64 {
	var additions, deletions int
	for _, f := range files {
		additions += f.additions
		deletions += f.deletions
	}
	if additions+deletions == 0 {
		return 0
	}
	return 100 * float64(deletions) / float64(additions+deletions)
}

func testCoverageDelta(files []changedFile) float64 {
	var code, tests int
	for _, f := range files {
		n := f.additions + f.deletions
		if f.isTest {
			tests += n
		} else {
			code += n
		}
	}
	switch {
	case code == 0:
		return 0
	case tests == 0:
		return math.Min(80, float64(code)/2)
	default:
		return math.Max(0, 60*(1-float64(tests)/float64(code)))
	}
}
