package detect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/backmassage/autoencode/internal/media"
)

// ErrUnknownRule is returned by NewDetector for an unrecognized rule name.
var ErrUnknownRule = errors.New("unknown name rate rule")

// propertyKeys are job property names that may carry a frame rate, compared
// case-insensitively. Job properties are consulted before plugin properties.
var propertyKeys = []string{
	"FrameRate", "FPS", "FramesPerSecond", "OutputFrameRate",
	"RenderFrameRate", "ProjectFrameRate", "SceneFrameRate",
}

func propertyRate(job JobInfo) (media.Rate, string) {
	for _, props := range []map[string]string{job.Properties, job.PluginProperties} {
		for _, key := range propertyKeys {
			v, ok := lookupFold(props, key)
			if !ok {
				continue
			}
			v = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(v)), "fps"))
			r, err := media.ParseRate(v)
			if err != nil || r.Float() < minRate || r.Float() > maxRate {
				continue
			}
			return r, ""
		}
	}
	return media.Rate{}, "job-properties: no frame rate property"
}

func lookupFold(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// nameRule extracts a rate from a job or output name.
type nameRule struct {
	name  string
	match func(s string) (media.Rate, bool)
}

// Rule names accepted in name_rate_rules.
const (
	RuleFPSSuffix   = "fps-suffix"
	RuleUnderscore  = "underscore-rate"
	RuleNTSCCompact = "ntsc-compact"
	RuleProgressive = "progressive-suffix"
)

// DefaultRuleOrder is used when no order is configured. The first rule that
// matches wins.
var DefaultRuleOrder = []string{RuleFPSSuffix, RuleUnderscore, RuleNTSCCompact, RuleProgressive}

var (
	fpsSuffixRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*fps`)
	ntscCompactRe = regexp.MustCompile(`(?:^|\D)(23976|2398|2997|5994)(?:\D|$)`)
	progressiveRe = regexp.MustCompile(`(?i)\d{3,4}p(24|25|30|48|50|60)(?:\D|$)`)
)

var ntscCompact = map[string]media.Rate{
	"23976": {Num: 24000, Den: 1001},
	"2398":  {Num: 24000, Den: 1001},
	"2997":  {Num: 30000, Den: 1001},
	"5994":  {Num: 60000, Den: 1001},
}

var builtinRules = map[string]nameRule{
	RuleFPSSuffix: {RuleFPSSuffix, func(s string) (media.Rate, bool) {
		for _, m := range fpsSuffixRe.FindAllStringSubmatch(s, -1) {
			if r, ok := inRange(m[1]); ok {
				return r, true
			}
		}
		return media.Rate{}, false
	}},
	// Bare numbers between underscores are common in names (versions, shot
	// numbers), so only standard rates count.
	RuleUnderscore: {RuleUnderscore, func(s string) (media.Rate, bool) {
		parts := strings.Split(s, "_")
		for i := 1; i < len(parts)-1; i++ {
			if r, ok := inRange(parts[i]); ok && r.Common() {
				return r, true
			}
		}
		return media.Rate{}, false
	}},
	RuleNTSCCompact: {RuleNTSCCompact, func(s string) (media.Rate, bool) {
		if m := ntscCompactRe.FindStringSubmatch(s); m != nil {
			return ntscCompact[m[1]], true
		}
		return media.Rate{}, false
	}},
	RuleProgressive: {RuleProgressive, func(s string) (media.Rate, bool) {
		if m := progressiveRe.FindStringSubmatch(s); m != nil {
			return inRange(m[1])
		}
		return media.Rate{}, false
	}},
}

func inRange(s string) (media.Rate, bool) {
	r, err := media.ParseRate(s)
	if err != nil || r.Float() < minRate || r.Float() > maxRate {
		return media.Rate{}, false
	}
	return r, true
}

// orderRules resolves configured rule names. Empty means DefaultRuleOrder.
func orderRules(names []string) ([]nameRule, error) {
	if len(names) == 0 {
		names = DefaultRuleOrder
	}
	rules := make([]nameRule, 0, len(names))
	for _, n := range names {
		r, ok := builtinRules[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("%w %q (use one of %s)", ErrUnknownRule, n, strings.Join(DefaultRuleOrder, ", "))
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// nameRate tries each rule in order against every name; the first rule that
// matches any name wins.
func (d *Detector) nameRate(names ...string) (media.Rate, string, bool) {
	for _, rule := range d.rules {
		for _, n := range names {
			if n == "" {
				continue
			}
			if r, ok := rule.match(n); ok {
				return r, rule.name, true
			}
		}
	}
	return media.Rate{}, "", false
}
